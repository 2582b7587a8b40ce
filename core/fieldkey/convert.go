package fieldkey

import (
	"time"

	"github.com/trezcool/academia/core"
)

func fieldFromDoc(doc core.Document) Field {
	return Field{
		ID:             doc.ID(),
		PlaceholderKey: doc.String(keyPlaceholder),
		DBFieldPath:    doc.String(keyDBFieldPath),
		Label:          doc.String(keyLabel),
		Icon:           doc.String(keyIcon),
		ExistsInDB:     boolOf(doc[keyExistsInDB]),
		DataType:       doc.String(keyDataType),
		DefaultValue:   doc.String(keyDefaultValue),
		KeyName:        doc.String(keyKeyName),
		KeyType:        doc.String(keyKeyType),
		Formula:        doc.String(keyFormula),
		CreatedAt:      timeOf(doc[keyCreatedAt]),
		UpdatedAt:      timeOf(doc[keyUpdatedAt]),
	}
}

func keySetFromDoc(doc core.Document) KeySet {
	ks := KeySet{
		ID:           doc.ID(),
		KeyName:      doc.String(keyKeyName),
		Description:  doc.String(keyDescription),
		ManualFields: keySetFieldsFromDocs(doc[keyManual]),
		TestFields:   keySetFieldsFromDocs(doc[keyTest]),
		Calculations: calculationsFromDocs(doc[keyCalculations]),
		CreatedAt:    timeOf(doc[keyCreatedAt]),
		UpdatedAt:    timeOf(doc[keyUpdatedAt]),
	}
	if cfg, ok := asMap(doc[keyConfig]); ok {
		ks.Config = cfg
	}
	return ks
}

func keySetFieldsToDocs(fields []KeySetField) []interface{} {
	docs := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		docs = append(docs, map[string]interface{}{
			"key":      core.CleanString(f.Key),
			"label":    core.CleanString(f.Label),
			"dataType": f.DataType,
			"source":   f.Source,
		})
	}
	return docs
}

func keySetFieldsFromDocs(v interface{}) []KeySetField {
	list, _ := v.([]interface{})
	fields := make([]KeySetField, 0, len(list))
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		d := core.Document(m)
		fields = append(fields, KeySetField{
			Key:      d.String("key"),
			Label:    d.String("label"),
			DataType: d.String("dataType"),
			Source:   d.String("source"),
		})
	}
	return fields
}

func calculationsToDocs(calcs []Calculation) []interface{} {
	docs := make([]interface{}, 0, len(calcs))
	for _, c := range calcs {
		docs = append(docs, map[string]interface{}{
			"key":     core.CleanString(c.Key),
			"label":   core.CleanString(c.Label),
			"formula": core.CleanString(c.Formula),
		})
	}
	return docs
}

func calculationsFromDocs(v interface{}) []Calculation {
	list, _ := v.([]interface{})
	calcs := make([]Calculation, 0, len(list))
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		d := core.Document(m)
		calcs = append(calcs, Calculation{Key: d.String("key"), Label: d.String("label"), Formula: d.String("formula")})
	}
	return calcs
}

func configToDoc(cfg map[string]interface{}) map[string]interface{} {
	if cfg == nil {
		return map[string]interface{}{}
	}
	return cfg
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case core.Document:
		return m, true
	}
	return nil, false
}

func boolOf(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func timeOf(v interface{}) time.Time {
	t, _ := v.(time.Time)
	return t.UTC()
}
