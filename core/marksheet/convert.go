package marksheet

import (
	"time"

	"github.com/trezcool/academia/core"
)

func templateToDoc(def TemplateDef) core.Document {
	slots := make([]interface{}, 0, len(def.Slots))
	for _, s := range def.Slots {
		slots = append(slots, map[string]interface{}{
			keySlotID:   s.ID,
			keyName:     s.Name,
			keyMaxMarks: s.MaxMarks,
		})
	}
	return core.Document{
		keyName:      def.Name,
		keyClassName: def.ClassName,
		keySlots:     slots,
	}
}

func templateFromDoc(doc core.Document) Template {
	list, _ := doc[keySlots].([]interface{})
	slots := make([]Slot, 0, len(list))
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		d := core.Document(m)
		maxMarks, _ := number(d[keyMaxMarks])
		slots = append(slots, Slot{ID: d.String(keySlotID), Name: d.String(keyName), MaxMarks: maxMarks})
	}
	return Template{
		ID:        doc.ID(),
		Name:      doc.String(keyName),
		ClassName: doc.String(keyClassName),
		Slots:     slots,
		CreatedAt: timeOf(doc[keyCreatedAt]),
		UpdatedAt: timeOf(doc[keyUpdatedAt]),
	}
}

func marksheetToDoc(ms Marksheet) core.Document {
	rows := make([]interface{}, 0, len(ms.Rows))
	for _, r := range ms.Rows {
		rows = append(rows, map[string]interface{}{
			keySubject:    r.Subject,
			keySubjectID:  r.SubjectID,
			keyObtained:   r.Obtained,
			keyMaximum:    r.Maximum,
			keyPercentage: r.Percentage,
			keySource:     r.Source,
		})
	}
	return core.Document{
		keyTemplateID:   ms.TemplateID,
		keyTemplateName: ms.TemplateName,
		keyClassName:    ms.ClassName,
		keyStudentID:    ms.StudentID,
		keyStudentName:  ms.StudentName,
		keyRows:         rows,
		keyObtained:     ms.Obtained,
		keyMaximum:      ms.Maximum,
		keyPercentage:   ms.Percentage,
		keyCreatedAt:    ms.CreatedAt,
	}
}

func marksheetFromDoc(doc core.Document) Marksheet {
	list, _ := doc[keyRows].([]interface{})
	rows := make([]Row, 0, len(list))
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		d := core.Document(m)
		rows = append(rows, Row{
			Subject:    d.String(keySubject),
			SubjectID:  d.String(keySubjectID),
			Obtained:   firstNumber(d, keyObtained),
			Maximum:    firstNumber(d, keyMaximum),
			Percentage: firstNumber(d, keyPercentage),
			Source:     d.String(keySource),
		})
	}
	return Marksheet{
		ID:           doc.ID(),
		TemplateID:   doc.String(keyTemplateID),
		TemplateName: doc.String(keyTemplateName),
		ClassName:    doc.String(keyClassName),
		StudentID:    doc.String(keyStudentID),
		StudentName:  doc.String(keyStudentName),
		Rows:         rows,
		Obtained:     firstNumber(doc, keyObtained),
		Maximum:      firstNumber(doc, keyMaximum),
		Percentage:   firstNumber(doc, keyPercentage),
		CreatedAt:    timeOf(doc[keyCreatedAt]),
	}
}

func timeOf(v interface{}) time.Time {
	t, _ := v.(time.Time)
	return t.UTC()
}
