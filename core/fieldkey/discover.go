package fieldkey

import (
	"context"
	"sort"
	"strings"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const (
	scorePrefix    = "marks"
	categoryPrefix = "subject"
	// per-holder map of a score record; its keys are holder ids
	holderMapKey = "studentMarks"
	holderAlias  = scorePrefix + ".student"
)

var internalKeys = map[string]bool{core.IDKey: true, "__v": true, core.TenantKey: true}

type alias struct {
	field       string
	placeholder string
}

var (
	scoreAliases = []alias{
		{"subjectId", "markSubjectId"},
		{"testName", "testName"},
		{"maxMarks", "testMaxMarks"},
		{"examDate", "examDate"},
	}
	categoryAliases = []alias{
		{"name", "subjectName"},
		{"code", "subjectCode"},
		{"maxMarks", "subjectMaxMarks"},
	}
)

// Discoverer infers a field catalog from sample documents of the monitored collections.
type Discoverer struct {
	store core.DocumentStore
	conf  core.DiscoveryConfig
}

func NewDiscoverer(store core.DocumentStore, conf *core.Config) *Discoverer {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.StringNotEmpty(conf.Discovery.PrimaryCollection, "discovery.primaryCollection"),
		vala.StringNotEmpty(conf.Discovery.ScoreCollection, "discovery.scoreCollection"),
		vala.StringNotEmpty(conf.Discovery.CategoryCollection, "discovery.categoryCollection"),
	).CheckAndPanic()
	return &Discoverer{store: store, conf: conf.Discovery}
}

func skipInternal(key string) bool { return internalKeys[key] }

// Discover returns the catalog of a tenant sorted by label, or an empty slice
// when none of the monitored collections holds a document for it.
func (d *Discoverer) Discover(ctx context.Context, tenantID string) ([]Field, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return nil, err
	}
	filter := core.Filter{core.TenantKey: tenantID}
	set := newFieldSet()

	// primary entity
	primary, err := d.store.FindSample(ctx, d.conf.PrimaryCollection, filter, d.conf.PrimarySample)
	if err != nil {
		return nil, errors.Wrap(err, "sampling primary collection")
	}
	for _, doc := range primary {
		set.walk(BuildTree(doc), "", skipInternal)
	}

	// score entity
	scores, err := d.store.FindSample(ctx, d.conf.ScoreCollection, filter, d.conf.ScoreSample)
	if err != nil {
		return nil, errors.Wrap(err, "sampling score collection")
	}
	for _, doc := range scores {
		withoutHolders := doc.Clone()
		delete(withoutHolders, holderMapKey)
		set.walk(BuildTree(withoutHolders), scorePrefix, skipInternal)
	}
	if len(scores) > 0 {
		first := scores[0]
		if holder, ok := exemplarHolder(first[holderMapKey]); ok {
			set.walk(BuildTree(holder), holderAlias, skipInternal)
		}
		registerAliases(set, first, scorePrefix, scoreAliases)
	}

	// category entity
	categories, err := d.store.FindSample(ctx, d.conf.CategoryCollection, filter, d.conf.CategorySample)
	if err != nil {
		return nil, errors.Wrap(err, "sampling category collection")
	}
	for _, doc := range categories {
		set.walk(BuildTree(doc), categoryPrefix, skipInternal)
	}
	if len(categories) > 0 {
		registerAliases(set, categories[0], categoryPrefix, categoryAliases)
	}

	fields := make([]Field, 0, set.len())
	for _, s := range set.samples {
		fields = append(fields, Field{
			PlaceholderKey: s.placeholderKey,
			DBFieldPath:    s.path,
			Label:          DeriveLabel(s.placeholderKey),
			Icon:           IconFor(s.path),
			ExistsInDB:     true,
			DataType:       InferType(s.value),
			DefaultValue:   FormatValue(s.value),
		})
	}
	SortByLabel(fields)
	return fields, nil
}

// exemplarHolder picks the per-holder entry with the smallest key, so repeated scans walk the same one.
func exemplarHolder(v interface{}) (interface{}, bool) {
	var holders map[string]interface{}
	switch m := v.(type) {
	case map[string]interface{}:
		holders = m
	case core.Document:
		holders = m
	default:
		return nil, false
	}
	if len(holders) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(holders))
	for k := range holders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return holders[keys[0]], true
}

func registerAliases(set *fieldSet, doc core.Document, prefix string, aliases []alias) {
	for _, a := range aliases {
		if v, ok := doc[a.field]; ok {
			set.insertIfAbsent(a.placeholder, joinPath(prefix, a.field), v)
		}
	}
}

// SortByLabel sorts entries by label, case-insensitively, then by placeholder key.
func SortByLabel(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		li, lj := strings.ToLower(fields[i].Label), strings.ToLower(fields[j].Label)
		if li != lj {
			return li < lj
		}
		return fields[i].PlaceholderKey < fields[j].PlaceholderKey
	})
}
