package fieldkey

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

const (
	tenant    = "tenant-1"
	holderID  = "5f1d7f3e9b1e8a3c4d5e6f70"
	holderID2 = "5f1d7f3e9b1e8a3c4d5e6f71"
	catalog   = "data_field_keys"
	students  = "students"
	marks     = "marks"
	subjects  = "subjects"
)

func testConfig() *core.Config {
	return &core.Config{
		CatalogCollection: catalog,
		Discovery: core.DiscoveryConfig{
			PrimaryCollection:  students,
			ScoreCollection:    marks,
			CategoryCollection: subjects,
			PrimarySample:      100,
			ScoreSample:        50,
			CategorySample:     50,
		},
	}
}

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func setup(t *testing.T) (*Service, *inmemdb.DB) {
	t.Helper()
	db := inmemdb.Open()
	conf := testConfig()
	svc := NewService(db, NewDiscoverer(db, conf), newValidator(), conf)
	return svc, db
}

func seedSchool(t *testing.T, db core.DocumentStore) {
	t.Helper()
	born := time.Date(2010, 4, 12, 0, 0, 0, 0, time.UTC)
	testutil.InsertDocs(t, db, students,
		core.Document{
			core.TenantKey: tenant, "__v": 0,
			"name":    "Ada",
			"dob":     born,
			"address": map[string]interface{}{"city": "Goma"},
			"parent":  map[string]interface{}{"name": nil},
		},
		core.Document{
			core.TenantKey: tenant,
			"name":         "Bob",
			"parent":       map[string]interface{}{"name": "Eve"},
			"tags":         []interface{}{"choir"},
			holderID:       map[string]interface{}{"seen": true},
		},
		core.Document{core.TenantKey: "tenant-2", "secret": "other tenant"},
	)
	testutil.InsertDocs(t, db, marks, core.Document{
		core.TenantKey: tenant,
		"subjectId":    "sub-math",
		"subjectName":  "Math",
		"testName":     "Term 1",
		"maxMarks":     50,
		"studentMarks": map[string]interface{}{
			holderID2: map[string]interface{}{"marks": 35, "maxMarks": 50},
			holderID:  map[string]interface{}{"marks": 40, "maxMarks": 50},
		},
	})
	testutil.InsertDocs(t, db, subjects, core.Document{
		core.TenantKey: tenant,
		"name":         "Math",
		"code":         "M1",
		"maxMarks":     100,
	})
}

func byPlaceholder(fields []Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.PlaceholderKey] = f
	}
	return m
}

func TestDiscoverer_Discover(t *testing.T) {
	db := inmemdb.Open()
	seedSchool(t, db)
	d := NewDiscoverer(db, testConfig())

	fields, err := d.Discover(context.Background(), tenant)
	require.NoError(t, err)

	got := byPlaceholder(fields)
	assert.Len(t, got, len(fields), "placeholder keys are unique")

	wantPaths := map[string]string{
		"name":                   "name",
		"dob":                    "dob",
		"address.city":           "address.city",
		"parent.name":            "parent.name",
		"tags":                   "tags",
		holderID + ".seen":       holderID + ".seen",
		"marks.subjectId":        "marks.subjectId",
		"marks.subjectName":      "marks.subjectName",
		"marks.testName":         "marks.testName",
		"marks.maxMarks":         "marks.maxMarks",
		"marks.student.marks":    "marks.student.marks",
		"marks.student.maxMarks": "marks.student.maxMarks",
		"markSubjectId":          "marks.subjectId",
		"testName":               "marks.testName",
		"testMaxMarks":           "marks.maxMarks",
		"subject.name":           "subject.name",
		"subject.code":           "subject.code",
		"subject.maxMarks":       "subject.maxMarks",
		"subjectName":            "subject.name",
		"subjectCode":            "subject.code",
		"subjectMaxMarks":        "subject.maxMarks",
	}
	assert.Len(t, fields, len(wantPaths))
	for key, path := range wantPaths {
		f, ok := got[key]
		if assert.True(t, ok, "missing %s", key) {
			assert.Equal(t, path, f.DBFieldPath, key)
			assert.True(t, f.ExistsInDB, key)
		}
	}

	assert.NotContains(t, got, "__v")
	assert.NotContains(t, got, "secret")
	assert.NotContains(t, got, "examDate", "absent alias source")

	assert.Equal(t, "Eve", got["parent.name"].DefaultValue, "first non-null sample wins")
	assert.Equal(t, TypeDate, got["dob"].DataType)
	assert.Equal(t, "2010-04-12T00:00:00Z", got["dob"].DefaultValue)
	assert.Equal(t, TypeArray, got["tags"].DataType)
	assert.Equal(t, TypeNumber, got["marks.student.marks"].DataType)
	assert.Equal(t, "40", got["marks.student.marks"].DefaultValue, "exemplar holder is the smallest key")
	assert.Equal(t, "Subject Max Marks", got["subjectMaxMarks"].Label)
	assert.Equal(t, IconCalendar, got["dob"].Icon)

	for i := 1; i < len(fields); i++ {
		assert.LessOrEqual(t, strings.ToLower(fields[i-1].Label), strings.ToLower(fields[i].Label))
	}
}

func TestDiscoverer_Discover_noData(t *testing.T) {
	db := inmemdb.Open()
	seedSchool(t, db)
	d := NewDiscoverer(db, testConfig())

	fields, err := d.Discover(context.Background(), "empty-tenant")
	require.NoError(t, err)
	assert.NotNil(t, fields)
	assert.Empty(t, fields)

	_, err = d.Discover(context.Background(), " ")
	assert.Error(t, err)
}
