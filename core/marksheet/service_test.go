package marksheet

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

const (
	tenant    = "tenant-1"
	mathID    = "5f1d7f3e9b1e8a3c4d5e6fa1"
	scienceID = "5f1d7f3e9b1e8a3c4d5e6fa2"
)

func testConfig() *core.Config {
	return &core.Config{
		Discovery: core.DiscoveryConfig{
			PrimaryCollection:  "students",
			ScoreCollection:    "marks",
			CategoryCollection: "subjects",
		},
		Marksheet: core.MarksheetConfig{
			TemplateCollection: "marksheet_templates",
			Collection:         "marksheets",
		},
	}
}

func newValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func setup(t *testing.T) (*Service, *inmemdb.DB) {
	t.Helper()
	db := inmemdb.Open()
	return NewService(db, newValidator(), testConfig()), db
}

func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	orig := NowFunc
	NowFunc = func() time.Time { return at }
	t.Cleanup(func() { NowFunc = orig })
}

// seedSchool stores one student with two Math tests (40/50 and 35/50) and no Science marks.
func seedSchool(t *testing.T, db core.DocumentStore) {
	t.Helper()
	testutil.InsertDocs(t, db, "students",
		core.Document{core.IDKey: student, core.TenantKey: tenant, "firstName": "Ada", "lastName": "Lovelace"},
	)
	testutil.InsertDocs(t, db, "subjects",
		core.Document{core.IDKey: mathID, core.TenantKey: tenant, "name": "Math"},
		core.Document{core.IDKey: scienceID, core.TenantKey: tenant, "name": "Science"},
	)
	testutil.InsertDocs(t, db, "marks",
		core.Document{
			core.TenantKey: tenant,
			"subjectId":    mathID,
			"subjectName":  "Math",
			"maxMarks":     50,
			"studentMarks": map[string]interface{}{student: map[string]interface{}{"marks": 40}},
		},
		core.Document{
			core.TenantKey: tenant,
			"subjectId":    mathID,
			"maxMarks":     50,
			"studentMarks": map[string]interface{}{student: map[string]interface{}{"marks": 35}},
		},
		core.Document{
			core.TenantKey: "tenant-2",
			"subjectId":    scienceID,
			"studentId":    student,
			"marks":        90,
			"maxMarks":     100,
		},
	)
}

func createTemplate(t *testing.T, svc *Service) Template {
	t.Helper()
	tmpl, err := svc.CreateTemplate(context.Background(), tenant, TemplateDef{
		Name:      "Term 1",
		ClassName: "Grade 5",
		Slots:     []Slot{{Name: "Math", MaxMarks: 100}, {Name: "Science", MaxMarks: 100}},
	})
	require.NoError(t, err)
	return tmpl
}

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	return fields
}

func TestService_Templates(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tmpl := createTemplate(t, svc)
	assert.NotEmpty(t, tmpl.ID)

	got, err := svc.GetTemplate(ctx, tenant, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Term 1", got.Name)
	assert.Equal(t, "Grade 5", got.ClassName)
	assert.Equal(t, []Slot{{Name: "Math", MaxMarks: 100}, {Name: "Science", MaxMarks: 100}}, got.Slots)

	_, err = svc.GetTemplate(ctx, "tenant-2", tmpl.ID)
	assert.Equal(t, ErrTemplateNotFound, err)

	updated, err := svc.UpdateTemplate(ctx, tenant, tmpl.ID, TemplateDef{
		Name:  " A Term ",
		Slots: []Slot{{ID: mathID, Name: "Math", MaxMarks: 50}},
	})
	require.NoError(t, err)
	assert.Equal(t, "A Term", updated.Name)
	assert.Equal(t, []Slot{{ID: mathID, Name: "Math", MaxMarks: 50}}, updated.Slots)

	_, err = svc.UpdateTemplate(ctx, tenant, scienceID, TemplateDef{Name: "x", Slots: []Slot{{Name: "Math"}}})
	assert.Equal(t, ErrTemplateNotFound, err)

	second, err := svc.CreateTemplate(ctx, tenant, TemplateDef{Name: "B Term", Slots: []Slot{{Name: "Art"}}})
	require.NoError(t, err)
	list, err := svc.ListTemplates(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, tmpl.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	require.NoError(t, svc.DeleteTemplate(ctx, tenant, tmpl.ID))
	assert.Equal(t, ErrTemplateNotFound, svc.DeleteTemplate(ctx, tenant, tmpl.ID))
	_, err = svc.GetTemplate(ctx, tenant, tmpl.ID)
	assert.Equal(t, ErrTemplateNotFound, err)
}

func TestTemplateDef_Validate(t *testing.T) {
	validate := newValidator()
	tests := []struct {
		name    string
		def     TemplateDef
		wantErr bool
	}{
		{name: "valid", def: TemplateDef{Name: "T", Slots: []Slot{{Name: "Math"}, {Name: "Art", MaxMarks: 20}}}},
		{name: "blank name", def: TemplateDef{Name: "  ", Slots: []Slot{{Name: "Math"}}}, wantErr: true},
		{name: "no slots", def: TemplateDef{Name: "T"}, wantErr: true},
		{name: "blank slot", def: TemplateDef{Name: "T", Slots: []Slot{{Name: " "}}}, wantErr: true},
		{name: "negative maximum", def: TemplateDef{Name: "T", Slots: []Slot{{Name: "Math", MaxMarks: -1}}}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate(validate)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("duplicate slot names", func(t *testing.T) {
		def := TemplateDef{Name: "T", Slots: []Slot{{Name: "Math"}, {Name: " math "}}}
		err := def.Validate(validate)
		assert.Equal(t, []string{"slots[1].name"}, validationFields(t, err))
		assert.Equal(t, ErrDuplicateSlot, errors.Cause(err).(*core.ValidationError).Err)
	})
}

func TestService_Preview(t *testing.T) {
	svc, db := setup(t)
	seedSchool(t, db)
	tmpl := createTemplate(t, svc)

	preview, err := svc.Preview(context.Background(), tenant, Request{TemplateID: tmpl.ID, StudentID: student})
	require.NoError(t, err)
	require.Len(t, preview.Slots, 2)

	math := preview.Slots[0]
	require.True(t, math.Resolved())
	assert.Equal(t, StrategyName, math.Strategy)
	assert.Equal(t, 75.0, math.Score.Obtained)
	assert.Equal(t, 100.0, math.Score.Maximum)

	science := preview.Slots[1]
	assert.Equal(t, "Science", science.Name)
	assert.False(t, science.Resolved(), "marks of another tenant must not resolve")
	assert.Equal(t, []ResolvedSlot{science}, preview.Unresolved())

	_, err = svc.Preview(context.Background(), tenant, Request{TemplateID: tmpl.ID})
	assert.Error(t, err)
	_, err = svc.Preview(context.Background(), tenant, Request{TemplateID: mathID, StudentID: student})
	assert.Equal(t, ErrTemplateNotFound, err)
}

func TestService_Generate(t *testing.T) {
	svc, db := setup(t)
	seedSchool(t, db)
	tmpl := createTemplate(t, svc)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	freezeTime(t, now)
	ctx := context.Background()
	req := Request{TemplateID: tmpl.ID, StudentID: student}

	t.Run("unfilled slot", func(t *testing.T) {
		_, err := svc.Generate(ctx, tenant, GenerateRequest{Request: req})
		assert.Equal(t, []string{"overrides.Science"}, validationFields(t, err))
		assert.Empty(t, testutil.FindAll(t, db, "marksheets", core.Filter{}))
	})

	t.Run("invalid overrides", func(t *testing.T) {
		_, err := svc.Generate(ctx, tenant, GenerateRequest{Request: req, Overrides: map[string]float64{"Science": 120}})
		assert.Equal(t, []string{"overrides.Science"}, validationFields(t, err))

		_, err = svc.Generate(ctx, tenant, GenerateRequest{Request: req, Overrides: map[string]float64{"science": 60, "Art": 5}})
		assert.Equal(t, []string{"overrides.Art"}, validationFields(t, err))
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := svc.Generate(ctx, tenant, GenerateRequest{Request: Request{TemplateID: tmpl.ID, StudentID: mathID}})
		assert.Equal(t, ErrStudentNotFound, err)
	})

	t.Run("generated", func(t *testing.T) {
		ms, err := svc.Generate(ctx, tenant, GenerateRequest{Request: req, Overrides: map[string]float64{"science": 60}})
		require.NoError(t, err)
		assert.NotEmpty(t, ms.ID)
		assert.Equal(t, "Ada Lovelace", ms.StudentName)
		assert.Equal(t, "Term 1", ms.TemplateName)
		assert.Equal(t, []Row{
			{Subject: "Math", SubjectID: mathID, Obtained: 75, Maximum: 100, Percentage: 75, Source: StrategyName},
			{Subject: "Science", Obtained: 60, Maximum: 100, Percentage: 60, Source: SourceOverride},
		}, ms.Rows)
		assert.Equal(t, 135.0, ms.Obtained)
		assert.Equal(t, 200.0, ms.Maximum)
		assert.Equal(t, 67.5, ms.Percentage)
		assert.Equal(t, now, ms.CreatedAt)

		got, err := svc.Get(ctx, tenant, ms.ID)
		require.NoError(t, err)
		assert.Equal(t, ms, got)

		_, err = svc.Get(ctx, "tenant-2", ms.ID)
		assert.Equal(t, ErrNotFound, err)

		list, err := svc.List(ctx, tenant, ListOptions{StudentID: student})
		require.NoError(t, err)
		assert.Equal(t, []Marksheet{ms}, list)
		list, err = svc.List(ctx, tenant, ListOptions{TemplateID: mathID})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestBuildRows_keepsRawMarks(t *testing.T) {
	tests := []struct {
		name  string
		slot  Slot
		score Score
		want  Row
	}{
		{
			name:  "slot maximum above the score maximum",
			slot:  Slot{Name: "Math", MaxMarks: 100},
			score: Score{CategoryID: mathID, Obtained: 40, Maximum: 50},
			want:  Row{Subject: "Math", SubjectID: mathID, Obtained: 40, Maximum: 50, Percentage: 80, Source: StrategyFuzzy},
		},
		{
			name:  "slot maximum below the score maximum",
			slot:  Slot{Name: "Math", MaxMarks: 50},
			score: Score{CategoryID: mathID, Obtained: 75, Maximum: 100},
			want:  Row{Subject: "Math", SubjectID: mathID, Obtained: 75, Maximum: 100, Percentage: 75, Source: StrategyFuzzy},
		},
		{
			name:  "slot without maximum",
			slot:  Slot{Name: "Math"},
			score: Score{CategoryID: mathID, Obtained: 33, Maximum: 40},
			want:  Row{Subject: "Math", SubjectID: mathID, Obtained: 33, Maximum: 40, Percentage: 82.5, Source: StrategyFuzzy},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := tt.score
			rows, err := buildRows([]ResolvedSlot{{Slot: tt.slot, Score: &score, Strategy: StrategyFuzzy}}, nil)
			require.NoError(t, err)
			assert.Equal(t, []Row{tt.want}, rows)
		})
	}
}

func TestExportXLSX(t *testing.T) {
	ms := Marksheet{
		StudentID:    student,
		StudentName:  "Ada Lovelace",
		TemplateName: "Term 1",
		ClassName:    "Grade 5",
		Rows: []Row{
			{Subject: "Math", Obtained: 75, Maximum: 100, Percentage: 75, Source: StrategyName},
			{Subject: "Science", Obtained: 60, Maximum: 100, Percentage: 60, Source: SourceOverride},
		},
		Obtained:   135,
		Maximum:    200,
		Percentage: 67.5,
	}
	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(ms, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.True(t, len(rows) > 6)
	assert.Equal(t, []string{"Student", "Ada Lovelace"}, rows[0])
	assert.Equal(t, []string{"Subject", "Obtained", "Maximum", "Percentage", "Source"}, rows[5])
	assert.Equal(t, "Math", rows[6][0])
	assert.Equal(t, "Science", rows[7][0])
	assert.Equal(t, "Total", rows[len(rows)-1][0])
}
