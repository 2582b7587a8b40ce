package marksheet

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrTemplateNotFound = errors.New("marksheet template not found")
	ErrNotFound         = errors.New("marksheet not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrDuplicateSlot    = errors.New("slot names must be unique within a template")
	ErrUnfilledSlots    = errors.New("every subject must have marks before the marksheet can be generated")
	ErrUnknownSlot      = errors.New("no subject slot with this name in the template")
	ErrMarksOutOfRange  = errors.New("marks must be between 0 and the subject's maximum marks")

	NowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

// stored document keys
const (
	keyClassName    = "className"
	keySlots        = "slots"
	keySlotID       = "id"
	keyTemplateID   = "templateId"
	keyTemplateName = "templateName"
	keyStudentName  = "studentName"
	keyRows         = "rows"
	keySubject      = "subject"
	keyPercentage   = "percentage"
	keyMaximum      = "maximum"
	keySource       = "source"
	keyCreatedAt    = "createdAt"
	keyUpdatedAt    = "updatedAt"
)

// Service manages marksheet templates and generates marksheets from the tenant's marks.
type Service struct {
	store      core.DocumentStore
	validate   *validator.Validate
	templates  string
	marksheets string
	students   string
	subjects   string
	marks      string
}

func NewService(store core.DocumentStore, validate *validator.Validate, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(validate, "validate"),
		vala.StringNotEmpty(conf.Marksheet.TemplateCollection, "marksheet.templateCollection"),
		vala.StringNotEmpty(conf.Marksheet.Collection, "marksheet.collection"),
		vala.StringNotEmpty(conf.Discovery.PrimaryCollection, "discovery.primaryCollection"),
		vala.StringNotEmpty(conf.Discovery.CategoryCollection, "discovery.categoryCollection"),
		vala.StringNotEmpty(conf.Discovery.ScoreCollection, "discovery.scoreCollection"),
	).CheckAndPanic()
	return &Service{
		store:      store,
		validate:   validate,
		templates:  conf.Marksheet.TemplateCollection,
		marksheets: conf.Marksheet.Collection,
		students:   conf.Discovery.PrimaryCollection,
		subjects:   conf.Discovery.CategoryCollection,
		marks:      conf.Discovery.ScoreCollection,
	}
}

// Templates

func (svc *Service) CreateTemplate(ctx context.Context, tenantID string, def TemplateDef) (Template, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return Template{}, err
	}
	if err := def.Validate(svc.validate); err != nil {
		return Template{}, err
	}
	now := NowFunc()
	doc := templateToDoc(def)
	doc[core.TenantKey] = tenantID
	doc[keyCreatedAt] = now
	doc[keyUpdatedAt] = now
	id, err := svc.store.InsertOne(ctx, svc.templates, doc)
	if err != nil {
		return Template{}, errors.Wrap(err, "creating marksheet template")
	}
	return Template{
		ID:        id,
		Name:      def.Name,
		ClassName: def.ClassName,
		Slots:     def.Slots,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (svc *Service) UpdateTemplate(ctx context.Context, tenantID, id string, def TemplateDef) (Template, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return Template{}, err
	}
	if err := def.Validate(svc.validate); err != nil {
		return Template{}, err
	}
	set := templateToDoc(def)
	set[keyUpdatedAt] = NowFunc()
	matched, err := svc.store.UpdateOne(ctx, svc.templates, core.Filter{core.TenantKey: tenantID, core.IDKey: id}, set)
	if err != nil {
		return Template{}, errors.Wrap(err, "updating marksheet template")
	}
	if matched == 0 {
		return Template{}, ErrTemplateNotFound
	}
	return svc.GetTemplate(ctx, tenantID, id)
}

func (svc *Service) GetTemplate(ctx context.Context, tenantID, id string) (Template, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return Template{}, err
	}
	doc, err := svc.store.FindOne(ctx, svc.templates, core.Filter{core.TenantKey: tenantID, core.IDKey: id})
	if err != nil {
		if errors.Cause(err) == core.ErrNoDocument {
			return Template{}, ErrTemplateNotFound
		}
		return Template{}, errors.Wrap(err, "querying marksheet template")
	}
	return templateFromDoc(doc), nil
}

func (svc *Service) ListTemplates(ctx context.Context, tenantID string) ([]Template, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return nil, err
	}
	docs, err := svc.store.Find(ctx, svc.templates, core.Filter{core.TenantKey: tenantID},
		core.FindOptions{Sort: []core.DBOrdering{{Field: keyName, Ascending: true}}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying marksheet templates")
	}
	templates := make([]Template, 0, len(docs))
	for _, doc := range docs {
		templates = append(templates, templateFromDoc(doc))
	}
	return templates, nil
}

func (svc *Service) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	if err := core.CheckTenant(tenantID); err != nil {
		return err
	}
	deleted, err := svc.store.DeleteOne(ctx, svc.templates, core.Filter{core.TenantKey: tenantID, core.IDKey: id})
	if err != nil {
		return errors.Wrap(err, "deleting marksheet template")
	}
	if deleted == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Marksheets

// Scores aggregates every mark of the student and returns them with the tenant's subject name → id table.
func (svc *Service) Scores(ctx context.Context, tenantID, studentID string) (map[string]HolderScores, map[string]string, error) {
	subjects, err := svc.store.Find(ctx, svc.subjects, core.Filter{core.TenantKey: tenantID})
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying subjects")
	}
	nameToID := make(map[string]string, len(subjects))
	idToName := make(map[string]string, len(subjects))
	for _, doc := range subjects {
		name := strings.TrimSpace(doc.String(keyName))
		if name == "" {
			continue
		}
		if _, taken := nameToID[name]; !taken {
			nameToID[name] = doc.ID()
		}
		idToName[doc.ID()] = name
	}

	nested, err := svc.store.Find(ctx, svc.marks, core.Filter{
		core.TenantKey:                 tenantID,
		keyHolderMap + "." + studentID: core.Filter{core.OpExists: true},
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying marks")
	}
	flat, err := svc.store.Find(ctx, svc.marks, core.Filter{core.TenantKey: tenantID, keyStudentID: studentID})
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying marks")
	}

	var records []ScoreRecord
	seen := make(map[string]bool, len(nested)+len(flat))
	for _, doc := range append(nested, flat...) {
		if seen[doc.ID()] {
			continue
		}
		seen[doc.ID()] = true
		records = append(records, RecordsFromDoc(doc, studentID, idToName)...)
	}
	return Aggregate(records), nameToID, nil
}

// Preview resolves every slot of the template against the student's aggregated marks.
func (svc *Service) Preview(ctx context.Context, tenantID string, req Request) (Preview, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return Preview{}, err
	}
	if err := req.Validate(svc.validate); err != nil {
		return Preview{}, err
	}
	tmpl, err := svc.GetTemplate(ctx, tenantID, req.TemplateID)
	if err != nil {
		return Preview{}, err
	}
	return svc.resolve(ctx, tenantID, tmpl, req.StudentID)
}

func (svc *Service) resolve(ctx context.Context, tenantID string, tmpl Template, studentID string) (Preview, error) {
	byHolder, nameToID, err := svc.Scores(ctx, tenantID, studentID)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		TemplateID: tmpl.ID,
		StudentID:  studentID,
		Slots:      NewMatcher(nameToID).Resolve(tmpl.Slots, studentID, byHolder),
	}, nil
}

// Generate builds and stores a marksheet. Every slot must be resolved or overridden,
// otherwise a core.ValidationError naming each unfilled slot is returned.
func (svc *Service) Generate(ctx context.Context, tenantID string, req GenerateRequest) (Marksheet, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return Marksheet{}, err
	}
	if err := req.Validate(svc.validate); err != nil {
		return Marksheet{}, err
	}
	student, err := svc.store.FindOne(ctx, svc.students, core.Filter{core.TenantKey: tenantID, core.IDKey: req.StudentID})
	if err != nil {
		if errors.Cause(err) == core.ErrNoDocument {
			return Marksheet{}, ErrStudentNotFound
		}
		return Marksheet{}, errors.Wrap(err, "querying student")
	}
	tmpl, err := svc.GetTemplate(ctx, tenantID, req.TemplateID)
	if err != nil {
		return Marksheet{}, err
	}
	preview, err := svc.resolve(ctx, tenantID, tmpl, req.StudentID)
	if err != nil {
		return Marksheet{}, err
	}

	rows, err := buildRows(preview.Slots, req.Overrides)
	if err != nil {
		return Marksheet{}, err
	}
	ms := Marksheet{
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		ClassName:    tmpl.ClassName,
		StudentID:    req.StudentID,
		StudentName:  StudentName(student),
		Rows:         rows,
		CreatedAt:    NowFunc(),
	}
	for _, row := range rows {
		ms.Obtained += row.Obtained
		ms.Maximum += row.Maximum
	}
	ms.Obtained = Round2(ms.Obtained)
	ms.Maximum = Round2(ms.Maximum)
	ms.Percentage = Score{Obtained: ms.Obtained, Maximum: ms.Maximum}.Percentage()

	doc := marksheetToDoc(ms)
	doc[core.TenantKey] = tenantID
	if ms.ID, err = svc.store.InsertOne(ctx, svc.marksheets, doc); err != nil {
		return Marksheet{}, errors.Wrap(err, "saving marksheet")
	}
	return ms, nil
}

// buildRows turns resolved slots into marksheet rows, applying overrides keyed by slot name.
// Matched scores keep the marks actually obtained; only their percentage is comparable across slots.
func buildRows(slots []ResolvedSlot, overrides map[string]float64) ([]Row, error) {
	byName := make(map[string]float64, len(overrides))
	for name, marks := range overrides {
		byName[nameKey(name)] = marks
	}

	var fieldErrs []core.FieldError
	known := make(map[string]bool, len(slots))
	rows := make([]Row, 0, len(slots))
	for _, rs := range slots {
		key := nameKey(rs.Name)
		known[key] = true
		row := Row{Subject: rs.Name, SubjectID: rs.ID}

		if marks, ok := byName[key]; ok {
			maximum := rs.MaxMarks
			if maximum <= 0 && rs.Score != nil {
				maximum = rs.Score.Maximum
			}
			if marks < 0 || maximum <= 0 || marks > maximum {
				fieldErrs = append(fieldErrs, core.FieldError{Field: "overrides." + rs.Name, Error: ErrMarksOutOfRange.Error()})
				continue
			}
			row.Obtained, row.Maximum, row.Source = marks, maximum, SourceOverride
		} else if rs.Score != nil {
			row.Obtained, row.Maximum, row.Source = rs.Score.Obtained, rs.Score.Maximum, rs.Strategy
			if rs.Score.CategoryID != "" {
				row.SubjectID = rs.Score.CategoryID
			}
		} else {
			fieldErrs = append(fieldErrs, core.FieldError{Field: "overrides." + rs.Name, Error: ErrUnfilledSlots.Error()})
			continue
		}
		row.Percentage = Score{Obtained: row.Obtained, Maximum: row.Maximum}.Percentage()
		rows = append(rows, row)
	}

	for name := range overrides {
		if !known[nameKey(name)] {
			fieldErrs = append(fieldErrs, core.FieldError{Field: "overrides." + name, Error: ErrUnknownSlot.Error()})
		}
	}
	if len(fieldErrs) > 0 {
		return nil, core.NewValidationError(ErrUnfilledSlots, fieldErrs...)
	}
	return rows, nil
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Marksheet, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return Marksheet{}, err
	}
	doc, err := svc.store.FindOne(ctx, svc.marksheets, core.Filter{core.TenantKey: tenantID, core.IDKey: id})
	if err != nil {
		if errors.Cause(err) == core.ErrNoDocument {
			return Marksheet{}, ErrNotFound
		}
		return Marksheet{}, errors.Wrap(err, "querying marksheet")
	}
	return marksheetFromDoc(doc), nil
}

// List returns the tenant's marksheets, newest first.
func (svc *Service) List(ctx context.Context, tenantID string, opts ListOptions) ([]Marksheet, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return nil, err
	}
	filter := core.Filter{core.TenantKey: tenantID}
	if opts.StudentID != "" {
		filter[keyStudentID] = opts.StudentID
	}
	if opts.TemplateID != "" {
		filter[keyTemplateID] = opts.TemplateID
	}
	docs, err := svc.store.Find(ctx, svc.marksheets, filter,
		core.FindOptions{Sort: []core.DBOrdering{{Field: keyCreatedAt, Ascending: false}}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying marksheets")
	}
	sheets := make([]Marksheet, 0, len(docs))
	for _, doc := range docs {
		sheets = append(sheets, marksheetFromDoc(doc))
	}
	return sheets, nil
}

// StudentName reads a display name out of a student document.
func StudentName(doc core.Document) string {
	for _, key := range []string{keyName, "fullName", keyStudentName} {
		if name := strings.TrimSpace(doc.String(key)); name != "" {
			return name
		}
	}
	parts := make([]string, 0, 2)
	for _, key := range []string{"firstName", "lastName"} {
		if s := strings.TrimSpace(doc.String(key)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if nested, ok := asMap(doc[keyStudentName]); ok {
		return StudentName(core.Document(nested))
	}
	return ""
}
