// Package record manages the tenant's raw school records (students, subjects and marks)
// that field discovery and marksheets read from.
package record

import (
	"context"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Kinds
const (
	KindStudents = "students"
	KindSubjects = "subjects"
	KindMarks    = "marks"
)

const (
	keyCreatedAt = "createdAt"
	keyUpdatedAt = "updatedAt"

	defaultLimit = 500
)

var (
	// errors
	ErrNotFound    = errors.New("record not found")
	ErrUnknownKind = errors.New("unknown record kind")
	ErrEmptyRecord = errors.New("record has no fields")
	errRequired    = errors.New("this field is required")
	errMarksHolder = errors.New("one of studentMarks or studentId is required")
	errNotAnObject = errors.New("must be an object keyed by student id")

	Kinds = []string{KindStudents, KindSubjects, KindMarks}

	// keys callers may not set
	reservedKeys = []string{core.IDKey, core.TenantKey, keyCreatedAt, keyUpdatedAt}

	NowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type ListOptions struct {
	Limit int `query:"limit"`
	// defaults to createdAt ascending
	Sort []core.DBOrdering `query:"-"`
}

type Service struct {
	store       core.DocumentStore
	collections map[string]string
}

func NewService(store core.DocumentStore, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.StringNotEmpty(conf.Discovery.PrimaryCollection, "discovery.primaryCollection"),
		vala.StringNotEmpty(conf.Discovery.CategoryCollection, "discovery.categoryCollection"),
		vala.StringNotEmpty(conf.Discovery.ScoreCollection, "discovery.scoreCollection"),
	).CheckAndPanic()
	return &Service{
		store: store,
		collections: map[string]string{
			KindStudents: conf.Discovery.PrimaryCollection,
			KindSubjects: conf.Discovery.CategoryCollection,
			KindMarks:    conf.Discovery.ScoreCollection,
		},
	}
}

func (svc *Service) collection(tenantID, kind string) (string, error) {
	if err := core.CheckTenant(tenantID); err != nil {
		return "", err
	}
	coll, ok := svc.collections[kind]
	if !ok {
		return "", ErrUnknownKind
	}
	return coll, nil
}

func (svc *Service) Create(ctx context.Context, tenantID, kind string, data core.Document) (core.Document, error) {
	coll, err := svc.collection(tenantID, kind)
	if err != nil {
		return nil, err
	}
	doc := clean(data)
	if err = validate(kind, doc, false); err != nil {
		return nil, err
	}

	now := NowFunc()
	doc[core.TenantKey] = tenantID
	doc[keyCreatedAt] = now
	doc[keyUpdatedAt] = now
	id, err := svc.store.InsertOne(ctx, coll, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s record", kind)
	}
	doc[core.IDKey] = id
	return doc, nil
}

// List returns at most opts.Limit records, oldest first unless opts.Sort says otherwise.
func (svc *Service) List(ctx context.Context, tenantID, kind string, opts ListOptions) ([]core.Document, error) {
	coll, err := svc.collection(tenantID, kind)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}
	sort := opts.Sort
	if len(sort) == 0 {
		sort = []core.DBOrdering{{Field: keyCreatedAt, Ascending: true}}
	}
	docs, err := svc.store.Find(ctx, coll, core.Filter{core.TenantKey: tenantID}, core.FindOptions{Sort: sort, Limit: limit})
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s records", kind)
	}
	return docs, nil
}

func (svc *Service) Get(ctx context.Context, tenantID, kind, id string) (core.Document, error) {
	coll, err := svc.collection(tenantID, kind)
	if err != nil {
		return nil, err
	}
	doc, err := svc.store.FindOne(ctx, coll, core.Filter{core.TenantKey: tenantID, core.IDKey: id})
	if err != nil {
		if errors.Cause(err) == core.ErrNoDocument {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "querying %s record", kind)
	}
	return doc, nil
}

// Update sets the given top-level fields on the record and returns the updated record.
func (svc *Service) Update(ctx context.Context, tenantID, kind, id string, data core.Document) (core.Document, error) {
	coll, err := svc.collection(tenantID, kind)
	if err != nil {
		return nil, err
	}
	set := clean(data)
	if err = validate(kind, set, true); err != nil {
		return nil, err
	}
	set[keyUpdatedAt] = NowFunc()

	matched, err := svc.store.UpdateOne(ctx, coll, core.Filter{core.TenantKey: tenantID, core.IDKey: id}, set)
	if err != nil {
		return nil, errors.Wrapf(err, "updating %s record", kind)
	}
	if matched == 0 {
		return nil, ErrNotFound
	}
	return svc.Get(ctx, tenantID, kind, id)
}

func (svc *Service) Delete(ctx context.Context, tenantID, kind, id string) error {
	coll, err := svc.collection(tenantID, kind)
	if err != nil {
		return err
	}
	deleted, err := svc.store.DeleteOne(ctx, coll, core.Filter{core.TenantKey: tenantID, core.IDKey: id})
	if err != nil {
		return errors.Wrapf(err, "deleting %s record", kind)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// clean copies `data` without its reserved keys.
func clean(data core.Document) core.Document {
	doc := data.Clone()
	for _, key := range reservedKeys {
		delete(doc, key)
	}
	return doc
}

// validate checks the fields a kind depends on. A partial document only has the fields it carries checked.
func validate(kind string, doc core.Document, partial bool) error {
	if len(doc) == 0 {
		return core.NewValidationError(ErrEmptyRecord)
	}

	var fieldErrs []core.FieldError
	required := func(key string) {
		_, present := doc[key]
		if partial && !present {
			return
		}
		if strings.TrimSpace(doc.String(key)) == "" {
			fieldErrs = append(fieldErrs, core.FieldError{Field: key, Error: errRequired.Error()})
		}
	}

	switch kind {
	case KindSubjects:
		required("name")
	case KindMarks:
		required("subjectId")
		holders, nested := doc["studentMarks"]
		_, flat := doc["studentId"]
		switch {
		case nested:
			if _, ok := holders.(map[string]interface{}); !ok {
				fieldErrs = append(fieldErrs, core.FieldError{Field: "studentMarks", Error: errNotAnObject.Error()})
			}
		case flat:
			required("studentId")
		case !partial:
			fieldErrs = append(fieldErrs, core.FieldError{Field: "studentMarks", Error: errMarksHolder.Error()})
		}
	}

	if len(fieldErrs) > 0 {
		return core.NewValidationError(nil, fieldErrs...)
	}
	return nil
}
