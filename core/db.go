package core

import (
	"context"
	"errors"
	"strings"

	"github.com/kat-co/vala"
)

// Filter operators understood by every DocumentStore.
const (
	OpIn     = "$in"
	OpNe     = "$ne"
	OpExists = "$exists"

	IDKey     = "_id"
	TenantKey = "managementId"
)

var ErrNoDocument = errors.New("document not found")

type (
	// Document is a schemaless record. Values are normalized by the stores to:
	// string, bool, int64/int/float64, time.Time, []interface{}, map[string]interface{} or nil.
	// The `_id` key always holds a hex string.
	Document map[string]interface{}

	// Filter matches documents by (dotted) path. A value is either compared for equality
	// or is a map of operators, e.g. Filter{"_id": Filter{OpIn: []interface{}{...}}}.
	Filter map[string]interface{}

	// Upsert updates the first document matching Filter with Set,
	// or inserts Filter's equality fields + SetOnInsert + Set when there is none.
	Upsert struct {
		Filter      Filter
		Set         Document
		SetOnInsert Document
	}

	FindOptions struct {
		Sort  []DBOrdering
		Limit int
	}

	DocumentStore interface {
		// FindSample is a bounded, unordered read.
		FindSample(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)
		Find(ctx context.Context, collection string, filter Filter, opts ...FindOptions) ([]Document, error)
		// FindOne returns ErrNoDocument when nothing matches.
		FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
		InsertOne(ctx context.Context, collection string, doc Document) (string, error)
		UpdateOne(ctx context.Context, collection string, filter Filter, set Document) (int64, error)
		UpsertMany(ctx context.Context, collection string, ops []Upsert) error
		DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)
		DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
		Ping(ctx context.Context) error
		Close(ctx context.Context) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// TenantFilter scopes `filter` to a tenant. The given filter is not modified.
func TenantFilter(tenantID string, filter Filter) Filter {
	f := make(Filter, len(filter)+1)
	for k, v := range filter {
		f[k] = v
	}
	f[TenantKey] = tenantID
	return f
}

// CheckTenant rejects a blank tenant id.
func CheckTenant(tenantID string) error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(strings.TrimSpace(tenantID), "tenantId"),
	).Check()
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// ID returns the document identifier or "".
func (d Document) ID() string {
	id, _ := d[IDKey].(string)
	return id
}

// String returns the string at `key` or "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}
