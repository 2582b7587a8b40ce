// Package postgres stores documents as JSONB rows of a single `documents` table.
// SQL narrows rows by collection, tenant and id; the rest of a filter is evaluated in Go.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kat-co/vala"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database/docutil"
)

const (
	selectDocuments = `SELECT id, collection, management_id, body, created_at, updated_at FROM documents WHERE collection = $1`
	orderDocuments  = ` ORDER BY created_at, id`
	insertDocument  = `INSERT INTO documents (id, collection, management_id, body, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`
	updateDocument  = `UPDATE documents SET management_id = $1, body = $2, updated_at = $3 WHERE id = $4`
	deleteDocuments = `DELETE FROM documents WHERE id = ANY($1)`
)

type (
	DB struct {
		db  *sqlx.DB
		now func() time.Time // mockable
	}

	row struct {
		ID           string      `db:"id"`
		Collection   string      `db:"collection"`
		ManagementID null.String `db:"management_id"`
		Body         []byte      `db:"body"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
	}

	queryer interface {
		sqlx.QueryerContext
		sqlx.ExecerContext
	}
)

var _ core.DocumentStore = (*DB)(nil)

func Open(conf *core.Config) (*DB, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.Database.PostgresDSN, "database.postgresDSN"),
	).Check(); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("postgres", conf.Database.PostgresDSN)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	return New(db), nil
}

func New(db *sqlx.DB) *DB {
	return &DB{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// SQL exposes the underlying connection pool (migrations).
func (db *DB) SQL() *sqlx.DB { return db.db }

func selectQuery(collection string, filter core.Filter) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(selectDocuments)
	args := []interface{}{collection}

	if tenant, ok := filter[core.TenantKey].(string); ok {
		args = append(args, tenant)
		fmt.Fprintf(&sb, " AND management_id = $%d", len(args))
	}
	switch id := filter[core.IDKey].(type) {
	case string:
		args = append(args, id)
		fmt.Fprintf(&sb, " AND id = $%d", len(args))
	case core.Filter:
		if ids, ok := stringList(id[core.OpIn]); ok && len(id) == 1 {
			args = append(args, pq.Array(ids))
			fmt.Fprintf(&sb, " AND id = ANY($%d)", len(args))
		}
	}
	sb.WriteString(orderDocuments)
	return sb.String(), args
}

func stringList(v interface{}) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func (db *DB) query(ctx context.Context, q queryer, collection string, filter core.Filter) ([]core.Document, error) {
	query, args := selectQuery(collection, filter)
	var rows []row
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	docs := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := docutil.UnmarshalJSON(r.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s/%s", collection, r.ID)
		}
		doc[core.IDKey] = r.ID
		if docutil.Match(doc, filter) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (db *DB) FindSample(ctx context.Context, collection string, filter core.Filter, limit int) ([]core.Document, error) {
	docs, err := db.query(ctx, db.db, collection, filter)
	if err != nil {
		return nil, errors.Wrapf(err, "sampling %s", collection)
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (db *DB) Find(ctx context.Context, collection string, filter core.Filter, opts ...core.FindOptions) ([]core.Document, error) {
	docs, err := db.query(ctx, db.db, collection, filter)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", collection)
	}
	if len(opts) > 0 {
		docutil.Sort(docs, opts[0].Sort)
		if opts[0].Limit > 0 && len(docs) > opts[0].Limit {
			docs = docs[:opts[0].Limit]
		}
	}
	return docs, nil
}

func (db *DB) FindOne(ctx context.Context, collection string, filter core.Filter) (core.Document, error) {
	docs, err := db.query(ctx, db.db, collection, filter)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", collection)
	}
	if len(docs) == 0 {
		return nil, core.ErrNoDocument
	}
	return docs[0], nil
}

func (db *DB) insert(ctx context.Context, q queryer, collection string, doc core.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}
	body, tenant, err := encode(doc)
	if err != nil {
		return "", err
	}
	if _, err = q.ExecContext(ctx, insertDocument, id, collection, tenant, body, db.now()); err != nil {
		return "", err
	}
	return id, nil
}

func (db *DB) update(ctx context.Context, q queryer, doc core.Document) error {
	body, tenant, err := encode(doc)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, updateDocument, tenant, body, db.now(), doc.ID())
	return err
}

func encode(doc core.Document) ([]byte, null.String, error) {
	body := doc.Clone()
	delete(body, core.IDKey)
	data, err := docutil.MarshalJSON(body)
	if err != nil {
		return nil, null.String{}, errors.Wrap(err, "encoding document")
	}
	tenant := null.String{}
	if t, ok := doc[core.TenantKey].(string); ok {
		tenant = null.StringFrom(t)
	}
	return data, tenant, nil
}

func (db *DB) InsertOne(ctx context.Context, collection string, doc core.Document) (string, error) {
	id, err := db.insert(ctx, db.db, collection, doc)
	if err != nil {
		return "", errors.Wrapf(err, "inserting into %s", collection)
	}
	return id, nil
}

func (db *DB) UpdateOne(ctx context.Context, collection string, filter core.Filter, set core.Document) (int64, error) {
	var matched int64
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		docs, err := db.query(ctx, tx, collection, filter)
		if err != nil || len(docs) == 0 {
			return err
		}
		matched = 1
		return db.update(ctx, tx, apply(docs[0], set))
	})
	if err != nil {
		return 0, errors.Wrapf(err, "updating %s", collection)
	}
	return matched, nil
}

func (db *DB) UpsertMany(ctx context.Context, collection string, ops []core.Upsert) error {
	if len(ops) == 0 {
		return nil
	}
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, op := range ops {
			docs, err := db.query(ctx, tx, collection, op.Filter)
			if err != nil {
				return err
			}
			if len(docs) > 0 {
				if err = db.update(ctx, tx, apply(docs[0], op.Set)); err != nil {
					return err
				}
				continue
			}
			doc := apply(apply(docutil.EqualityFields(op.Filter), op.SetOnInsert), op.Set)
			if _, err = db.insert(ctx, tx, collection, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "upserting into %s", collection)
	}
	return nil
}

func (db *DB) DeleteOne(ctx context.Context, collection string, filter core.Filter) (int64, error) {
	return db.delete(ctx, collection, filter, 1)
}

func (db *DB) DeleteMany(ctx context.Context, collection string, filter core.Filter) (int64, error) {
	return db.delete(ctx, collection, filter, 0)
}

func (db *DB) delete(ctx context.Context, collection string, filter core.Filter, limit int) (int64, error) {
	var deleted int64
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		docs, err := db.query(ctx, tx, collection, filter)
		if err != nil {
			return err
		}
		if limit > 0 && len(docs) > limit {
			docs = docs[:limit]
		}
		if len(docs) == 0 {
			return nil
		}
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, doc.ID())
		}
		res, err := tx.ExecContext(ctx, deleteDocuments, pq.Array(ids))
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "deleting from %s", collection)
	}
	return deleted, nil
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func apply(doc core.Document, set core.Document) core.Document {
	for path, v := range docutil.Copy(set) {
		docutil.Assign(doc, path, v)
	}
	return doc
}

func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *DB) Close(context.Context) error {
	return db.db.Close()
}
