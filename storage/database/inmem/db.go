package inmemdb

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database/docutil"
)

type (
	// DB is an in-memory core.DocumentStore. Documents are deep-copied on the way in and out.
	DB struct {
		mutex       sync.RWMutex
		collections map[string]*table
	}

	table struct {
		order []string
		rows  map[string]core.Document
	}
)

var _ core.DocumentStore = (*DB)(nil)

func Open() *DB {
	return &DB{collections: make(map[string]*table)}
}

func (db *DB) table(name string, create bool) *table {
	t, ok := db.collections[name]
	if !ok && create {
		t = &table{rows: make(map[string]core.Document)}
		db.collections[name] = t
	}
	return t
}

// query returns the matching rows in insertion order, without copying them.
func (t *table) query(filter core.Filter) []core.Document {
	if t == nil {
		return nil
	}
	docs := make([]core.Document, 0, len(t.order))
	for _, id := range t.order {
		if doc := t.rows[id]; docutil.Match(doc, filter) {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (t *table) insert(doc core.Document) string {
	id := doc.ID()
	if id == "" {
		id = primitive.NewObjectID().Hex()
		doc[core.IDKey] = id
	}
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = doc
	return id
}

func (t *table) delete(ids map[string]bool) {
	order := t.order[:0]
	for _, id := range t.order {
		if ids[id] {
			delete(t.rows, id)
			continue
		}
		order = append(order, id)
	}
	t.order = order
}

func copyAll(docs []core.Document, limit int) []core.Document {
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	out := make([]core.Document, len(docs))
	for i, doc := range docs {
		out[i] = docutil.Copy(doc)
	}
	return out
}

func apply(doc core.Document, set core.Document) {
	for path, v := range docutil.Copy(set) {
		docutil.Assign(doc, path, v)
	}
}

func (db *DB) FindSample(_ context.Context, collection string, filter core.Filter, limit int) ([]core.Document, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return copyAll(db.table(collection, false).query(filter), limit), nil
}

func (db *DB) Find(_ context.Context, collection string, filter core.Filter, opts ...core.FindOptions) ([]core.Document, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	docs := db.table(collection, false).query(filter)
	var opt core.FindOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	docutil.Sort(docs, opt.Sort)
	return copyAll(docs, opt.Limit), nil
}

func (db *DB) FindOne(_ context.Context, collection string, filter core.Filter) (core.Document, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	docs := db.table(collection, false).query(filter)
	if len(docs) == 0 {
		return nil, core.ErrNoDocument
	}
	return docutil.Copy(docs[0]), nil
}

func (db *DB) InsertOne(_ context.Context, collection string, doc core.Document) (string, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.table(collection, true).insert(docutil.Copy(doc)), nil
}

func (db *DB) UpdateOne(_ context.Context, collection string, filter core.Filter, set core.Document) (int64, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	docs := db.table(collection, false).query(filter)
	if len(docs) == 0 {
		return 0, nil
	}
	apply(docs[0], set)
	return 1, nil
}

func (db *DB) UpsertMany(_ context.Context, collection string, ops []core.Upsert) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	t := db.table(collection, true)
	for _, op := range ops {
		if docs := t.query(op.Filter); len(docs) > 0 {
			apply(docs[0], op.Set)
			continue
		}
		doc := docutil.EqualityFields(op.Filter)
		apply(doc, op.SetOnInsert)
		apply(doc, op.Set)
		t.insert(doc)
	}
	return nil
}

func (db *DB) DeleteOne(_ context.Context, collection string, filter core.Filter) (int64, error) {
	return db.delete(collection, filter, 1)
}

func (db *DB) DeleteMany(_ context.Context, collection string, filter core.Filter) (int64, error) {
	return db.delete(collection, filter, 0)
}

func (db *DB) delete(collection string, filter core.Filter, limit int) (int64, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	t := db.table(collection, false)
	docs := t.query(filter)
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	if len(docs) == 0 {
		return 0, nil
	}
	ids := make(map[string]bool, len(docs))
	for _, doc := range docs {
		ids[doc.ID()] = true
	}
	t.delete(ids)
	return int64(len(ids)), nil
}

func (db *DB) Ping(context.Context) error { return nil }

func (db *DB) Close(context.Context) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.collections = make(map[string]*table)
	return nil
}
