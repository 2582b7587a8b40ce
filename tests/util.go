package testutil

import (
	"context"
	"testing"

	"github.com/trezcool/academia/core"
)

// InsertDocs stores the documents in `collection` and returns their ids in order.
func InsertDocs(t *testing.T, store core.DocumentStore, collection string, docs ...core.Document) []string {
	t.Helper()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := store.InsertOne(context.Background(), collection, doc)
		if err != nil {
			t.Fatalf("InsertDocs() failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

// FindAll returns every document of `collection` matching the filter.
func FindAll(t *testing.T, store core.DocumentStore, collection string, filter core.Filter) []core.Document {
	t.Helper()
	docs, err := store.Find(context.Background(), collection, filter)
	if err != nil {
		t.Fatalf("FindAll() failed: %v", err)
	}
	return docs
}
