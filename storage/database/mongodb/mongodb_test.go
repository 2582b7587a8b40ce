package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/academia/core"
)

func TestToBSONFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	other := primitive.NewObjectID()

	got := toBSONFilter(core.Filter{
		core.IDKey:        core.Filter{core.OpIn: []interface{}{oid.Hex(), other.Hex(), "not-an-id"}},
		core.TenantKey:    "t1",
		"customKeySet":    core.Filter{core.OpExists: false},
		"studentMarks.id": oid.Hex(),
	})

	assert.Equal(t, bson.M{core.OpIn: bson.A{oid, other, "not-an-id"}}, got[core.IDKey])
	assert.Equal(t, "t1", got[core.TenantKey])
	assert.Equal(t, bson.M{core.OpExists: false}, got["customKeySet"])
	assert.Equal(t, oid.Hex(), got["studentMarks.id"], "only _id is converted")
}

func TestNormalize(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2023, 9, 1, 8, 0, 0, 0, time.UTC)

	doc := normalizeDoc(bson.M{
		"_id":   oid,
		"age":   int32(14),
		"born":  primitive.NewDateTimeFromTime(when),
		"tags":  bson.A{"x", int32(1)},
		"marks": bson.D{{Key: "math", Value: bson.M{"score": 12.5}}},
		"none":  nil,
	})

	assert.Equal(t, oid.Hex(), doc.ID())
	assert.Equal(t, int64(14), doc["age"])
	assert.True(t, when.Equal(doc["born"].(time.Time)))
	assert.Equal(t, []interface{}{"x", int64(1)}, doc["tags"])
	assert.Equal(t, map[string]interface{}{"math": map[string]interface{}{"score": 12.5}}, doc["marks"])
	assert.Nil(t, doc["none"])
}

func TestLiveness_check(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLiveness(time.Minute)
	l.now = func() time.Time { return now }

	calls := 0
	errDown := errors.New("down")
	var result error
	ping := func(context.Context) error {
		calls++
		return result
	}
	ctx := context.Background()

	assert.NoError(t, l.check(ctx, ping))
	result = errDown
	assert.NoError(t, l.check(ctx, ping), "cached within ttl")
	assert.Equal(t, 1, calls)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, errDown, l.check(ctx, ping))
	assert.Equal(t, errDown, l.check(ctx, ping), "failures are not cached")
	assert.Equal(t, 3, calls)

	result = nil
	assert.NoError(t, l.check(ctx, ping))
	assert.Equal(t, 4, calls)
}

func TestWrapErr(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantShutdown bool
		wantMsg      string
	}{
		{name: "disconnected client", err: mongo.ErrClientDisconnected, wantShutdown: true, wantMsg: "querying students: client is disconnected"},
		{name: "wrapped disconnect", err: fmt.Errorf("selecting server: %w", mongo.ErrClientDisconnected), wantShutdown: true},
		{name: "other error", err: errors.New("boom"), wantMsg: "querying students: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapErr(tt.err, "querying %s", "students")
			assert.Equal(t, tt.wantShutdown, core.IsShutdown(err))
			if tt.wantMsg != "" {
				assert.EqualError(t, err, tt.wantMsg)
			}
		})
	}
}

func TestDB_closed(t *testing.T) {
	ctx := context.Background()
	conf := &core.Config{AppName: "academia-test"}
	conf.Database.URI = "mongodb://127.0.0.1:27017/?serverSelectionTimeoutMS=200"
	conf.Database.Name = "academia_test"

	db, err := Open(ctx, conf)
	require.NoError(t, err)
	require.NoError(t, db.Close(ctx))

	_, err = db.Find(ctx, "students", core.Filter{core.TenantKey: "t1"})
	assert.True(t, core.IsShutdown(err), "got %v", err)
}
