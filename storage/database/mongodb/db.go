package mongodb

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/trezcool/academia/core"
)

// DB is the MongoDB core.DocumentStore.
type DB struct {
	client   *mongo.Client
	db       *mongo.Database
	liveness *liveness
}

var _ core.DocumentStore = (*DB)(nil)

func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.Database.URI, "database.uri"),
		vala.StringNotEmpty(conf.Database.Name, "database.name"),
	).Check(); err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Database.URI).SetAppName(conf.AppName))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	return &DB{
		client:   client,
		db:       client.Database(conf.Database.Name),
		liveness: newLiveness(conf.Database.PingTTL),
	}, nil
}

// wrapErr annotates a driver error; a disconnected client is reported as a shutdown.
func wrapErr(err error, format string, args ...interface{}) error {
	wrapped := errors.Wrapf(err, format, args...)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return core.NewShutdownError(wrapped.Error())
	}
	return wrapped
}

func (db *DB) find(ctx context.Context, collection string, filter core.Filter, opts *options.FindOptions) ([]core.Document, error) {
	cur, err := db.db.Collection(collection).Find(ctx, toBSONFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err = cur.All(ctx, &raw); err != nil {
		return nil, err
	}
	docs := make([]core.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, normalizeDoc(m))
	}
	return docs, nil
}

func (db *DB) FindSample(ctx context.Context, collection string, filter core.Filter, limit int) ([]core.Document, error) {
	docs, err := db.find(ctx, collection, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, wrapErr(err, "sampling %s", collection)
	}
	return docs, nil
}

func (db *DB) Find(ctx context.Context, collection string, filter core.Filter, opts ...core.FindOptions) ([]core.Document, error) {
	findOpts := options.Find()
	if len(opts) > 0 {
		if len(opts[0].Sort) > 0 {
			sort := make(bson.D, 0, len(opts[0].Sort))
			for _, ord := range opts[0].Sort {
				dir := -1
				if ord.Ascending {
					dir = 1
				}
				sort = append(sort, bson.E{Key: ord.Field, Value: dir})
			}
			findOpts.SetSort(sort)
		}
		if opts[0].Limit > 0 {
			findOpts.SetLimit(int64(opts[0].Limit))
		}
	}
	docs, err := db.find(ctx, collection, filter, findOpts)
	if err != nil {
		return nil, wrapErr(err, "querying %s", collection)
	}
	return docs, nil
}

func (db *DB) FindOne(ctx context.Context, collection string, filter core.Filter) (core.Document, error) {
	var m bson.M
	err := db.db.Collection(collection).FindOne(ctx, toBSONFilter(filter)).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.ErrNoDocument
	}
	if err != nil {
		return nil, wrapErr(err, "querying %s", collection)
	}
	return normalizeDoc(m), nil
}

func (db *DB) InsertOne(ctx context.Context, collection string, doc core.Document) (string, error) {
	in := toBSONDoc(doc)
	res, err := db.db.Collection(collection).InsertOne(ctx, in)
	if err != nil {
		return "", wrapErr(err, "inserting into %s", collection)
	}
	id, _ := normalize(res.InsertedID).(string)
	return id, nil
}

func (db *DB) UpdateOne(ctx context.Context, collection string, filter core.Filter, set core.Document) (int64, error) {
	res, err := db.db.Collection(collection).UpdateOne(ctx, toBSONFilter(filter), bson.M{"$set": toBSONDoc(set)})
	if err != nil {
		return 0, wrapErr(err, "updating %s", collection)
	}
	return res.MatchedCount, nil
}

func (db *DB) UpsertMany(ctx context.Context, collection string, ops []core.Upsert) error {
	if len(ops) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(toBSONFilter(op.Filter)).
			SetUpdate(upsertUpdate(op)).
			SetUpsert(true))
	}
	if _, err := db.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return wrapErr(err, "upserting into %s", collection)
	}
	return nil
}

func upsertUpdate(op core.Upsert) bson.M {
	update := bson.M{}
	if len(op.Set) > 0 {
		update["$set"] = toBSONDoc(op.Set)
	}
	if len(op.SetOnInsert) > 0 {
		update["$setOnInsert"] = toBSONDoc(op.SetOnInsert)
	}
	return update
}

func (db *DB) DeleteOne(ctx context.Context, collection string, filter core.Filter) (int64, error) {
	res, err := db.db.Collection(collection).DeleteOne(ctx, toBSONFilter(filter))
	if err != nil {
		return 0, wrapErr(err, "deleting from %s", collection)
	}
	return res.DeletedCount, nil
}

func (db *DB) DeleteMany(ctx context.Context, collection string, filter core.Filter) (int64, error) {
	res, err := db.db.Collection(collection).DeleteMany(ctx, toBSONFilter(filter))
	if err != nil {
		return 0, wrapErr(err, "deleting from %s", collection)
	}
	return res.DeletedCount, nil
}

// Ping only reaches the server once the last successful answer is older than database.pingTTL.
func (db *DB) Ping(ctx context.Context) error {
	return db.liveness.check(ctx, func(ctx context.Context) error {
		if err := db.client.Ping(ctx, readpref.Primary()); err != nil {
			return wrapErr(err, "pinging mongodb")
		}
		return nil
	})
}

func (db *DB) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}
