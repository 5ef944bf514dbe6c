// Package mongodb owns the driver connection and exposes the database
// operations the tools are built on.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/cursor"
)

// ErrNotConnected is returned by every operation until Connect succeeds.
var ErrNotConnected = errors.New("not connected to MongoDB: call the connect tool or start the server with a connection string")

const pingTimeout = 10 * time.Second

// DatabaseInfo describes one database on the server.
type DatabaseInfo struct {
	Name       string `json:"name"`
	SizeOnDisk int64  `json:"sizeOnDisk"`
	Empty      bool   `json:"empty"`
}

// FindQuery holds the optional parts of a find.
type FindQuery struct {
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Limit      int64
}

// UpdateResult summarizes an update.
type UpdateResult struct {
	Matched    int64 `json:"matched"`
	Modified   int64 `json:"modified"`
	Upserted   int64 `json:"upserted"`
	UpsertedID any   `json:"upsertedId,omitempty"`
}

// Session is the server's single connection to a deployment. It can be
// re-pointed at a different deployment at runtime.
type Session struct {
	appName string

	mu     sync.RWMutex
	client *mongo.Client
}

// NewSession returns a disconnected Session.
func NewSession(appName string) *Session {
	return &Session{appName: appName}
}

// Connect opens a client for uri and verifies it with a ping. An existing
// connection is replaced only once the new one is usable.
func (s *Session) Connect(ctx context.Context, uri string) error {
	if uri == "" {
		return errors.New("connection string is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetAppName(s.appName))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping: %w", err)
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()

	if old != nil {
		_ = old.Disconnect(ctx)
	}
	return nil
}

// Connected reports whether Connect has succeeded.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Disconnect closes the current client, if any.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

func (s *Session) get() (*mongo.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

func (s *Session) collection(db, coll string) (*mongo.Collection, error) {
	client, err := s.get()
	if err != nil {
		return nil, err
	}
	return client.Database(db).Collection(coll), nil
}

// ListDatabases returns every database visible to the connection.
func (s *Session) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	client, err := s.get()
	if err != nil {
		return nil, err
	}
	res, err := client.ListDatabases(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	out := make([]DatabaseInfo, 0, len(res.Databases))
	for _, d := range res.Databases {
		out = append(out, DatabaseInfo{Name: d.Name, SizeOnDisk: d.SizeOnDisk, Empty: d.Empty})
	}
	return out, nil
}

// ListCollections returns the collection names in db.
func (s *Session) ListCollections(ctx context.Context, db string) ([]string, error) {
	client, err := s.get()
	if err != nil {
		return nil, err
	}
	names, err := client.Database(db).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections in %s: %w", db, err)
	}
	return names, nil
}

// CollectionIndexes returns the index definitions of a collection.
func (s *Session) CollectionIndexes(ctx context.Context, db, coll string) ([]bson.Raw, error) {
	c, err := s.collection(db, coll)
	if err != nil {
		return nil, err
	}
	cur, err := c.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes on %s.%s: %w", db, coll, err)
	}
	defer cur.Close(ctx)

	var out []bson.Raw
	for cur.Next(ctx) {
		doc := make(bson.Raw, len(cur.Current))
		copy(doc, cur.Current)
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list indexes on %s.%s: %w", db, coll, err)
	}
	return out, nil
}

// DBStats runs the dbStats command.
func (s *Session) DBStats(ctx context.Context, db string) (bson.Raw, error) {
	client, err := s.get()
	if err != nil {
		return nil, err
	}
	raw, err := client.Database(db).RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}, {Key: "scale", Value: 1}}).Raw()
	if err != nil {
		return nil, fmt.Errorf("dbStats on %s: %w", db, err)
	}
	return raw, nil
}

// Find opens a cursor over the documents matching q.
func (s *Session) Find(ctx context.Context, db, coll string, q FindQuery) (cursor.Cursor, error) {
	c, err := s.collection(db, coll)
	if err != nil {
		return nil, err
	}
	filter := q.Filter
	if filter == nil {
		filter = bson.D{}
	}
	opts := options.Find()
	if len(q.Projection) > 0 {
		opts.SetProjection(q.Projection)
	}
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find on %s.%s: %w", db, coll, err)
	}
	return cursor.NewFindCursor(cur, c, filter), nil
}

// Aggregate opens a cursor over the output of pipeline.
func (s *Session) Aggregate(ctx context.Context, db, coll string, pipeline []bson.D) (cursor.Cursor, error) {
	c, err := s.collection(db, coll)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		pipeline = []bson.D{}
	}
	cur, err := c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate on %s.%s: %w", db, coll, err)
	}
	return cursor.NewAggregateCursor(cur, c, pipeline), nil
}

// Count counts documents matching filter within maxTimeMS.
func (s *Session) Count(ctx context.Context, db, coll string, filter bson.D, maxTimeMS int64) (int64, error) {
	c, err := s.collection(db, coll)
	if err != nil {
		return 0, err
	}
	if filter == nil {
		filter = bson.D{}
	}
	return cursor.CountQuery(ctx, c, filter, maxTimeMS)
}

// InsertMany inserts docs and returns their _id values.
func (s *Session) InsertMany(ctx context.Context, db, coll string, docs []bson.D) ([]any, error) {
	c, err := s.collection(db, coll)
	if err != nil {
		return nil, err
	}
	res, err := c.InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("insert into %s.%s: %w", db, coll, err)
	}
	return res.InsertedIDs, nil
}

// DeleteMany removes the documents matching filter.
func (s *Session) DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error) {
	c, err := s.collection(db, coll)
	if err != nil {
		return 0, err
	}
	if filter == nil {
		filter = bson.D{}
	}
	res, err := c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s.%s: %w", db, coll, err)
	}
	return res.DeletedCount, nil
}

// UpdateMany applies update to the documents matching filter.
func (s *Session) UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (UpdateResult, error) {
	c, err := s.collection(db, coll)
	if err != nil {
		return UpdateResult{}, err
	}
	if filter == nil {
		filter = bson.D{}
	}
	res, err := c.UpdateMany(ctx, filter, update, options.UpdateMany().SetUpsert(upsert))
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update %s.%s: %w", db, coll, err)
	}
	return UpdateResult{
		Matched:    res.MatchedCount,
		Modified:   res.ModifiedCount,
		Upserted:   res.UpsertedCount,
		UpsertedID: res.UpsertedID,
	}, nil
}

// DropCollection drops a collection.
func (s *Session) DropCollection(ctx context.Context, db, coll string) error {
	c, err := s.collection(db, coll)
	if err != nil {
		return err
	}
	if err := c.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s.%s: %w", db, coll, err)
	}
	return nil
}
