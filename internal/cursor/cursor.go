// Package cursor reads query and aggregation results under a byte budget.
//
// Drain is the only consumer of a Cursor; it never closes one. The tool
// handler that opened the cursor closes it once Drain returns.
package cursor

import (
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Cursor is a forward-only sequence of wire-encoded documents.
type Cursor interface {
	// FetchNext returns the next document, or io.EOF once the cursor is exhausted.
	FetchNext(ctx context.Context) (bson.Raw, error)

	// Exhausted reports whether FetchNext has returned io.EOF.
	Exhausted() bool

	// CountMatches counts every document the underlying query matches,
	// independent of how far the cursor has been read. maxTimeMS bounds
	// the server-side execution time of the count.
	CountMatches(ctx context.Context, maxTimeMS int64) (int64, error)

	Close(ctx context.Context) error
}

type countFunc func(ctx context.Context, maxTimeMS int64) (int64, error)

// driverCursor adapts *mongo.Cursor. The driver only offers
// consume-and-inspect, so a rejected document has already been read by
// the time Drain sees it; Drain drops it.
type driverCursor struct {
	cur   *mongo.Cursor
	count countFunc
	done  bool
}

// NewFindCursor wraps the cursor returned by coll.Find(filter).
func NewFindCursor(cur *mongo.Cursor, coll *mongo.Collection, filter any) Cursor {
	return &driverCursor{
		cur: cur,
		count: func(ctx context.Context, maxTimeMS int64) (int64, error) {
			return CountQuery(ctx, coll, filter, maxTimeMS)
		},
	}
}

// NewAggregateCursor wraps the cursor returned by coll.Aggregate(pipeline).
func NewAggregateCursor(cur *mongo.Cursor, coll *mongo.Collection, pipeline []bson.D) Cursor {
	return &driverCursor{
		cur: cur,
		count: func(ctx context.Context, maxTimeMS int64) (int64, error) {
			return countPipeline(ctx, coll, pipeline, maxTimeMS)
		},
	}
}

func (c *driverCursor) FetchNext(ctx context.Context) (bson.Raw, error) {
	if c.done {
		return nil, io.EOF
	}
	if c.cur.Next(ctx) {
		// Current is only valid until the next call to Next.
		doc := make(bson.Raw, len(c.cur.Current))
		copy(doc, c.cur.Current)
		return doc, nil
	}
	if err := c.cur.Err(); err != nil {
		return nil, err
	}
	c.done = true
	return nil, io.EOF
}

func (c *driverCursor) Exhausted() bool { return c.done }

func (c *driverCursor) CountMatches(ctx context.Context, maxTimeMS int64) (int64, error) {
	return c.count(ctx, maxTimeMS)
}

func (c *driverCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

// CountQuery issues the count command directly so maxTimeMS is enforced
// by the server rather than by a client-side deadline.
func CountQuery(ctx context.Context, coll *mongo.Collection, filter any, maxTimeMS int64) (int64, error) {
	if filter == nil {
		filter = bson.D{}
	}
	cmd := bson.D{
		{Key: "count", Value: coll.Name()},
		{Key: "query", Value: filter},
		{Key: "maxTimeMS", Value: maxTimeMS},
	}
	var out struct {
		N int64 `bson:"n"`
	}
	if err := coll.Database().RunCommand(ctx, cmd).Decode(&out); err != nil {
		return 0, fmt.Errorf("count %s: %w", coll.Name(), err)
	}
	return out.N, nil
}

func countPipeline(ctx context.Context, coll *mongo.Collection, pipeline []bson.D, maxTimeMS int64) (int64, error) {
	cmd := bson.D{
		{Key: "aggregate", Value: coll.Name()},
		{Key: "pipeline", Value: countStages(pipeline)},
		{Key: "cursor", Value: bson.D{}},
		{Key: "maxTimeMS", Value: maxTimeMS},
	}
	var out struct {
		Cursor struct {
			FirstBatch []struct {
				Total int64 `bson:"totalDocuments"`
			} `bson:"firstBatch"`
		} `bson:"cursor"`
	}
	if err := coll.Database().RunCommand(ctx, cmd).Decode(&out); err != nil {
		return 0, fmt.Errorf("count pipeline on %s: %w", coll.Name(), err)
	}
	if len(out.Cursor.FirstBatch) == 0 {
		return 0, nil
	}
	return out.Cursor.FirstBatch[0].Total, nil
}

// countStages returns pipeline with a trailing $count stage. A final $out
// or $merge is dropped first: nothing may follow it, and counting must not
// write.
func countStages(pipeline []bson.D) bson.A {
	if n := len(pipeline); n > 0 && isWriteStage(pipeline[n-1]) {
		pipeline = pipeline[:n-1]
	}
	stages := make(bson.A, 0, len(pipeline)+1)
	for _, stage := range pipeline {
		stages = append(stages, stage)
	}
	return append(stages, bson.D{{Key: "$count", Value: "totalDocuments"}})
}

func isWriteStage(stage bson.D) bool {
	return len(stage) > 0 && (stage[0].Key == "$out" || stage[0].Key == "$merge")
}
