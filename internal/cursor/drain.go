package cursor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/limits"
)

// Result is the outcome of one Drain call.
type Result struct {
	// Documents is a prefix of the cursor's output, in cursor order.
	Documents []bson.Raw

	// CappedBy names the limit that stopped the read. Empty when the
	// cursor ran out or the context was cancelled.
	CappedBy limits.Tag

	// Bytes is the summed wire size of Documents.
	Bytes int64
}

// SizeOf returns the BSON wire size of doc.
func SizeOf(doc any) (int64, error) {
	switch d := doc.(type) {
	case bson.Raw:
		return int64(len(d)), nil
	case []byte:
		return int64(len(d)), nil
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal document: %w", err)
	}
	return int64(len(raw)), nil
}

// Drain reads documents from cur until the cursor is exhausted, the
// document count reaches maxDocumentsPerQuery, or the next document would
// push the total past limit.LimitBytes.
//
// A document is accepted or rejected whole. If the very first document is
// already over budget it is still returned, so a non-empty cursor never
// yields an empty result.
//
// Cancellation is checked before every fetch. A cancelled drain returns the
// documents committed so far with an empty CappedBy and a nil error; the
// caller tells it apart from a natural end by inspecting ctx.
//
// A cursor error aborts the drain and nothing accumulated is returned.
func Drain(ctx context.Context, cur Cursor, limit limits.EffectiveLimit, maxDocumentsPerQuery any) (Result, error) {
	maxDocs, countLimited := limits.ParseLimit(maxDocumentsPerQuery)

	// A limit with no attribution is the built-in default, which stands in
	// for the tool parameter's default value.
	byteTag := limit.CappedBy
	if byteTag == "" {
		byteTag = limits.ToolResponseBytesLimit
	}

	res := Result{Documents: make([]bson.Raw, 0)}
	for {
		if ctx.Err() != nil {
			return res, nil
		}
		if countLimited && int64(len(res.Documents)) >= maxDocs {
			res.CappedBy = limits.ConfigMaxDocumentsPerQuery
			return res, nil
		}

		doc, err := cur.FetchNext(ctx)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, nil
			}
			return Result{}, err
		}

		size, err := SizeOf(doc)
		if err != nil {
			return Result{}, err
		}
		if res.Bytes+size > limit.LimitBytes {
			if len(res.Documents) == 0 {
				res.Documents = append(res.Documents, doc)
				res.Bytes = size
			}
			res.CappedBy = byteTag
			return res, nil
		}

		res.Documents = append(res.Documents, doc)
		res.Bytes += size
	}
}
