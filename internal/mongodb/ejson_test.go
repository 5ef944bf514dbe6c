package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestDocumentArgFromMap(t *testing.T) {
	d, err := DocumentArg(map[string]any{"age": map[string]any{"$gt": 30.0}})
	require.NoError(t, err)
	require.Len(t, d, 1)
	require.Equal(t, "age", d[0].Key)
	require.Equal(t, bson.D{{Key: "$gt", Value: int32(30)}}, d[0].Value)
}

func TestDocumentArgExtendedJSON(t *testing.T) {
	d, err := DocumentArg(`{"_id": {"$oid": "5f1b2c3d4e5f6a7b8c9d0e1f"}, "at": {"$date": "2024-01-02T03:04:05Z"}}`)
	require.NoError(t, err)

	id, ok := d[0].Value.(bson.ObjectID)
	require.True(t, ok, "got %T", d[0].Value)
	require.Equal(t, "5f1b2c3d4e5f6a7b8c9d0e1f", id.Hex())

	at, ok := d[1].Value.(bson.DateTime)
	require.True(t, ok, "got %T", d[1].Value)
	require.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), at.Time().UTC())
}

func TestDocumentArgNil(t *testing.T) {
	d, err := DocumentArg(nil)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Empty(t, d)
}

func TestDocumentArgInvalid(t *testing.T) {
	_, err := DocumentArg("{not json")
	require.Error(t, err)
}

func TestDocumentsArg(t *testing.T) {
	docs, err := DocumentsArg([]any{
		map[string]any{"a": 1.0},
		map[string]any{"b": "x"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "b", docs[1][0].Key)

	docs, err = DocumentsArg(`[{"$match": {"a": 1}}, {"$limit": 5}]`)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "$limit", docs[1][0].Key)

	_, err = DocumentsArg([]any{"scalar"})
	require.ErrorContains(t, err, "element 0")

	_, err = DocumentsArg(42)
	require.Error(t, err)

	docs, err = DocumentsArg(nil)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestValueArg(t *testing.T) {
	v, err := ValueArg(map[string]any{"$numberLong": "12"})
	require.NoError(t, err)
	require.Equal(t, int64(12), v)

	v, err = ValueArg("plain")
	require.NoError(t, err)
	require.Equal(t, "plain", v)
}
