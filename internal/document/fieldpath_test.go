package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestSetFieldPathCreatesIntermediates(t *testing.T) {
	doc := map[string]any{}
	require.NoError(t, SetFieldPath(doc, "a.b.c", 1))

	require.Len(t, doc, 1)
	a := doc["a"].(map[string]any)
	b := a["b"].(map[string]any)
	require.Equal(t, 1, b["c"])
}

func TestSetFieldPathTopLevel(t *testing.T) {
	doc := map[string]any{"x": 1}
	require.NoError(t, SetFieldPath(doc, "y", "v"))
	require.Equal(t, map[string]any{"x": 1, "y": "v"}, doc)
}

func TestSetFieldPathOverwritesLeaf(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": 1, "keep": true}}
	require.NoError(t, SetFieldPath(doc, "a.b", 2))
	require.Equal(t, map[string]any{"a": map[string]any{"b": 2, "keep": true}}, doc)
}

func TestSetFieldPathReplacesNullIntermediate(t *testing.T) {
	doc := map[string]any{"a": nil}
	require.NoError(t, SetFieldPath(doc, "a.b", true))
	require.Equal(t, map[string]any{"a": map[string]any{"b": true}}, doc)
}

func TestSetFieldPathSpecialKeys(t *testing.T) {
	doc := map[string]any{}
	require.NoError(t, SetFieldPath(doc, "__proto__.constructor", "x"))
	require.Equal(t, map[string]any{"__proto__": map[string]any{"constructor": "x"}}, doc)
}

func TestSetFieldPathThroughBSONTypes(t *testing.T) {
	doc := map[string]any{
		"m": bson.M{"inner": 1},
		"d": bson.D{{Key: "first", Value: 1}},
	}
	require.NoError(t, SetFieldPath(doc, "m.added", 2))
	require.NoError(t, SetFieldPath(doc, "d.second", 2))
	require.NoError(t, SetFieldPath(doc, "d.first", 3))
	require.NoError(t, SetFieldPath(doc, "d.nested.leaf", 4))

	require.Equal(t, bson.M{"inner": 1, "added": 2}, doc["m"])
	require.Equal(t, bson.D{
		{Key: "first", Value: 3},
		{Key: "second", Value: 2},
		{Key: "nested", Value: map[string]any{"leaf": 4}},
	}, doc["d"])
}

func TestSetFieldPathInvalidSegments(t *testing.T) {
	for _, path := range []string{"", ".", "a..b", "a. .b", "a.", " "} {
		t.Run(path, func(t *testing.T) {
			doc := map[string]any{}
			err := SetFieldPath(doc, path, 1)
			require.ErrorIs(t, err, ErrInvalidPath)
			require.Empty(t, doc)
		})
	}
}

func TestSetFieldPathDepthCeiling(t *testing.T) {
	deepest := strings.TrimSuffix(strings.Repeat("a.", MaxPathDepth), ".")
	require.NoError(t, SetFieldPath(map[string]any{}, deepest, 1))

	tooDeep := strings.TrimSuffix(strings.Repeat("a.", MaxPathDepth+1), ".")
	doc := map[string]any{}
	err := SetFieldPath(doc, tooDeep, 1)
	require.ErrorIs(t, err, ErrInvalidPath)
	require.Empty(t, doc)
}

func TestSetFieldPathConflict(t *testing.T) {
	doc := map[string]any{"a": 5}
	err := SetFieldPath(doc, "a.b", 1)
	require.ErrorIs(t, err, ErrPathConflict)

	var conflict *PathConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, "a", conflict.Path)
	require.Equal(t, 5, doc["a"])
}

func TestSetFieldPathConflictOnArray(t *testing.T) {
	doc := map[string]any{"x": map[string]any{"list": bson.A{1, 2}}}
	err := SetFieldPath(doc, "x.list.0", "v")

	var conflict *PathConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, "x.list", conflict.Path)
	require.Contains(t, err.Error(), `"x.list"`)
}

func TestSetFieldPathConflictLeavesSiblingsAlone(t *testing.T) {
	doc := map[string]any{"k": map[string]any{"s": "str", "n": 1}}
	require.NoError(t, SetFieldPath(doc, "k.created.x", 1))

	err := SetFieldPath(doc, "k.s.x", 1)
	require.ErrorIs(t, err, ErrPathConflict)
	require.Equal(t, map[string]any{
		"s":       "str",
		"n":       1,
		"created": map[string]any{"x": 1},
	}, doc["k"])
}

func TestSetFieldPathNilDocument(t *testing.T) {
	require.ErrorIs(t, SetFieldPath(nil, "a", 1), ErrInvalidPath)
}

func TestSetOrderedFieldPath(t *testing.T) {
	doc := bson.D{{Key: "z", Value: 1}}
	require.NoError(t, SetOrderedFieldPath(&doc, "meta.source", "import"))
	require.NoError(t, SetOrderedFieldPath(&doc, "z", 2))

	require.Equal(t, bson.D{
		{Key: "z", Value: 2},
		{Key: "meta", Value: map[string]any{"source": "import"}},
	}, doc)
}

func TestSetOrderedFieldPathValidatesFirst(t *testing.T) {
	doc := bson.D{{Key: "a", Value: "s"}}
	require.ErrorIs(t, SetOrderedFieldPath(&doc, "b..c", 1), ErrInvalidPath)
	require.ErrorIs(t, SetOrderedFieldPath(&doc, "a.b", 1), ErrPathConflict)
	require.Equal(t, bson.D{{Key: "a", Value: "s"}}, doc)
	require.ErrorIs(t, SetOrderedFieldPath(nil, "a", 1), ErrInvalidPath)
}
