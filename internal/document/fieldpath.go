// Package document mutates semi-structured documents addressed by
// dot-separated field paths.
package document

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MaxPathDepth matches the nesting limit of BSON documents.
const MaxPathDepth = 100

var (
	ErrInvalidPath  = errors.New("invalid field path")
	ErrPathConflict = errors.New("field path conflict")
)

// PathConflictError reports an intermediate value that is not a document.
type PathConflictError struct {
	// Path is the dot-joined prefix that holds the offending value.
	Path string
	// Value is the value found there.
	Value any
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("cannot set field: %q holds a %T, not a document", e.Path, e.Value)
}

func (e *PathConflictError) Unwrap() error { return ErrPathConflict }

// SplitPath validates path and returns its segments.
func SplitPath(path string) ([]string, error) {
	segments := strings.Split(path, ".")
	if len(segments) > MaxPathDepth {
		return nil, fmt.Errorf("%w: %d segments exceeds the maximum depth of %d", ErrInvalidPath, len(segments), MaxPathDepth)
	}
	for i, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return nil, fmt.Errorf("%w: segment %d of %q is empty", ErrInvalidPath, i, path)
		}
	}
	return segments, nil
}

// SetFieldPath assigns value at path inside doc, creating intermediate
// documents where the path is absent or null.
//
// The path is validated before doc is touched. A conflict deeper in the
// path leaves any intermediate documents this call already created in
// place.
func SetFieldPath(doc map[string]any, path string, value any) error {
	segments, err := SplitPath(path)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: target document is nil", ErrInvalidPath)
	}

	return setPath(mapContainer(doc), segments, value)
}

// SetOrderedFieldPath is SetFieldPath for an ordered document. New keys
// are appended after the existing ones.
func SetOrderedFieldPath(doc *bson.D, path string, value any) error {
	segments, err := SplitPath(path)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: target document is nil", ErrInvalidPath)
	}
	root := &docContainer{d: *doc, store: func(d bson.D) { *doc = d }}
	return setPath(root, segments, value)
}

func setPath(root container, segments []string, value any) error {
	cur := root
	for i, seg := range segments[:len(segments)-1] {
		next, ok := descend(cur, seg)
		if !ok {
			return &PathConflictError{Path: strings.Join(segments[:i+1], "."), Value: cur.get(seg)}
		}
		cur = next
	}
	cur.set(segments[len(segments)-1], value)
	return nil
}

// descend returns the document stored under key, creating it if absent.
// It reports false when key holds a non-document value.
func descend(parent container, key string) (container, bool) {
	switch v := parent.get(key).(type) {
	case nil:
		return create(parent, key), true
	case map[string]any:
		if v == nil {
			return create(parent, key), true
		}
		return mapContainer(v), true
	case bson.M:
		if v == nil {
			return create(parent, key), true
		}
		return mapContainer(v), true
	case bson.D:
		return &docContainer{d: v, store: func(d bson.D) { parent.set(key, d) }}, true
	default:
		return nil, false
	}
}

func create(parent container, key string) container {
	child := map[string]any{}
	parent.set(key, child)
	return mapContainer(child)
}

type container interface {
	get(key string) any
	set(key string, value any)
}

type mapContainer map[string]any

func (m mapContainer) get(key string) any        { return m[key] }
func (m mapContainer) set(key string, value any) { m[key] = value }

// docContainer edits an ordered document. Appending may reallocate the
// slice, so every write is stored back into the parent.
type docContainer struct {
	d     bson.D
	store func(bson.D)
}

func (c *docContainer) get(key string) any {
	for _, e := range c.d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func (c *docContainer) set(key string, value any) {
	for i := range c.d {
		if c.d[i].Key == key {
			c.d[i].Value = value
			c.store(c.d)
			return
		}
	}
	c.d = append(c.d, bson.E{Key: key, Value: value})
	c.store(c.d)
}
