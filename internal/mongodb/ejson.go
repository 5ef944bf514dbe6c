package mongodb

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DocumentArg converts a tool argument into a BSON document. The argument
// is either a decoded JSON object or a string holding one; Extended JSON
// type wrappers such as {"$oid": ...} are honored. nil yields an empty
// document.
func DocumentArg(v any) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	data, err := argJSON(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON(data, false, &d); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return d, nil
}

// DocumentsArg converts a JSON array argument into BSON documents.
func DocumentsArg(v any) ([]bson.D, error) {
	items, err := arrayArg(v)
	if err != nil {
		return nil, err
	}
	out := make([]bson.D, 0, len(items))
	for i, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
		d, err := DocumentArg(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ValueArg converts a single JSON value, honoring Extended JSON wrappers.
func ValueArg(v any) (any, error) {
	d, err := DocumentArg(map[string]any{"v": v})
	if err != nil {
		return nil, err
	}
	return d[0].Value, nil
}

func arrayArg(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case string:
		var items []any
		if err := json.Unmarshal([]byte(x), &items); err != nil {
			return nil, fmt.Errorf("parse array: %w", err)
		}
		return items, nil
	default:
		return nil, errors.New("expected an array")
	}
}

func argJSON(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode argument: %w", err)
	}
	return data, nil
}
