package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// WriteJSON serializes v as indented JSON.
// If path is "-" or empty, writes to stdout.
func WriteJSON(v any, path string) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// FormatDocuments renders documents as a relaxed Extended JSON array,
// one document per line.
func FormatDocuments(docs []bson.Raw) (string, error) {
	var b strings.Builder
	b.WriteString("[")
	for i, doc := range docs {
		data, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return "", fmt.Errorf("render document %d: %w", i, err)
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n")
		b.Write(data)
	}
	if len(docs) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("]")
	return b.String(), nil
}

// FormatValue renders an arbitrary driver value as relaxed Extended JSON.
func FormatValue(v any) (string, error) {
	data, err := bson.MarshalExtJSONIndent(v, false, false, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render value: %w", err)
	}
	return string(data), nil
}
