package mcp

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/config"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/events"
)

func toolNames(entries []ToolEntry) map[string]Kind {
	out := make(map[string]Kind, len(entries))
	for _, e := range entries {
		out[e.Tool.Name] = e.Kind
	}
	return out
}

func TestNewServer(t *testing.T) {
	srv := NewServer("1.0.0-test", testConfig(), &fakeBackend{}, nil, nil)
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcpServer == nil {
		t.Fatal("mcpServer is nil")
	}
}

func TestCatalogHasEveryTool(t *testing.T) {
	names := toolNames(Catalog(&Handler{}))
	want := []string{
		"connect", "list-databases", "list-collections", "collection-indexes", "db-stats",
		"find", "aggregate", "count", "insert-many", "update-many", "delete-many", "drop-collection",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(names))
	}
	for _, name := range want {
		if _, ok := names[name]; !ok {
			t.Errorf("tool %q missing from catalog", name)
		}
	}
}

func TestEnabledTools_ReadOnly(t *testing.T) {
	cfg := testConfig()
	cfg.ReadOnly = true
	names := toolNames(EnabledTools(&Handler{}, cfg))
	if len(names) != 8 {
		t.Fatalf("expected 8 read-only tools, got %d: %v", len(names), names)
	}
	for name, kind := range names {
		if !kind.readOnlySafe() {
			t.Errorf("tool %q of kind %q registered in read-only mode", name, kind)
		}
	}
}

func TestEnabledTools_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.DisabledTools = []string{"delete", "count"}
	names := toolNames(EnabledTools(&Handler{}, cfg))
	for _, gone := range []string{"delete-many", "drop-collection", "count"} {
		if _, ok := names[gone]; ok {
			t.Errorf("tool %q should be disabled", gone)
		}
	}
	if len(names) != 9 {
		t.Fatalf("expected 9 tools, got %d", len(names))
	}
}

func TestDescribe(t *testing.T) {
	infos := Describe(config.DefaultConfig())
	if len(infos) != 12 {
		t.Fatalf("expected 12 tools, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Description == "" {
			t.Errorf("tool %q has no description", info.Name)
		}
	}
}

func TestReadEvents(t *testing.T) {
	cache, err := events.NewCache(4)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	cache.Add(events.Event{Tool: "find", Documents: 3})

	contents, err := readEvents(cache)
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 resource content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != eventsURI {
		t.Errorf("unexpected URI %q", tc.URI)
	}
	var got []events.Event
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(got) != 1 || got[0].Tool != "find" || got[0].Documents != 3 {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestReadEvents_NilCache(t *testing.T) {
	contents, err := readEvents(nil)
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.Text != "[]" {
		t.Fatalf("expected an empty list, got %q", tc.Text)
	}
}
