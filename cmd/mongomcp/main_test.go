package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/mcp"
)

// runTools executes "mongomcp tools" with args and decodes the catalog.
func runTools(t *testing.T, args ...string) []mcp.ToolInfo {
	t.Helper()
	out := filepath.Join(t.TempDir(), "tools.json")

	root := newRootCmd()
	root.SetArgs(append([]string{"tools", "-o", out}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var tools []mcp.ToolInfo
	if err := json.Unmarshal(data, &tools); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return tools
}

func has(tools []mcp.ToolInfo, name string) bool {
	for _, tool := range tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func TestCLIToolsDefault(t *testing.T) {
	tools := runTools(t)
	if len(tools) != 12 {
		t.Fatalf("expected 12 tools, got %d", len(tools))
	}
}

func TestCLIReadOnlyFlag(t *testing.T) {
	tools := runTools(t, "--read-only")
	if len(tools) != 8 {
		t.Fatalf("expected 8 tools in read-only mode, got %d", len(tools))
	}
	if has(tools, "insert-many") {
		t.Error("insert-many must not be listed in read-only mode")
	}
}

func TestCLIDisabledToolsFlag(t *testing.T) {
	tools := runTools(t, "--disabled-tools", "find,delete")
	for _, name := range []string{"find", "delete-many", "drop-collection"} {
		if has(tools, name) {
			t.Errorf("%s should be disabled", name)
		}
	}
	if !has(tools, "aggregate") {
		t.Error("aggregate should still be listed")
	}
}

func TestCLIPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mongomcp.yaml")
	if err := os.WriteFile(path, []byte("readOnly: true\ndisabledTools: [find]\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MDB_MCP_DISABLED_TOOLS", "count")

	// Environment overrides the file.
	tools := runTools(t, "--config", path)
	if !has(tools, "find") || has(tools, "count") {
		t.Errorf("environment should replace the file's disabledTools: %v", tools)
	}
	if has(tools, "update-many") {
		t.Error("readOnly from the file should still apply")
	}

	// Flags override the environment.
	tools = runTools(t, "--config", path, "--disabled-tools", "aggregate", "--read-only=false")
	if !has(tools, "count") || has(tools, "aggregate") {
		t.Errorf("flag should replace the environment's disabledTools: %v", tools)
	}
	if !has(tools, "update-many") {
		t.Error("--read-only=false should override the file")
	}
}

func TestCLIInvalidTransport(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"tools", "--transport", "smoke-signal"})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown transport") {
		t.Fatalf("expected unknown transport error, got %v", err)
	}
}

func TestCLIVersion(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := buf.String(); got != "mongomcp "+version+"\n" {
		t.Fatalf("unexpected version output %q", got)
	}
}
