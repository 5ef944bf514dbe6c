package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/config"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/limits"
)

// Kind groups tools for read-only mode and for disabledTools.
type Kind string

const (
	KindConnect  Kind = "connect"
	KindMetadata Kind = "metadata"
	KindRead     Kind = "read"
	KindCreate   Kind = "create"
	KindUpdate   Kind = "update"
	KindDelete   Kind = "delete"
)

// readOnlySafe reports whether tools of this kind leave data untouched.
func (k Kind) readOnlySafe() bool {
	return k == KindConnect || k == KindMetadata || k == KindRead
}

// ToolEntry pairs a tool definition with its handler.
type ToolEntry struct {
	Kind    Kind
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

// ToolInfo is the printable summary of a tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

func withTarget() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("database",
			mcp.Required(),
			mcp.Description("Database name"),
		),
		mcp.WithString("collection",
			mcp.Required(),
			mcp.Description("Collection name"),
		),
	}
}

func newTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)
	return mcp.NewTool(name, all...)
}

func targetTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return newTool(name, description, append(withTarget(), opts...)...)
}

func responseBytesLimitOption() mcp.ToolOption {
	return mcp.WithNumber("responseBytesLimit",
		mcp.Description("Maximum number of bytes of documents to return. The server's maxBytesPerQuery still applies when it is lower. Documents are never cut in half: reading stops before the document that would exceed the budget."),
		mcp.DefaultNumber(float64(limits.DefaultResponseBytes)),
	)
}

// Catalog returns every tool the server knows, in registration order.
func Catalog(h *Handler) []ToolEntry {
	return []ToolEntry{
		{KindConnect, newTool("connect",
			"Connect to a MongoDB deployment, replacing the current connection.",
			mcp.WithString("connectionString",
				mcp.Required(),
				mcp.Description("MongoDB connection string (mongodb:// or mongodb+srv://)"),
			),
		), h.handleConnect},

		{KindMetadata, newTool("list-databases",
			"List all databases with their size on disk."), h.handleListDatabases},

		{KindMetadata, newTool("list-collections",
			"List the collections in a database.",
			mcp.WithString("database", mcp.Required(), mcp.Description("Database name")),
		), h.handleListCollections},

		{KindMetadata, targetTool("collection-indexes",
			"Describe the indexes of a collection."), h.handleCollectionIndexes},

		{KindMetadata, newTool("db-stats",
			"Return storage statistics for a database.",
			mcp.WithString("database", mcp.Required(), mcp.Description("Database name")),
		), h.handleDBStats},

		{KindRead, targetTool("find",
			"Run a find query against a collection. Large results are truncated at document boundaries.",
			mcp.WithObject("filter", mcp.Description("Query filter in MongoDB Extended JSON")),
			mcp.WithObject("projection", mcp.Description("Projection document")),
			mcp.WithObject("sort", mcp.Description("Sort specification, e.g. {\"createdAt\": -1}")),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of documents to return"),
				mcp.DefaultNumber(defaultFindLimit),
			),
			responseBytesLimitOption(),
		), h.handleFind},

		{KindRead, targetTool("aggregate",
			"Run an aggregation pipeline against a collection. Large results are truncated at document boundaries.",
			mcp.WithArray("pipeline",
				mcp.Required(),
				mcp.Description("Array of aggregation stages in MongoDB Extended JSON"),
				mcp.Items(map[string]any{"type": "object"}),
			),
			responseBytesLimitOption(),
		), h.handleAggregate},

		{KindRead, targetTool("count",
			"Count the documents in a collection that match a query.",
			mcp.WithObject("query", mcp.Description("Query filter; omit to count every document")),
			mcp.WithNumber("maxTimeMS", mcp.Description("Server-side time limit for the count in milliseconds (capped at 10000)")),
		), h.handleCount},

		{KindCreate, targetTool("insert-many",
			"Insert documents into a collection.",
			mcp.WithArray("documents",
				mcp.Required(),
				mcp.Description("Documents to insert, in MongoDB Extended JSON"),
				mcp.Items(map[string]any{"type": "object"}),
			),
			mcp.WithObject("set",
				mcp.Description("Fields to set on every document before insertion, keyed by dot-separated path (e.g. {\"meta.source\": \"import\"}). Missing intermediate objects are created."),
			),
		), h.handleInsertMany},

		{KindUpdate, targetTool("update-many",
			"Update every document in a collection that matches a filter.",
			mcp.WithObject("filter", mcp.Description("Query filter; omit to update every document")),
			mcp.WithObject("update", mcp.Required(), mcp.Description("Update document, e.g. {\"$set\": {\"a\": 1}}")),
			mcp.WithBoolean("upsert", mcp.Description("Insert a document when nothing matches"), mcp.DefaultBool(false)),
		), h.handleUpdateMany},

		{KindDelete, targetTool("delete-many",
			"Delete every document in a collection that matches a filter.",
			mcp.WithObject("filter", mcp.Description("Query filter; omit to delete every document")),
		), h.handleDeleteMany},

		{KindDelete, targetTool("drop-collection",
			"Drop a collection and its indexes."), h.handleDropCollection},
	}
}

// EnabledTools filters the catalog by read-only mode and disabledTools.
func EnabledTools(h *Handler, cfg config.Config) []ToolEntry {
	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	var out []ToolEntry
	for _, t := range Catalog(h) {
		if cfg.ReadOnly && !t.Kind.readOnlySafe() {
			continue
		}
		if disabled[t.Tool.Name] || disabled[string(t.Kind)] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Describe lists the tools enabled by cfg.
func Describe(cfg config.Config) []ToolInfo {
	var out []ToolInfo
	for _, t := range EnabledTools(&Handler{}, cfg) {
		out = append(out, ToolInfo{Name: t.Tool.Name, Kind: t.Kind, Description: t.Tool.Description})
	}
	return out
}
