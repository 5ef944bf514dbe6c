package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sourcegraph/conc"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitriimaksimovdevelop/mongomcp/internal/config"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/cursor"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/document"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/events"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/limits"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/mongodb"
	"github.com/dmitriimaksimovdevelop/mongomcp/internal/output"
)

// defaultFindLimit is the find limit when the caller omits one.
const defaultFindLimit = 10

// Backend is the database surface the tools run against.
// *mongodb.Session implements it.
type Backend interface {
	Connect(ctx context.Context, uri string) error
	ListDatabases(ctx context.Context) ([]mongodb.DatabaseInfo, error)
	ListCollections(ctx context.Context, db string) ([]string, error)
	CollectionIndexes(ctx context.Context, db, coll string) ([]bson.Raw, error)
	DBStats(ctx context.Context, db string) (bson.Raw, error)
	Find(ctx context.Context, db, coll string, q mongodb.FindQuery) (cursor.Cursor, error)
	Aggregate(ctx context.Context, db, coll string, pipeline []bson.D) (cursor.Cursor, error)
	Count(ctx context.Context, db, coll string, filter bson.D, maxTimeMS int64) (int64, error)
	InsertMany(ctx context.Context, db, coll string, docs []bson.D) ([]any, error)
	DeleteMany(ctx context.Context, db, coll string, filter bson.D) (int64, error)
	UpdateMany(ctx context.Context, db, coll string, filter, update bson.D, upsert bool) (mongodb.UpdateResult, error)
	DropCollection(ctx context.Context, db, coll string) error
}

// Handler implements the tool handlers.
type Handler struct {
	backend Backend
	cfg     config.Config
	cache   *events.Cache
	log     *slog.Logger
}

// NewHandler creates a Handler. cache may be nil.
func NewHandler(backend Backend, cfg config.Config, cache *events.Cache, log *slog.Logger) *Handler {
	if log == nil {
		log = output.Discard()
	}
	return &Handler{backend: backend, cfg: cfg, cache: cache, log: log}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.ToolTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.cfg.ToolTimeout)
}

// callInfo is filled in by read handlers and picked up by instrument.
type callInfo struct {
	documents int
	cappedBy  limits.Tag
}

type callInfoKey struct{}

func noteRead(ctx context.Context, documents int, cappedBy limits.Tag) {
	if ci, ok := ctx.Value(callInfoKey{}).(*callInfo); ok {
		ci.documents = documents
		ci.cappedBy = cappedBy
	}
}

// instrument logs every call to next and records it in the event cache.
func (h *Handler) instrument(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ci := &callInfo{}
		start := time.Now()
		res, err := next(context.WithValue(ctx, callInfoKey{}, ci), request)

		args := getArgs(request)
		ev := events.Event{
			Tool:       name,
			Database:   stringArg(args, "database", ""),
			Collection: stringArg(args, "collection", ""),
			Start:      start,
			Duration:   time.Since(start),
			Documents:  ci.documents,
			CappedBy:   string(ci.cappedBy),
		}
		switch {
		case err != nil:
			ev.Error = err.Error()
		case res != nil && res.IsError:
			ev.Error = resultText(res)
		}
		if h.cache != nil {
			h.cache.Add(ev)
		}

		h.log.Debug("tool call",
			"tool", name,
			"database", ev.Database,
			"collection", ev.Collection,
			"documents", ev.Documents,
			"capped_by", ev.CappedBy,
			"duration", ev.Duration,
			"error", ev.Error,
		)
		return res, err
	}
}

func (h *Handler) handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	uri := stringArg(getArgs(request), "connectionString", "")
	if uri == "" {
		return errResult("connectionString is required"), nil
	}
	if err := h.backend.Connect(ctx, uri); err != nil {
		return errResult(fmt.Sprintf("connect failed: %v", err)), nil
	}
	return newTextResult("Successfully connected to MongoDB."), nil
}

func (h *Handler) handleListDatabases(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	dbs, err := h.backend.ListDatabases(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("list databases failed: %v", err)), nil
	}
	if dbs == nil {
		dbs = []mongodb.DatabaseInfo{}
	}
	jsonData, err := json.MarshalIndent(dbs, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(output.Untrusted(fmt.Sprintf("Found %d databases.", len(dbs)), string(jsonData))), nil
}

func (h *Handler) handleListCollections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	db := stringArg(getArgs(request), "database", "")
	if db == "" {
		return errResult("database is required"), nil
	}
	names, err := h.backend.ListCollections(ctx, db)
	if err != nil {
		return errResult(fmt.Sprintf("list collections failed: %v", err)), nil
	}
	if len(names) == 0 {
		return newTextResult(fmt.Sprintf("No collections found in database %q.", db)), nil
	}
	sort.Strings(names)
	return newTextResult(output.Untrusted(
		fmt.Sprintf("Found %d collections in database %q.", len(names), db),
		strings.Join(names, "\n"),
	)), nil
}

func (h *Handler) handleCollectionIndexes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	db, coll, bad := target(getArgs(request))
	if bad != nil {
		return bad, nil
	}
	indexes, err := h.backend.CollectionIndexes(ctx, db, coll)
	if err != nil {
		return errResult(fmt.Sprintf("list indexes failed: %v", err)), nil
	}
	text, err := output.FormatDocuments(indexes)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(output.Untrusted(
		fmt.Sprintf("Found %d indexes in collection %q.", len(indexes), coll), text,
	)), nil
}

func (h *Handler) handleDBStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	db := stringArg(getArgs(request), "database", "")
	if db == "" {
		return errResult("database is required"), nil
	}
	stats, err := h.backend.DBStats(ctx, db)
	if err != nil {
		return errResult(fmt.Sprintf("dbStats failed: %v", err)), nil
	}
	text, err := output.FormatValue(stats)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(output.Untrusted(fmt.Sprintf("Statistics for database %q.", db), text)), nil
}

func (h *Handler) handleFind(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	args := getArgs(request)
	db, coll, bad := target(args)
	if bad != nil {
		return bad, nil
	}

	var q mongodb.FindQuery
	var err error
	if q.Filter, err = mongodb.DocumentArg(args["filter"]); err != nil {
		return errResult(fmt.Sprintf("invalid filter: %v", err)), nil
	}
	if q.Projection, err = mongodb.DocumentArg(args["projection"]); err != nil {
		return errResult(fmt.Sprintf("invalid projection: %v", err)), nil
	}
	if q.Sort, err = mongodb.DocumentArg(args["sort"]); err != nil {
		return errResult(fmt.Sprintf("invalid sort: %v", err)), nil
	}
	q.Limit = int64Arg(args, "limit", defaultFindLimit)

	cur, err := h.backend.Find(ctx, db, coll, q)
	if err != nil {
		return errResult(fmt.Sprintf("find failed: %v", err)), nil
	}
	return h.readBounded(ctx, readRequest{
		collection:         coll,
		cursor:             cur,
		responseBytesLimit: responseBytesLimitArg(args),
		countMaxTimeMS:     limits.QueryCountMaxTimeMS,
		totalCap:           q.Limit,
	}), nil
}

func (h *Handler) handleAggregate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	args := getArgs(request)
	db, coll, bad := target(args)
	if bad != nil {
		return bad, nil
	}
	pipeline, err := mongodb.DocumentsArg(args["pipeline"])
	if err != nil {
		return errResult(fmt.Sprintf("invalid pipeline: %v", err)), nil
	}
	if h.cfg.ReadOnly {
		if stage := writeStage(pipeline); stage != "" {
			return errResult(fmt.Sprintf("pipeline stage %s is not allowed in read-only mode", stage)), nil
		}
	}

	cur, err := h.backend.Aggregate(ctx, db, coll, pipeline)
	if err != nil {
		return errResult(fmt.Sprintf("aggregate failed: %v", err)), nil
	}
	return h.readBounded(ctx, readRequest{
		collection:         coll,
		cursor:             cur,
		responseBytesLimit: responseBytesLimitArg(args),
		countMaxTimeMS:     limits.AggregateCountMaxTimeMS,
	}), nil
}

// writeStage returns the first pipeline stage that writes to a collection.
func writeStage(pipeline []bson.D) string {
	for _, stage := range pipeline {
		for _, e := range stage {
			if e.Key == "$out" || e.Key == "$merge" {
				return e.Key
			}
		}
	}
	return ""
}

type readRequest struct {
	collection         string
	cursor             cursor.Cursor
	responseBytesLimit *int64
	countMaxTimeMS     int64
	// totalCap bounds the reported total, e.g. by the find limit. 0 means none.
	totalCap int64
}

// readBounded drains r.cursor under the resolved byte budget while counting
// the full result set on the side.
func (h *Handler) readBounded(ctx context.Context, r readRequest) *mcp.CallToolResult {
	defer func() {
		if err := r.cursor.Close(context.WithoutCancel(ctx)); err != nil {
			h.log.Warn("close cursor", "collection", r.collection, "error", err)
		}
	}()

	limit := limits.ResolveEffectiveLimit(r.responseBytesLimit, h.cfg.MaxBytesPerQuery)

	var (
		total    int64
		countErr error
		res      cursor.Result
		drainErr error
	)
	countMS := countBudgetMS(ctx, r.countMaxTimeMS)
	countCtx, cancelCount := context.WithTimeout(ctx, time.Duration(countMS)*time.Millisecond)
	defer cancelCount()

	var wg conc.WaitGroup
	wg.Go(func() {
		total, countErr = r.cursor.CountMatches(countCtx, countMS)
	})
	wg.Go(func() {
		res, drainErr = cursor.Drain(ctx, r.cursor, limit, h.cfg.MaxDocumentsPerQuery)
	})
	wg.Wait()

	if drainErr != nil {
		return errResult(fmt.Sprintf("reading results failed: %v", drainErr))
	}
	// A drain that was neither exhausted nor capped stopped on cancellation.
	if res.CappedBy == "" && !r.cursor.Exhausted() {
		return errResult(fmt.Sprintf("operation cancelled: %v", ctx.Err()))
	}
	noteRead(ctx, len(res.Documents), res.CappedBy)

	if countErr != nil {
		h.log.Debug("count matching documents", "collection", r.collection, "error", countErr)
	} else if r.totalCap > 0 && total > r.totalCap {
		total = r.totalCap
	}

	summary := readSummary(r.collection, total, countErr == nil, len(res.Documents), res.CappedBy)
	if len(res.Documents) == 0 {
		return newTextResult(summary)
	}
	text, err := output.FormatDocuments(res.Documents)
	if err != nil {
		return errResult(err.Error())
	}
	return newTextResult(output.Untrusted(summary, text))
}

// countBudgetMS caps the side count at ceiling and at the time left before
// ctx's deadline, never below 1ms.
func countBudgetMS(ctx context.Context, ceiling int64) int64 {
	ms := limits.CapMaxTimeMS(0, ceiling)
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline).Milliseconds(); left < ms {
			ms = left
		}
	}
	if ms < 1 {
		ms = 1
	}
	return ms
}

func readSummary(coll string, total int64, totalKnown bool, returned int, cappedBy limits.Tag) string {
	var b strings.Builder
	if totalKnown {
		fmt.Fprintf(&b, "Query on collection %q resulted in %d documents.", coll, total)
	} else {
		fmt.Fprintf(&b, "Query on collection %q resulted in an unknown number of documents.", coll)
	}
	fmt.Fprintf(&b, " Returning %d documents", returned)
	if cappedBy != "" {
		fmt.Fprintf(&b, " (results truncated by %s)", cappedBy.Describe())
	}
	b.WriteString(".")
	return b.String()
}

func (h *Handler) handleCount(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	args := getArgs(request)
	db, coll, bad := target(args)
	if bad != nil {
		return bad, nil
	}
	filter, err := mongodb.DocumentArg(args["query"])
	if err != nil {
		return errResult(fmt.Sprintf("invalid query: %v", err)), nil
	}
	maxTimeMS := limits.CapMaxTimeMS(int64Arg(args, "maxTimeMS", 0), limits.QueryCountMaxTimeMS)

	n, err := h.backend.Count(ctx, db, coll, filter, maxTimeMS)
	if err != nil {
		return errResult(fmt.Sprintf("count failed: %v", err)), nil
	}
	return newTextResult(fmt.Sprintf("Found %d documents in the collection %q.", n, coll)), nil
}

func (h *Handler) handleInsertMany(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	args := getArgs(request)
	db, coll, bad := target(args)
	if bad != nil {
		return bad, nil
	}
	docs, err := mongodb.DocumentsArg(args["documents"])
	if err != nil {
		return errResult(fmt.Sprintf("invalid documents: %v", err)), nil
	}
	if len(docs) == 0 {
		return errResult("documents must contain at least one document"), nil
	}
	if set, ok := args["set"].(map[string]interface{}); ok {
		if err := applySet(docs, set); err != nil {
			return errResult(err.Error()), nil
		}
	}

	ids, err := h.backend.InsertMany(ctx, db, coll, docs)
	if err != nil {
		return errResult(fmt.Sprintf("insert failed: %v", err)), nil
	}
	text, err := output.FormatValue(bson.D{{Key: "insertedIds", Value: ids}})
	if err != nil {
		return errResult(err.Error()), nil
	}
	return newTextResult(fmt.Sprintf("Inserted %d documents into collection %q.\n%s", len(ids), coll, text)), nil
}

// applySet assigns every path in set on every document, shortest path
// first so that "a" is written before "a.b".
func applySet(docs []bson.D, set map[string]interface{}) error {
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for i := range docs {
		for _, p := range paths {
			// Decoded per document so no two documents share a nested value.
			v, err := mongodb.ValueArg(set[p])
			if err != nil {
				return fmt.Errorf("invalid value for %q: %w", p, err)
			}
			if err := document.SetOrderedFieldPath(&docs[i], p, v); err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
		}
	}
	return nil
}

func (h *Handler) handleUpdateMany(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	args := getArgs(request)
	db, coll, bad := target(args)
	if bad != nil {
		return bad, nil
	}
	filter, err := mongodb.DocumentArg(args["filter"])
	if err != nil {
		return errResult(fmt.Sprintf("invalid filter: %v", err)), nil
	}
	update, err := mongodb.DocumentArg(args["update"])
	if err != nil {
		return errResult(fmt.Sprintf("invalid update: %v", err)), nil
	}
	if len(update) == 0 {
		return errResult("update is required"), nil
	}

	res, err := h.backend.UpdateMany(ctx, db, coll, filter, update, boolArg(args, "upsert", false))
	if err != nil {
		return errResult(fmt.Sprintf("update failed: %v", err)), nil
	}
	msg := fmt.Sprintf("Matched %d documents and modified %d documents in collection %q.", res.Matched, res.Modified, coll)
	if res.Upserted > 0 {
		msg += fmt.Sprintf(" Upserted %d document with id %v.", res.Upserted, res.UpsertedID)
	}
	return newTextResult(msg), nil
}

func (h *Handler) handleDeleteMany(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	args := getArgs(request)
	db, coll, bad := target(args)
	if bad != nil {
		return bad, nil
	}
	filter, err := mongodb.DocumentArg(args["filter"])
	if err != nil {
		return errResult(fmt.Sprintf("invalid filter: %v", err)), nil
	}
	n, err := h.backend.DeleteMany(ctx, db, coll, filter)
	if err != nil {
		return errResult(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return newTextResult(fmt.Sprintf("Deleted %d documents from collection %q.", n, coll)), nil
}

func (h *Handler) handleDropCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	db, coll, bad := target(getArgs(request))
	if bad != nil {
		return bad, nil
	}
	if err := h.backend.DropCollection(ctx, db, coll); err != nil {
		return errResult(fmt.Sprintf("drop failed: %v", err)), nil
	}
	return newTextResult(fmt.Sprintf("Dropped collection %q from database %q.", coll, db)), nil
}

// target extracts the database and collection arguments. The returned
// result is non-nil when either is missing.
func target(args map[string]interface{}) (db, coll string, bad *mcp.CallToolResult) {
	db = stringArg(args, "database", "")
	coll = stringArg(args, "collection", "")
	switch {
	case db == "":
		return "", "", errResult("database is required")
	case coll == "":
		return "", "", errResult("collection is required")
	}
	return db, coll, nil
}

// getArgs safely extracts the arguments map from a CallToolRequest.
// Returns an empty map if Arguments is nil or not a map.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg extracts a string argument with a default value.
func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// boolArg extracts a boolean argument with a default value.
func boolArg(args map[string]interface{}, key string, defaultVal bool) bool {
	b, ok := args[key].(bool)
	if !ok {
		return defaultVal
	}
	return b
}

// int64Arg extracts a positive integer argument. JSON numbers arrive as
// float64; fractions are truncated.
func int64Arg(args map[string]interface{}, key string, defaultVal int64) int64 {
	n, ok := limits.ParseLimit(args[key])
	if !ok {
		return defaultVal
	}
	return n
}

// responseBytesLimitArg returns the caller's byte limit. An omitted argument
// takes the advertised default; a present but unusable one yields nil.
func responseBytesLimitArg(args map[string]interface{}) *int64 {
	v, present := args["responseBytesLimit"]
	if !present || v == nil {
		n := limits.DefaultResponseBytes
		return &n
	}
	n, ok := limits.ParseLimit(v)
	if !ok {
		return nil
	}
	return &n
}

// newTextResult creates a successful MCP tool result with text content.
func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

// errResult creates an MCP tool error result (IsError=true).
// This is returned as a tool-level error, not a transport-level JSON-RPC error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}

// resultText returns the text of the first text content in res.
func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
