// Package limits resolves the byte and time budgets applied to cursor reads.
//
// Configuration values arrive untyped from flags, environment or YAML, so
// every entry point here validates them and treats anything unusable as
// "not set" instead of failing.
package limits

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Tag names the limit that caused a bounded read to stop early.
// The zero value means no limit was responsible.
type Tag string

const (
	ConfigMaxDocumentsPerQuery Tag = "config.maxDocumentsPerQuery"
	ConfigMaxBytesPerQuery     Tag = "config.maxBytesPerQuery"
	ToolResponseBytesLimit     Tag = "tool.responseBytesLimit"
)

// DefaultResponseBytes applies when neither the caller nor the server
// configured a usable byte budget.
const DefaultResponseBytes int64 = 1024 * 1024 // 1 MiB

// Ceilings for auxiliary count queries, in milliseconds. Both sit below
// the main operation timeout so a count is never the long pole.
const (
	QueryCountMaxTimeMS     int64 = 10_000
	AggregateCountMaxTimeMS int64 = 60_000
)

var tagDescriptions = map[Tag]string{
	ConfigMaxDocumentsPerQuery: "server's configured - maxDocumentsPerQuery",
	ConfigMaxBytesPerQuery:     "server's configured - maxBytesPerQuery",
	ToolResponseBytesLimit:     "tool's parameter - responseBytesLimit",
}

// Describe returns the user-facing text for the tag, or "" for the zero tag.
func (t Tag) Describe() string {
	return tagDescriptions[t]
}

// EffectiveLimit is the byte budget for one read and the source it came from.
type EffectiveLimit struct {
	LimitBytes int64
	CappedBy   Tag
}

// ParseLimit converts an untyped configuration value into a positive limit.
// Zero, negative, non-finite and non-numeric inputs report ok=false.
// Fractional values are truncated toward zero.
func ParseLimit(v any) (int64, bool) {
	var n int64
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		n = int64(x)
	case float32:
		return parseFloat(float64(x))
	case float64:
		return parseFloat(x)
	case json.Number:
		return ParseLimit(string(x))
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			n = i
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return parseFloat(f)
	default:
		return 0, false
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

func parseFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 {
		return 0, false
	}
	n := int64(f)
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// ResolveEffectiveLimit picks the smaller of the caller's and the server's
// byte budgets. On a tie the server setting is credited. When neither is
// usable the result is DefaultResponseBytes with no attribution.
func ResolveEffectiveLimit(toolResponseBytesLimit *int64, configuredMaxBytesPerQuery any) EffectiveLimit {
	configured, configOK := ParseLimit(configuredMaxBytesPerQuery)

	var tool int64
	toolOK := toolResponseBytesLimit != nil && *toolResponseBytesLimit > 0
	if toolOK {
		tool = *toolResponseBytesLimit
	}

	switch {
	case configOK && toolOK:
		if configured <= tool {
			return EffectiveLimit{LimitBytes: configured, CappedBy: ConfigMaxBytesPerQuery}
		}
		return EffectiveLimit{LimitBytes: tool, CappedBy: ToolResponseBytesLimit}
	case configOK:
		return EffectiveLimit{LimitBytes: configured, CappedBy: ConfigMaxBytesPerQuery}
	case toolOK:
		return EffectiveLimit{LimitBytes: tool, CappedBy: ToolResponseBytesLimit}
	default:
		return EffectiveLimit{LimitBytes: DefaultResponseBytes}
	}
}

// CapMaxTimeMS bounds the execution time requested for an auxiliary count.
// A non-positive request means "unset" and yields the ceiling.
func CapMaxTimeMS(requested, ceiling int64) int64 {
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}
