// Package events keeps a bounded log of recent tool calls.
package events

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Event records the outcome of one tool call.
type Event struct {
	ID         string        `json:"id"`
	Seq        uint64        `json:"seq"`
	Tool       string        `json:"tool"`
	Database   string        `json:"database,omitempty"`
	Collection string        `json:"collection,omitempty"`
	Start      time.Time     `json:"start"`
	Duration   time.Duration `json:"duration_ns"`
	Documents  int           `json:"documents,omitempty"`
	CappedBy   string        `json:"capped_by,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Cache holds the most recent events. The oldest event is evicted once
// the cache is full. Safe for concurrent use.
type Cache struct {
	seq   atomic.Uint64
	items *lru.Cache[string, Event]
}

// NewCache creates a Cache holding up to size events.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 1
	}
	items, err := lru.New[string, Event](size)
	if err != nil {
		return nil, err
	}
	return &Cache{items: items}, nil
}

// Add stores ev, assigning its ID and sequence number.
func (c *Cache) Add(ev Event) Event {
	ev.ID = uuid.NewString()
	ev.Seq = c.seq.Add(1)
	c.items.Add(ev.ID, ev)
	return ev
}

// Recent returns the cached events, newest first.
func (c *Cache) Recent() []Event {
	out := c.items.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out
}

// Len returns the number of cached events.
func (c *Cache) Len() int { return c.items.Len() }
