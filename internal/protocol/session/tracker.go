package session

import (
	"sort"
	"sync"
	"time"
)

// SessionInfo is the listing view of one open session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Transcode string    `json:"transcoder"`
	Remote    string    `json:"remote"`
	NodeID    string    `json:"node_id,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
}

// Tracker indexes open sessions by id.
type Tracker struct {
	mu    sync.RWMutex
	items map[string]SessionInfo
}

func NewTracker() *Tracker {
	return &Tracker{
		items: make(map[string]SessionInfo),
	}
}

func (t *Tracker) Upsert(item SessionInfo) {
	if item.ID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[item.ID] = item
}

func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, id)
}

func (t *Tracker) Get(id string) (SessionInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[id]
	return item, ok
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// List returns sessions oldest first.
func (t *Tracker) List() []SessionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SessionInfo, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}
