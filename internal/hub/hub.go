package hub

import (
	"crypto/sha1"
	"encoding/binary"
	"sync"

	"github.com/mihastele/social-space-harry/internal/presence"
	"github.com/mihastele/social-space-harry/pkg/log"
)

const shardCount = 32

type bucket struct {
	sync.RWMutex
	users map[string]map[string]Handle // userID -> handleID -> handle
}

// Hub is the in-memory presence registry. Identities hash onto shards so
// unrelated users rarely contend; all access to one user's handles happens
// under that user's shard lock.
type Hub struct {
	shards   [shardCount]*bucket
	notifier presence.Notifier
}

var _ Registry = (*Hub)(nil)

func NewHub(notifier presence.Notifier) *Hub {
	if notifier == nil {
		notifier = presence.Nop{}
	}
	h := &Hub{notifier: notifier}
	for i := range h.shards {
		h.shards[i] = &bucket{users: make(map[string]map[string]Handle)}
	}
	return h
}

func (h *Hub) shardFor(userID string) *bucket {
	sum := sha1.Sum([]byte(userID))
	return h.shards[binary.BigEndian.Uint32(sum[:4])%shardCount]
}

func (h *Hub) Register(userID string, c Handle) bool {
	b := h.shardFor(userID)
	b.Lock()
	defer b.Unlock()

	handles, ok := b.users[userID]
	if !ok {
		handles = make(map[string]Handle)
		b.users[userID] = handles
	}
	if _, dup := handles[c.HandleID()]; dup {
		return false
	}
	handles[c.HandleID()] = c
	if len(handles) == 1 {
		h.notifier.Online(userID)
	}

	l := log.L()
	l.Debug().Str(log.FieldUserID, userID).Str(log.FieldClientID, c.HandleID()).Int(log.FieldHandles, len(handles)).Msg("handle registered")
	return true
}

func (h *Hub) Unregister(userID string, c Handle) {
	b := h.shardFor(userID)
	b.Lock()
	defer b.Unlock()

	handles, ok := b.users[userID]
	if !ok {
		return
	}
	if _, ok := handles[c.HandleID()]; !ok {
		return
	}
	delete(handles, c.HandleID())
	if len(handles) == 0 {
		delete(b.users, userID)
		h.notifier.Offline(userID)
	}

	l := log.L()
	l.Debug().Str(log.FieldUserID, userID).Str(log.FieldClientID, c.HandleID()).Int(log.FieldHandles, len(handles)).Msg("handle unregistered")
}

func (h *Hub) Deliver(userID string, data []byte, exclude string) int {
	b := h.shardFor(userID)
	b.RLock()
	defer b.RUnlock()

	delivered := 0
	for id, c := range b.users[userID] {
		if id == exclude {
			continue
		}
		if c.Enqueue(data) {
			delivered++
			continue
		}
		l := log.L()
		l.Warn().Str(log.FieldUserID, userID).Str(log.FieldClientID, id).Msg("send buffer full, frame dropped")
	}
	return delivered
}

// Count returns how many handles userID has.
func (h *Hub) Count(userID string) int {
	b := h.shardFor(userID)
	b.RLock()
	defer b.RUnlock()
	return len(b.users[userID])
}

// Online reports whether userID has at least one handle.
func (h *Hub) Online(userID string) bool {
	return h.Count(userID) > 0
}

// Users returns the number of identities with at least one handle.
func (h *Hub) Users() int {
	n := 0
	for _, b := range h.shards {
		b.RLock()
		n += len(b.users)
		b.RUnlock()
	}
	return n
}
