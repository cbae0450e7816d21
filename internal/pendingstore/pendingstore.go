// Package pendingstore implements the pending-list store (spec §4.3): an
// ordered, per-parent list of child identifier sets, retrieved and
// rewritten wholesale.
package pendingstore

import (
	"sync"
	"time"

	"github.com/biblioweave/weaver/internal/ids"
)

// Store is the narrow interface consumed by the pending-list manager
// (C6). Get distinguishes "never set" (nil, false) from "explicitly set
// empty" (empty non-nil slice, true) per spec §8 boundary behaviour.
type Store interface {
	Get(parent ids.CanonicalID) ([]ids.IdentifierSet, bool)
	Set(parent ids.CanonicalID, children []ids.IdentifierSet)
}

type entry struct {
	children []ids.IdentifierSet
	expires  time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Memory is an in-process Store.
type Memory struct {
	ttl time.Duration

	mu   sync.Mutex
	data map[ids.CanonicalID]entry
	now  func() time.Time
}

// NewMemory creates an in-process pending-list store. ttl == 0 means
// entries never expire.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, data: make(map[ids.CanonicalID]entry), now: time.Now}
}

// Get implements Store.
func (m *Memory) Get(parent ids.CanonicalID) ([]ids.IdentifierSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[parent]
	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		delete(m.data, parent)
		return nil, false
	}
	return cloneList(e.children), true
}

// Set implements Store. children may be an empty, non-nil slice to record
// "parent has no children of this kind" distinctly from "not set".
func (m *Memory) Set(parent ids.CanonicalID, children []ids.IdentifierSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if children == nil {
		children = []ids.IdentifierSet{}
	}
	e := entry{children: cloneList(children)}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.data[parent] = e
}

func cloneList(in []ids.IdentifierSet) []ids.IdentifierSet {
	out := make([]ids.IdentifierSet, len(in))
	for i, s := range in {
		clone := make(ids.IdentifierSet, len(s))
		for id := range s {
			clone[id] = struct{}{}
		}
		out[i] = clone
	}
	return out
}

// KVClient is the same narrow external-store contract used by infostore;
// a pending list is serialized as an ordered list of identifier slices.
type KVClient interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
}

// ExternalKV is a Store backed by an external KVClient.
type ExternalKV struct {
	client KVClient
	prefix string
	ttl    time.Duration
	encode func([]ids.IdentifierSet) ([]byte, error)
	decode func([]byte) ([]ids.IdentifierSet, error)
}

// NewExternalKV wires an ExternalKV pending-list store for one relation.
func NewExternalKV(client KVClient, prefix string, ttl time.Duration, encode func([]ids.IdentifierSet) ([]byte, error), decode func([]byte) ([]ids.IdentifierSet, error)) *ExternalKV {
	return &ExternalKV{client: client, prefix: prefix, ttl: ttl, encode: encode, decode: decode}
}

// Get implements Store.
func (e *ExternalKV) Get(parent ids.CanonicalID) ([]ids.IdentifierSet, bool) {
	raw, ok, err := e.client.Get(e.key(parent))
	if err != nil || !ok {
		return nil, false
	}
	list, err := e.decode(raw)
	if err != nil {
		return nil, false
	}
	return list, true
}

// Set implements Store.
func (e *ExternalKV) Set(parent ids.CanonicalID, children []ids.IdentifierSet) {
	if children == nil {
		children = []ids.IdentifierSet{}
	}
	raw, err := e.encode(children)
	if err != nil {
		return
	}
	_ = e.client.Set(e.key(parent), raw, e.ttl)
}

func (e *ExternalKV) key(parent ids.CanonicalID) string {
	return e.prefix + ":" + string(parent)
}
