// Package infostore implements the info store (spec §4.2): a
// cid -> info mapping, with optional per-kind TTL expiry. Two backends are
// provided behind the same narrow Store interface, selected at
// construction time, mirroring the donor's storage-backend-registry
// pattern (internal/storage/factory in the teacher repo).
package infostore

import (
	"sync"
	"time"

	"github.com/biblioweave/weaver/internal/ids"
)

// Store is the narrow interface consumed by the entity-info manager (C5).
// Implementations need only whole-record get/set; there is no
// update-in-place semantics (spec §4.2).
type Store interface {
	// Get returns the info for cid and whether it was present (and not
	// expired). TTL expiry must never delete the registry entry that
	// produced cid — that invariant lives one layer up, in the registry.
	Get(cid ids.CanonicalID) (ids.Info, bool)
	// Set overwrites the info for cid.
	Set(cid ids.CanonicalID, info ids.Info)
}

// entry pairs a value with its expiry instant. A zero Expires means
// permanent.
type entry struct {
	info    ids.Info
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Memory is an in-process Store, the one cache.NewMemory builds.
type Memory struct {
	ttl time.Duration // 0 = permanent

	mu   sync.Mutex
	data map[ids.CanonicalID]entry
	now  func() time.Time
}

// NewMemory creates an in-process info store. ttl == 0 means entries never
// expire.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:  ttl,
		data: make(map[ids.CanonicalID]entry),
		now:  time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(cid ids.CanonicalID) (ids.Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[cid]
	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		delete(m.data, cid)
		return nil, false
	}
	return e.info.Clone(), true
}

// Set implements Store.
func (m *Memory) Set(cid ids.CanonicalID, info ids.Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{info: info.Clone()}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.data[cid] = e
}

// KVClient is the minimal external key-value contract an "external-kv"
// info store backend needs: byte-oriented get/set with an optional TTL,
// the same shape the donor's storage/factory backend-registry leaves open
// for pluggable drivers (Dolt/SQLite in the donor's case). A concrete
// network-backed client (Redis or similar) can satisfy this interface
// without this package depending on any specific driver.
type KVClient interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
}

// ExternalKV is a Store backed by an external KVClient, for callers that
// assemble a cache with cache.NewBuilder. Info values are serialized by
// the supplied codec (typically encoding/json).
type ExternalKV struct {
	client KVClient
	prefix string
	ttl    time.Duration
	encode func(ids.Info) ([]byte, error)
	decode func([]byte) (ids.Info, error)
}

// NewExternalKV wires an ExternalKV store. prefix namespaces keys (e.g. by
// entity kind) so distinct entity-info managers can share one client.
func NewExternalKV(client KVClient, prefix string, ttl time.Duration, encode func(ids.Info) ([]byte, error), decode func([]byte) (ids.Info, error)) *ExternalKV {
	return &ExternalKV{client: client, prefix: prefix, ttl: ttl, encode: encode, decode: decode}
}

// Get implements Store. A CacheBackend error from the client is swallowed
// as a miss; per spec §7 a cache-store error propagates only from
// operations that a caller can observe synchronously, and Store's
// interface here has no error return, consistent with how the in-memory
// backend can never fail. Callers needing the stronger guarantee should
// wrap KVClient with error propagation at the call site that owns a
// context.
func (e *ExternalKV) Get(cid ids.CanonicalID) (ids.Info, bool) {
	raw, ok, err := e.client.Get(e.key(cid))
	if err != nil || !ok {
		return nil, false
	}
	info, err := e.decode(raw)
	if err != nil {
		return nil, false
	}
	return info, true
}

// Set implements Store.
func (e *ExternalKV) Set(cid ids.CanonicalID, info ids.Info) {
	raw, err := e.encode(info)
	if err != nil {
		return
	}
	_ = e.client.Set(e.key(cid), raw, e.ttl)
}

func (e *ExternalKV) key(cid ids.CanonicalID) string {
	return e.prefix + ":" + string(cid)
}
