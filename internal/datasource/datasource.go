// Package datasource defines the external data-source contract (spec
// §6): the only boundary across which the weaver talks to upstream
// bibliographic services (DBLP, Semantic Scholar, ...). Concrete HTTP
// adapters are out of scope (spec §1); this package defines the
// interface, a retry/rate-limit wrapper any adapter can sit behind, and
// an in-memory fixture used by the weaver's own tests.
package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/biblioweave/weaver/internal/ids"
)

// Entity is what an adapter exchanges with the weaver: an identifier set
// plus the kind it belongs to.
type Entity struct {
	Kind ids.Kind
	IDs  ids.IdentifierSet
}

// Source is the per-kind contract every data-source adapter implements
// (spec §6). A "fail" result is transient: ok=false with a nil error
// signals the engine should retry on the next pass; a non-nil error is
// also treated as transient by the fetch pool but is preserved for
// logging.
type Source interface {
	// GetInfo fetches info for entity, returning the same entity with any
	// additional identifiers the adapter discovered alongside it (e.g. a
	// DOI found next to an arXiv ID).
	GetInfo(ctx context.Context, entity Entity) (updated Entity, info ids.Info, ok bool, err error)
	// GetChildren lists entity's children under relation.
	GetChildren(ctx context.Context, entity Entity, relation ids.Relation) (children []Entity, ok bool, err error)
}

// RateLimited wraps a Source with a per-source token-bucket limiter,
// grounded on blampe/rreading-glasses's upstream HTTP transport, which
// applies golang.org/x/time/rate to every outbound call.
type RateLimited struct {
	inner   Source
	limiter *rate.Limiter
}

// NewRateLimited wraps src with a limiter allowing at most rps requests
// per second, bursting up to burst.
func NewRateLimited(src Source, rps float64, burst int) *RateLimited {
	return &RateLimited{inner: src, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// GetInfo implements Source.
func (r *RateLimited) GetInfo(ctx context.Context, entity Entity) (Entity, ids.Info, bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return entity, nil, false, err
	}
	return r.inner.GetInfo(ctx, entity)
}

// GetChildren implements Source.
func (r *RateLimited) GetChildren(ctx context.Context, entity Entity, relation ids.Relation) ([]Entity, bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	return r.inner.GetChildren(ctx, entity, relation)
}

// Retrying wraps a Source with exponential-backoff retry on transient
// errors, the same posture the donor's GitHub/GitLab/Jira sync clients
// take with github.com/cenkalti/backoff/v4 around their HTTP calls. A
// retry-exhausted fetch surfaces as ok=false, never a panic, so it
// collapses into the fetch pool's ordinary "retry next pass" path.
type Retrying struct {
	inner   Source
	newBack func() backoff.BackOff
}

// NewRetrying wraps src with a default exponential backoff whose total
// retry time is capped at maxElapsed.
func NewRetrying(src Source, maxElapsed time.Duration) *Retrying {
	return &Retrying{
		inner: src,
		newBack: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}
}

// GetInfo implements Source.
func (r *Retrying) GetInfo(ctx context.Context, entity Entity) (Entity, ids.Info, bool, error) {
	var (
		updated Entity
		info    ids.Info
		ok      bool
	)
	err := backoff.Retry(func() error {
		var err error
		updated, info, ok, err = r.inner.GetInfo(ctx, entity)
		if err != nil {
			return err
		}
		if !ok {
			return errTransient
		}
		return nil
	}, backoff.WithContext(r.newBack(), ctx))
	if err != nil {
		return entity, nil, false, nil
	}
	return updated, info, true, nil
}

// GetChildren implements Source.
func (r *Retrying) GetChildren(ctx context.Context, entity Entity, relation ids.Relation) ([]Entity, bool, error) {
	var children []Entity
	err := backoff.Retry(func() error {
		var (
			err error
			ok  bool
		)
		children, ok, err = r.inner.GetChildren(ctx, entity, relation)
		if err != nil {
			return err
		}
		if !ok {
			return errTransient
		}
		return nil
	}, backoff.WithContext(r.newBack(), ctx))
	if err != nil {
		return nil, false, nil
	}
	return children, true, nil
}

var errTransient = &transientError{}

type transientError struct{}

func (*transientError) Error() string { return "transient fetch failure" }

// Fixture is an in-memory Source for tests: a fixed table of
// entity -> info and entity -> relation -> children. It answers ∅
// (ok=false) for an entity it has no entry for, and for the next n
// GetInfo calls configured via FailInfoOnce; otherwise it never fails,
// letting scenario tests (spec §8's S1-S6) script a deterministic data
// source.
type Fixture struct {
	mu       sync.Mutex
	info     map[string]fixtureInfo
	children map[string]map[ids.Relation][]Entity
	failInfo map[string]int // remaining failures before success
	failKids map[string]int
}

type fixtureInfo struct {
	updated Entity
	info    ids.Info
}

// NewFixture creates an empty fixture data source.
func NewFixture() *Fixture {
	return &Fixture{
		info:     make(map[string]fixtureInfo),
		children: make(map[string]map[ids.Relation][]Entity),
		failInfo: make(map[string]int),
		failKids: make(map[string]int),
	}
}

func fixtureKey(entity Entity) string {
	// Any member identifier is a valid lookup key for test fixtures; the
	// caller is expected to seed every alias it wants reachable.
	for id := range entity.IDs {
		return string(entity.Kind) + ":" + id
	}
	return string(entity.Kind) + ":<empty>"
}

// SetInfo configures the fixture to answer GetInfo(entity) with
// (updated, info, true, nil).
func (f *Fixture) SetInfo(entity Entity, updated Entity, info ids.Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range entity.IDs {
		f.info[string(entity.Kind)+":"+id] = fixtureInfo{updated: updated, info: info}
	}
}

// SetChildren configures the fixture to answer
// GetChildren(entity, relation) with (children, true, nil).
func (f *Fixture) SetChildren(entity Entity, relation ids.Relation, children []Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range entity.IDs {
		key := string(entity.Kind) + ":" + id
		if f.children[key] == nil {
			f.children[key] = make(map[ids.Relation][]Entity)
		}
		f.children[key][relation] = children
	}
}

// FailInfoOnce makes the next n GetInfo calls for entity return
// (entity, nil, false, nil), simulating a transient failure (spec §8 S3).
func (f *Fixture) FailInfoOnce(entity Entity, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range entity.IDs {
		f.failInfo[string(entity.Kind)+":"+id] = n
	}
}

// GetInfo implements Source.
func (f *Fixture) GetInfo(_ context.Context, entity Entity) (Entity, ids.Info, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fixtureKey(entity)
	if n := f.failInfo[key]; n > 0 {
		f.failInfo[key] = n - 1
		return entity, nil, false, nil
	}
	fi, ok := f.info[key]
	if !ok {
		return entity, nil, false, nil
	}
	return fi.updated, fi.info.Clone(), true, nil
}

// GetChildren implements Source.
func (f *Fixture) GetChildren(_ context.Context, entity Entity, relation ids.Relation) ([]Entity, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fixtureKey(entity)
	if n := f.failKids[key]; n > 0 {
		f.failKids[key] = n - 1
		return nil, false, nil
	}
	byRel, ok := f.children[key]
	if !ok {
		return nil, false, nil
	}
	kids, ok := byRel[relation]
	if !ok {
		return []Entity{}, true, nil
	}
	return kids, true, nil
}
