// Package weaver implements the BFS step (spec §4.7, C8) and the BFS
// driver (spec §4.8, C9): the central algorithm in which the engine's
// ordering guarantees live. Everything upstream (registry, stores,
// managers, fetch pool, cache composition) exists to be driven from here.
package weaver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/biblioweave/weaver/internal/cache"
	"github.com/biblioweave/weaver/internal/datasource"
	"github.com/biblioweave/weaver/internal/destination"
	"github.com/biblioweave/weaver/internal/edgestore"
	"github.com/biblioweave/weaver/internal/fetchpool"
	"github.com/biblioweave/weaver/internal/ids"
	"github.com/biblioweave/weaver/internal/seed"
)

// fetchResult is the single value type both fetch_fn shapes (get_info and
// get_children) are boxed into, so one Pool can bound and dedupe both
// against the same global semaphore (spec §5: "the global degree of
// parallelism into the data source is capped by C7's semaphore" — singular).
type fetchResult struct {
	entity   datasource.Entity   // populated by an info fetch
	info     ids.Info            // populated by an info fetch
	children []datasource.Entity // populated by a children fetch
}

// StepResult is the three-tuple spec §4.7 fixes for one BFS step:
// (new_children, new_edges, failed_children). Per the spec's own
// Open-Questions note, "new_children" is the donor's name for the count of
// entities newly observed by this step; per scenario S1 (seeding a
// childless paper still reports new_entities=1) that count includes the
// parent itself when its info was freshly fetched this call, not only its
// children — so NewChildren here is "entities this step newly saw info
// for," parent included.
type StepResult struct {
	// ParentFailed is true if the parent's own info or child-list fetch
	// came back ∅; when true every other field is zero. A parent-info
	// fetch failure leaves nothing written; a child-list fetch failure
	// comes after the parent's freshly fetched info (if any) was already
	// saved to the destination and the cache, and that save is not
	// counted in NewChildren (spec §4.7 step 4).
	ParentFailed bool
	// NewChildren counts how many of {parent, children} had their info
	// freshly fetched (not already cached) during this step.
	NewChildren int
	// NewEdges counts edges this step committed for the first time.
	NewEdges int
	// FailedChildren counts children whose info fetch came back ∅.
	FailedChildren int
}

// NewPool constructs the shared fetch pool a Deps needs, bounding both
// info and children fetches (across every kind and relation) behind one
// semaphore of size maxConcurrent, per spec §5's "the global degree of
// parallelism into the data source is capped by C7's semaphore". The
// result type is internal to this package, so external wiring code
// (cmd/weave and similar) must go through this constructor rather than
// calling fetchpool.New directly.
//
// cacheTTL wires spec §6's datasource.cache_ttl.<kind> option: when
// non-empty, every successful fetch_fn result (ok with no error) is
// memoized in a fetchpool.TTLCache
// keyed by fetchKey's leading kind prefix, so a retried key within its
// kind's TTL window never reaches the data source at all. A nil or empty
// map leaves raw-response caching disabled, same as before this option
// existed.
func NewPool(maxConcurrent int, cacheTTL map[ids.Kind]time.Duration) *fetchpool.Pool[fetchResult] {
	pool := fetchpool.New[fetchResult](maxConcurrent)
	if len(cacheTTL) > 0 {
		pool = pool.WithRawCache(fetchpool.NewTTLCache[fetchResult](func(key string) time.Duration {
			kind := key
			if i := strings.IndexByte(key, '|'); i >= 0 {
				kind = key[:i]
			}
			return cacheTTL[ids.Kind(kind)]
		}))
	}
	return pool
}

// Deps bundles the collaborators one BFS step needs: the cache
// composition (C10), the data source, the destination, the shared fetch
// pool, and a logger. Grounded on the donor's worker construction, which
// threads its storage, GitHub/GitLab clients, and logger through a single
// context struct rather than a method receiver per collaborator.
type Deps struct {
	Cache       *cache.Cache
	Source      datasource.Source
	Destination destination.Destination
	Pool        *fetchpool.Pool[fetchResult]
	Log         *slog.Logger
	// Timeout bounds a single fetch_fn invocation (spec §5: "each
	// external call has a bounded timeout"; spec §6's
	// datasource.timeout_s). Zero means no deadline is imposed beyond
	// whatever the caller's ctx already carries.
	Timeout time.Duration
	// Metrics is the zero value (all no-op) unless constructed via
	// NewMetrics with a live meter.
	Metrics Metrics
}

func (d Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// fetchCtx derives the context one fetch_fn invocation runs under: ctx
// bounded by d.Timeout when set. A caller still waiting for a semaphore
// slot or for another caller's in-flight fetch leaves through the fetch
// pool's ctx.Done() branch with ok=false; the fetching caller passes the
// context to the adapter, so an adapter call that returns on context
// cancellation also surfaces as ok=false, the same as a ∅ result (spec
// §5). An adapter call that ignores its context is not cut short.
func (d Deps) fetchCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.Timeout)
}

// Step runs the BFS step (spec §4.7) for one parent entity (named by
// parentIDs, any known identifier of it) under relation. It is safe to
// call concurrently for different parents, and for the same parent from
// different relations; all cross-cutting coordination lives in the
// registries, stores, and fetch pool it calls into.
func Step(ctx context.Context, d Deps, relation ids.Relation, parentIDs ids.IdentifierSet) (StepResult, error) {
	schema, ok := ids.Schemas[relation]
	if !ok {
		return StepResult{}, fmt.Errorf("weaver: unknown relation %q", relation)
	}
	log := d.logger().With("relation", relation)

	// Stage 1: resolve parent info. GetInfo's ok means "identifier set
	// resolves to a known canonical," which is also true for a parent
	// that is registered but has never had its info fetched (e.g. a
	// bare seed, or a parent only reached so far via some other
	// relation's pending list) — so whether to fetch is decided by
	// whether info itself came back non-nil, not by ok alone.
	parentMgr := d.Cache.Entities(schema.Parent)
	cid, aliases, pinfo, ok := parentMgr.GetInfo(parentIDs)
	parentFresh := false
	if !ok || pinfo == nil {
		fctx, cancel := d.fetchCtx(ctx)
		res, fok, ferr := d.Pool.GetOrFetch(fctx, fetchKey(schema.Parent, "info", parentIDs), func(ctx context.Context) (fetchResult, bool, error) {
			updated, pinfo, ok, err := d.Source.GetInfo(ctx, datasource.Entity{Kind: schema.Parent, IDs: parentIDs})
			return fetchResult{entity: updated, info: pinfo}, ok, err
		})
		cancel()
		if ferr != nil {
			log.Warn("parent info fetch error, treated as transient", "error", ferr)
		}
		if !fok {
			return StepResult{ParentFailed: true}, nil
		}
		if err := d.Destination.SaveInfo(ctx, schema.Parent, res.entity.IDs, res.info); err != nil {
			return StepResult{}, fmt.Errorf("weaver: save parent info: %w", err)
		}
		var err error
		cid, aliases, err = parentMgr.SetInfo(res.entity.IDs, res.info)
		if err != nil {
			return StepResult{}, fmt.Errorf("weaver: register parent: %w", err)
		}
		parentFresh = true
	}

	// Stage 2: resolve the pending-child list.
	pendingMgr := d.Cache.Pending(relation)
	list, ok := pendingMgr.GetPending(cid)
	if !ok {
		fctx, cancel := d.fetchCtx(ctx)
		res, fok, ferr := d.Pool.GetOrFetch(fctx, fetchKey(schema.Parent, "children:"+string(relation), aliases), func(ctx context.Context) (fetchResult, bool, error) {
			children, ok, err := d.Source.GetChildren(ctx, datasource.Entity{Kind: schema.Parent, IDs: aliases}, relation)
			return fetchResult{children: children}, ok, err
		})
		cancel()
		if ferr != nil {
			log.Warn("child list fetch error, treated as transient", "error", ferr)
		}
		if !fok {
			return StepResult{ParentFailed: true}, nil
		}
		childSets := make([]ids.IdentifierSet, len(res.children))
		for i, ch := range res.children {
			childSets[i] = ch.IDs
		}
		merged, err := pendingMgr.AddPending(cid, childSets)
		if err != nil {
			return StepResult{}, fmt.Errorf("weaver: add pending: %w", err)
		}
		list = merged
	}

	// Stage 3: process every child concurrently.
	childMgr := d.Cache.Entities(schema.Child)
	edges := d.Cache.Edges()

	var (
		mu                               sync.Mutex
		newChildren, newEdges, failedKid int
		wg                               sync.WaitGroup
	)
	for _, childIDs := range list {
		wg.Add(1)
		go func(childIDs ids.IdentifierSet) {
			defer wg.Done()

			// Same reasoning as stage 1: a child is always already
			// registered by this point (the pending-list manager
			// registers every child it stores), so ok alone can't
			// signal whether its info still needs fetching.
			childCID, childAliases, cinfo, ok := childMgr.GetInfo(childIDs)
			childFresh := false
			if !ok || cinfo == nil {
				fctx, cancel := d.fetchCtx(ctx)
				res, fok, ferr := d.Pool.GetOrFetch(fctx, fetchKey(schema.Child, "info", childIDs), func(ctx context.Context) (fetchResult, bool, error) {
					updated, cinfo, ok, err := d.Source.GetInfo(ctx, datasource.Entity{Kind: schema.Child, IDs: childIDs})
					return fetchResult{entity: updated, info: cinfo}, ok, err
				})
				cancel()
				if ferr != nil {
					log.Warn("child info fetch error, treated as transient", "error", ferr)
				}
				if !fok {
					mu.Lock()
					failedKid++
					mu.Unlock()
					return
				}
				if err := d.Destination.SaveInfo(ctx, schema.Child, res.entity.IDs, res.info); err != nil {
					log.Error("save child info failed, leaving uncached for retry", "error", err)
					mu.Lock()
					failedKid++
					mu.Unlock()
					return
				}
				cid2, aliases2, err := childMgr.SetInfo(res.entity.IDs, res.info)
				if err != nil {
					log.Error("register child failed", "error", err)
					mu.Lock()
					failedKid++
					mu.Unlock()
					return
				}
				childCID, childAliases = cid2, aliases2
				childFresh = true
			}

			edge := edgestore.Edge{Relation: relation, Parent: cid, Child: childCID}
			newEdge := false
			if !edges.Contains(edge) {
				if err := d.Destination.Link(ctx, relation, aliases, childAliases); err != nil {
					log.Error("link failed, edge not marked committed", "error", err)
				} else if edges.Commit(edge) {
					newEdge = true
				}
			}

			mu.Lock()
			if childFresh {
				newChildren++
			}
			if newEdge {
				newEdges++
			}
			mu.Unlock()
		}(childIDs)
	}
	wg.Wait()

	if parentFresh {
		newChildren++
	}

	return StepResult{NewChildren: newChildren, NewEdges: newEdges, FailedChildren: failedKid}, nil
}

// fetchKey builds a dedup key for the fetch pool: kind, operation, and the
// sorted identifiers involved, so two calls naming an entity by the same
// identifier set, in any order, collapse onto one in-flight fetch (spec
// §4.6). Calls whose identifier sets differ get different keys, even when
// the sets overlap.
func fetchKey(kind ids.Kind, op string, set ids.IdentifierSet) string {
	idList := set.Slice()
	sort.Strings(idList)
	return string(kind) + "|" + op + "|" + strings.Join(idList, ",")
}

// PassResult is what one full driver pass (spec §4.8's step()) reports:
// the sums of every BFS step run during the pass, plus the
// failed-parent count step() doesn't fold into NewChildren/NewEdges.
type PassResult struct {
	NewChildren    int
	NewEdges       int
	FailedChildren int
	FailedParents  int
}

// Engine is the BFS driver (C9): it orchestrates init() and repeated
// passes over a fixed, ordered list of relations, wiring Deps into Step.
type Engine struct {
	Deps
	// Relations is the fixed per-pass order a composite weaver runs in
	// (e.g. AUTHORED, then PUBLISHED_IN, then CITES). A single-relation
	// weaver configures a slice of one. Every relation in ids.Schemas has
	// Paper as its parent kind, so passes only expand outward from papers;
	// there is no Author→Paper or Venue→Paper relation.
	Relations []ids.Relation
	Seeds     []seed.Initializer
}

// New constructs an Engine. relations fixes the per-pass run order;
// seeds is consulted once by Init.
func New(d Deps, relations []ids.Relation, seeds []seed.Initializer) *Engine {
	return &Engine{Deps: d, Relations: relations, Seeds: seeds}
}

// Init runs the seed initializer(s) (spec §4.8's init()): for each seed
// entity, it runs the BFS step for every configured relation whose parent
// kind matches the seed's kind. A seed kind with no matching relation
// (e.g. a leaf kind the composite weaver never expands outward from) is
// still registered, so it is discoverable as a merge target by other
// parents' child fetches, and its own arrival counts as one new entity.
//
// A seed whose very first parent-info fetch fails (∅) is registered into
// the registry anyway (with no info, no destination write) so it remains
// enumerable by the next Pass — Init runs exactly once per Run, so a
// failed seed step can only be retried if the seed itself stays
// reachable as an ordinary registered parent (spec §7: "a fail result is
// transient... the engine retries next pass").
//
// Returns the number of new entities observed while seeding.
func (e *Engine) Init(ctx context.Context) (int, error) {
	log := e.logger()

	type job struct {
		kind   ids.Kind
		entity datasource.Entity
		rel    ids.Relation // "" for a leaf seed with no matching relation
	}
	var jobs []job
	for _, init := range e.Seeds {
		kind := init.Kind()
		for _, entity := range init.Seeds() {
			matched := false
			for _, rel := range e.Relations {
				if ids.Schemas[rel].Parent != kind {
					continue
				}
				matched = true
				jobs = append(jobs, job{kind: kind, entity: entity, rel: rel})
			}
			if !matched {
				jobs = append(jobs, job{kind: kind, entity: entity})
			}
		}
	}

	// Seed steps run concurrently across seeds, exactly like a driver
	// pass (spec §4.7: "per-parent work within one pass runs in
	// parallel") — only the fetch pool's semaphore bounds how many
	// actually reach the data source at once. errgroup.Group gives us
	// exactly the semantics this needs: every job's goroutine runs to
	// completion regardless of a sibling's error (we never call
	// WithContext, so there is no cancellation fan-out), and Wait
	// surfaces the first one.
	var (
		mu    sync.Mutex
		total int
		g     errgroup.Group
	)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if j.rel == "" {
				if _, _, err := e.Cache.Entities(j.kind).RegisterOnly(j.entity.IDs); err != nil {
					return err
				}
				mu.Lock()
				total++
				mu.Unlock()
				return nil
			}

			res, err := Step(ctx, e.Deps, j.rel, j.entity.IDs)
			if err != nil {
				return err
			}
			if res.ParentFailed {
				if _, _, rerr := e.Cache.Entities(j.kind).RegisterOnly(j.entity.IDs); rerr != nil {
					return rerr
				}
				log.Warn("seed step failed, retryable next pass", "relation", j.rel)
				return nil
			}
			log.Info("seed step",
				"relation", j.rel,
				"new_children", res.NewChildren,
				"new_edges", res.NewEdges,
				"failed_children", res.FailedChildren,
			)
			mu.Lock()
			total += res.NewChildren
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

// Pass runs one full driver pass (spec §4.8's step()): it snapshots every
// currently-registered parent of each configured relation's parent kind,
// runs a BFS step per (relation, parent) concurrently, awaits all of
// them, and sums the results.
func (e *Engine) Pass(ctx context.Context) (PassResult, error) {
	type job struct {
		relation  ids.Relation
		parentIDs ids.IdentifierSet
	}

	// Each relation gets its own snapshot of its parent kind's registry,
	// even when two relations share a parent kind (e.g. Paper is the
	// parent of AUTHORED, PUBLISHED_IN, CITES, and CITED_BY): each is an
	// independent BFS step with its own pending list and edge namespace.
	var jobs []job
	for _, rel := range e.Relations {
		parentKind := ids.Schemas[rel].Parent
		for _, handle := range e.Cache.Entities(parentKind).IterateEntities() {
			jobs = append(jobs, job{relation: rel, parentIDs: handle.Aliases})
		}
	}

	var (
		mu  sync.Mutex
		agg PassResult
		g   errgroup.Group
	)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res, err := Step(ctx, e.Deps, j.relation, j.parentIDs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				return err
			}
			if res.ParentFailed {
				agg.FailedParents++
				return nil
			}
			agg.NewChildren += res.NewChildren
			agg.NewEdges += res.NewEdges
			agg.FailedChildren += res.FailedChildren
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return agg, err
	}
	return agg, nil
}

// Run implements spec §4.8's run(max_iterations): it calls Init, then
// repeatedly Pass until a pass reports zero new entities (quiescence,
// spec §8's glossary) or max_iterations passes have run (0 means
// unbounded). Returns the cumulative new-entity count across init and
// every pass.
func (e *Engine) Run(ctx context.Context, maxIterations int) (int, error) {
	log := e.logger()

	total, err := e.Init(ctx)
	if err != nil {
		return total, fmt.Errorf("weaver: init: %w", err)
	}

	for iter := 0; maxIterations <= 0 || iter < maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		pr, err := e.Pass(ctx)
		if err != nil {
			return total, fmt.Errorf("weaver: pass %d: %w", iter, err)
		}
		e.Metrics.recordPass(ctx, pr)
		log.Info("pass complete",
			"iteration", iter,
			"new_children", pr.NewChildren,
			"new_edges", pr.NewEdges,
			"failed_children", pr.FailedChildren,
			"failed_parents", pr.FailedParents,
		)
		total += pr.NewChildren
		if pr.NewChildren == 0 {
			break
		}
	}
	return total, nil
}
