package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/tablesync/internal/core/domain"
)

// DefaultMaxDepth bounds reference chains followed by ConstructObjectFromTables.
const DefaultMaxDepth = 64

// RecordGetter reads records from one table. *TableService[domain.Record]
// satisfies it.
type RecordGetter = Getter[domain.Record]

// Tables is the universe of named tables available for reference resolution.
type Tables map[string]RecordGetter

// ResolveOption configures ConstructObjectFromTables.
type ResolveOption func(*resolveConfig)

type resolveConfig struct {
	maxDepth int
}

// WithMaxDepth bounds the number of references followed along any single
// path from the root. Values below 1 fall back to DefaultMaxDepth.
func WithMaxDepth(n int) ResolveOption {
	return func(c *resolveConfig) {
		c.maxDepth = n
	}
}

// ConstructObjectFromTables fetches the record at ref and returns it with
// every reference field replaced by the object it points at, recursively.
//
// The result is a tree: a record reachable along two paths is fetched and
// expanded once per path. Sibling references are resolved concurrently.
// A reference that already appears on the path from the root is a cycle and
// fails resolution.
//
// Every failure is reported as ErrMissingTableService, with the underlying
// error kept as its cause.
func ConstructObjectFromTables(ctx context.Context, tables Tables, ref domain.Reference, opts ...ResolveOption) (domain.Object, error) {
	cfg := resolveConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxDepth < 1 {
		cfg.maxDepth = DefaultMaxDepth
	}

	r := &resolver{tables: tables, maxDepth: cfg.maxDepth}
	obj, err := r.deref(ctx, ref, nil, 0)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrMissingTableService.Code) {
			return nil, err
		}
		return nil, domain.ErrMissingTableService.WithDetails(ref.String()).WithCause(err)
	}
	return obj, nil
}

type resolver struct {
	tables   Tables
	maxDepth int
}

// pathNode is one link in the chain of references from the root. Branches
// share their common prefix.
type pathNode struct {
	ref    domain.Reference
	parent *pathNode
}

func (p *pathNode) contains(ref domain.Reference) bool {
	for n := p; n != nil; n = n.parent {
		if n.ref == ref {
			return true
		}
	}
	return false
}

func (r *resolver) deref(ctx context.Context, ref domain.Reference, path *pathNode, depth int) (domain.Object, error) {
	if path.contains(ref) {
		return nil, domain.ErrMissingTableService.WithDetails("reference cycle at " + ref.String())
	}
	if depth >= r.maxDepth {
		return nil, domain.ErrMissingTableService.WithDetails(fmt.Sprintf("reference depth exceeds %d at %s", r.maxDepth, ref))
	}

	getter, ok := r.tables[ref.Table]
	if !ok || getter == nil {
		return nil, domain.ErrMissingTableService.WithDetails("table: " + ref.Table)
	}

	record, err := getter.Get(ctx, ref.Key)
	if err != nil {
		return nil, domain.ErrMissingTableService.WithDetails(ref.String()).WithCause(err)
	}

	obj := make(domain.Object, len(record))
	here := &pathNode{ref: ref, parent: path}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, field := range record {
		child, isRef := field.Reference()
		if !isRef {
			mu.Lock()
			obj[name] = field.Value()
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			nested, err := r.deref(gctx, child, here, depth+1)
			if err != nil {
				return err
			}
			mu.Lock()
			obj[name] = nested
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return obj, nil
}
