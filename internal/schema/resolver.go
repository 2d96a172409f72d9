package schema

import (
	"context"
	"errors"
	"sync"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/logger"
)

// CodeNoDescriptionColumn marks the error returned when a target table has
// none of its candidate columns.
const CodeNoDescriptionColumn = "no_description_column"

// Target is a dimension table whose description column name varies between
// warehouse loads. Candidates are tried in order.
type Target struct {
	Table      string
	Candidates []string
}

// Resolver finds, once, which candidate description column each target
// table actually has, and caches the answer until Invalidate.
type Resolver struct {
	schema  string
	targets map[string]Target
	log     *logger.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver returns a Resolver for the given targets in DefaultSchema.
func NewResolver(log *logger.Logger, targets ...Target) *Resolver {
	if log == nil {
		log = logger.L()
	}
	r := &Resolver{
		schema:  DefaultSchema,
		targets: make(map[string]Target, len(targets)),
		cache:   make(map[string]string, len(targets)),
		log:     log,
	}
	for _, t := range targets {
		r.targets[t.Table] = t
	}
	return r
}

// Warm resolves every target using one connection from p. Failures are
// returned but leave the resolver usable; unresolved tables are retried on
// first use.
func (r *Resolver) Warm(ctx context.Context, p database.Provider) error {
	return database.WithConn(ctx, p, func(c database.Conn) error {
		var errList []error
		for table := range r.targets {
			if _, err := r.Column(ctx, c, table); err != nil {
				errList = append(errList, err)
			}
		}
		return errors.Join(errList...)
	})
}

// Column returns the description column of table, resolving it through q
// when it is not cached.
func (r *Resolver) Column(ctx context.Context, q database.Querier, table string) (string, error) {
	r.mu.RLock()
	col, ok := r.cache[table]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}

	target, ok := r.targets[table]
	if !ok {
		return "", errs.New(errs.ErrKindInvalidInput, "no description candidates registered for "+table)
	}

	cols, err := NewPgIntrospector(q).ColumnNames(ctx, r.schema, table)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindQueryFailed, "failed to resolve description column of "+table, err)
	}
	col = pick(target.Candidates, cols)
	if col == "" {
		return "", errs.New(errs.ErrKindQueryFailed, "no description column found in "+table).WithCode(CodeNoDescriptionColumn)
	}

	r.mu.Lock()
	r.cache[table] = col
	r.mu.Unlock()

	r.log.With().Str("table", table).Str("column", col).Logger().Info("description column resolved")
	return col, nil
}

// Invalidate drops the cached column of table so the next Column call
// resolves it again.
func (r *Resolver) Invalidate(table string) {
	r.mu.Lock()
	delete(r.cache, table)
	r.mu.Unlock()
}

// Resolved returns a copy of the cache.
func (r *Resolver) Resolved() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.cache))
	for k, v := range r.cache {
		out[k] = v
	}
	return out
}

// pick returns the first candidate present in cols.
func pick(candidates, cols []string) string {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	for _, c := range candidates {
		if have[c] {
			return c
		}
	}
	return ""
}
