// Package store keeps the aggregate report of every scope.
//
// Merges on one scope are serialized by that scope's mutex; different scopes
// never contend. Readers load an immutable snapshot and never wait for a merge.
// With a Backend configured the snapshot is a cache of the backend's state and
// every merge is written through before it becomes visible.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/coverage-backend/internal/coverage/aggregate"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

// MergeFunc computes the next report of a scope from the current one (nil
// when the scope is empty). It returns changed=false to leave the scope as is.
type MergeFunc func(cur *aggregate.Report) (next *aggregate.Report, changed bool, err error)

// Backend persists reports. Update must run fn against the latest persisted
// state and save its result atomically with respect to other writers,
// including other processes.
type Backend interface {
	Load(ctx context.Context, scope coverage.Scope) (*aggregate.Report, error)
	Update(ctx context.Context, scope coverage.Scope, fn MergeFunc) (*aggregate.Report, error)
	Delete(ctx context.Context, scope coverage.Scope) error
	Scopes(ctx context.Context, organisation, commit string) ([]coverage.Scope, error)
}

// Notifier tells other processes that a scope changed.
type Notifier interface {
	Publish(ctx context.Context, scope coverage.Scope) error
}

type Options struct {
	Backend  Backend
	Notifier Notifier
}

type Store struct {
	log      *logger.Logger
	backend  Backend
	notifier Notifier

	mu    sync.Mutex
	slots map[coverage.Scope]*slot

	loads singleflight.Group
}

type snapshot struct {
	report *aggregate.Report
}

type slot struct {
	// merge serializes writers of the scope.
	merge sync.Mutex

	// install guards snap together with gen, so a slow cold load cannot
	// overwrite a newer snapshot.
	install sync.Mutex
	gen     uint64
	snap    atomic.Pointer[snapshot]
}

func New(log *logger.Logger, opts Options) *Store {
	return &Store{
		log:      log.With("component", "ReportStore"),
		backend:  opts.Backend,
		notifier: opts.Notifier,
		slots:    map[coverage.Scope]*slot{},
	}
}

func (s *Store) slot(scope coverage.Scope) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[scope]
	if !ok {
		sl = &slot{}
		s.slots[scope] = sl
	}
	return sl
}

func (sl *slot) publish(r *aggregate.Report) {
	sl.install.Lock()
	sl.gen++
	sl.snap.Store(&snapshot{report: r})
	sl.install.Unlock()
}

func (sl *slot) generation() uint64 {
	sl.install.Lock()
	defer sl.install.Unlock()
	return sl.gen
}

// installIfCurrent stores r unless the slot changed since gen was read.
func (sl *slot) installIfCurrent(gen uint64, r *aggregate.Report) *aggregate.Report {
	sl.install.Lock()
	defer sl.install.Unlock()
	if sl.gen != gen {
		if cur := sl.snap.Load(); cur != nil {
			return cur.report
		}
		return r
	}
	sl.snap.Store(&snapshot{report: r})
	return r
}

// Get returns the scope's report. ok is false when the scope holds nothing.
func (s *Store) Get(ctx context.Context, scope coverage.Scope) (*aggregate.Report, bool, error) {
	sl := s.slot(scope)
	if snap := sl.snap.Load(); snap != nil {
		return snap.report, snap.report.Len() > 0, nil
	}
	if s.backend == nil {
		return nil, false, nil
	}

	v, err, _ := s.loads.Do(loadKey(scope), func() (interface{}, error) {
		gen := sl.generation()
		r, err := s.backend.Load(ctx, scope)
		if err != nil {
			return nil, err
		}
		return sl.installIfCurrent(gen, r), nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", scope, err)
	}
	r, _ := v.(*aggregate.Report)
	return r, r.Len() > 0, nil
}

// Update runs fn as the scope's critical section and publishes the result.
func (s *Store) Update(ctx context.Context, scope coverage.Scope, fn MergeFunc) (*aggregate.Report, error) {
	sl := s.slot(scope)
	sl.merge.Lock()
	defer sl.merge.Unlock()

	var (
		next    *aggregate.Report
		changed bool
		err     error
	)
	if s.backend != nil {
		next, err = s.backend.Update(ctx, scope, func(cur *aggregate.Report) (*aggregate.Report, bool, error) {
			n, c, err := fn(cur)
			changed = c
			return n, c, err
		})
	} else {
		var cur *aggregate.Report
		if snap := sl.snap.Load(); snap != nil {
			cur = snap.report
		}
		next, changed, err = fn(cur)
		if err == nil && !changed {
			next = cur
		}
	}
	if err != nil {
		return nil, err
	}

	sl.publish(next)
	if changed {
		s.notify(ctx, scope)
	}
	return next, nil
}

// Put replaces the scope's report.
func (s *Store) Put(ctx context.Context, scope coverage.Scope, r *aggregate.Report) error {
	_, err := s.Update(ctx, scope, func(*aggregate.Report) (*aggregate.Report, bool, error) {
		return r, true, nil
	})
	return err
}

// Delete drops a scope. A missing scope is not an error.
func (s *Store) Delete(ctx context.Context, scope coverage.Scope) error {
	sl := s.slot(scope)
	sl.merge.Lock()
	defer sl.merge.Unlock()

	if s.backend != nil {
		if err := s.backend.Delete(ctx, scope); err != nil {
			return fmt.Errorf("delete %s: %w", scope, err)
		}
	}
	sl.publish(nil)
	s.notify(ctx, scope)
	return nil
}

// Invalidate drops the cached snapshot of a scope so the next Get reloads it
// from the backend. Without a backend the store is the source of truth and
// nothing is dropped.
func (s *Store) Invalidate(scope coverage.Scope) {
	if s.backend == nil {
		return
	}
	s.mu.Lock()
	sl, ok := s.slots[scope]
	s.mu.Unlock()
	if !ok {
		return
	}
	sl.install.Lock()
	sl.gen++
	sl.snap.Store(nil)
	sl.install.Unlock()
}

// Scopes lists the non-empty scopes of an organisation and commit, ordered by
// file path.
func (s *Store) Scopes(ctx context.Context, organisation, commit string) ([]coverage.Scope, error) {
	if s.backend != nil {
		out, err := s.backend.Scopes(ctx, organisation, commit)
		if err != nil {
			return nil, fmt.Errorf("list scopes: %w", err)
		}
		return out, nil
	}

	s.mu.Lock()
	var out []coverage.Scope
	for scope, sl := range s.slots {
		if scope.Organisation != organisation || scope.Commit != commit {
			continue
		}
		if snap := sl.snap.Load(); snap != nil && snap.report.Len() > 0 {
			out = append(out, scope)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b coverage.Scope) int { return strings.Compare(a.File, b.File) })
	return out, nil
}

func (s *Store) notify(ctx context.Context, scope coverage.Scope) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, scope); err != nil {
		s.log.Warn("scope change not published", "scope", scope.String(), "error", err)
	}
}

func loadKey(scope coverage.Scope) string {
	return scope.Organisation + "\x00" + scope.Commit + "\x00" + scope.File
}
