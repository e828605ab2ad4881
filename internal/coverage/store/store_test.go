package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/yungbote/coverage-backend/internal/coverage/aggregate"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

var scopeA = coverage.Scope{Organisation: "acme", Commit: "c1", File: "a.ts"}

func applyOne(file coverage.FileID, id string, executions int64) MergeFunc {
	return func(cur *aggregate.Report) (*aggregate.Report, bool, error) {
		next, applied := aggregate.Apply(cur, aggregate.Submission{
			Stamp:          aggregate.Stamp{ReceivedAt: time.Unix(0, 0), SubmissionID: id},
			IdempotencyKey: id,
			Regions: []coverage.Region{{
				File:       file,
				From:       coverage.Position{Line: 1},
				To:         coverage.Position{Line: 3},
				Statements: 5,
				Executions: executions,
			}},
		})
		return next, applied, nil
	}
}

func executions(t *testing.T, r *aggregate.Report, paths *coverage.PathTable) int64 {
	t.Helper()
	regions := r.Report(paths).Regions
	if len(regions) != 1 {
		t.Fatalf("expected one region, got %d", len(regions))
	}
	return regions[0].Executions
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	paths := coverage.NewPathTable()
	file, _ := paths.Intern(scopeA.File)
	s := New(testLogger(t), Options{})
	ctx := context.Background()

	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Update(ctx, scopeA, applyOne(file, fmt.Sprintf("s%d", i), 1)); err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	r, ok, err := s.Get(ctx, scopeA)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got := executions(t, r, paths); got != writers {
		t.Fatalf("executions = %d, want %d", got, writers)
	}
}

func TestReadersSeeImmutableSnapshots(t *testing.T) {
	paths := coverage.NewPathTable()
	file, _ := paths.Intern(scopeA.File)
	s := New(testLogger(t), Options{})
	ctx := context.Background()

	if _, err := s.Update(ctx, scopeA, applyOne(file, "first", 2)); err != nil {
		t.Fatal(err)
	}
	before, _, _ := s.Get(ctx, scopeA)
	if _, err := s.Update(ctx, scopeA, applyOne(file, "second", 3)); err != nil {
		t.Fatal(err)
	}
	after, _, _ := s.Get(ctx, scopeA)

	if got := executions(t, before, paths); got != 2 {
		t.Fatalf("earlier snapshot changed to %d executions", got)
	}
	if got := executions(t, after, paths); got != 5 {
		t.Fatalf("executions = %d, want 5", got)
	}
}

func TestScopesPutAndDelete(t *testing.T) {
	paths := coverage.NewPathTable()
	s := New(testLogger(t), Options{})
	ctx := context.Background()

	for _, f := range []string{"z.ts", "a.ts", "m.ts"} {
		id, _ := paths.Intern(f)
		scope := coverage.Scope{Organisation: "acme", Commit: "c1", File: f}
		if _, err := s.Update(ctx, scope, applyOne(id, f, 1)); err != nil {
			t.Fatal(err)
		}
	}
	other := coverage.Scope{Organisation: "acme", Commit: "c2", File: "a.ts"}
	if err := s.Put(ctx, other, aggregate.FromEntries(nil, nil)); err != nil {
		t.Fatal(err)
	}

	scopes, err := s.Scopes(ctx, "acme", "c1")
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, sc := range scopes {
		files = append(files, sc.File)
	}
	if fmt.Sprint(files) != "[a.ts m.ts z.ts]" {
		t.Fatalf("scopes = %v", files)
	}
	if empty, _ := s.Scopes(ctx, "acme", "c2"); len(empty) != 0 {
		t.Fatalf("empty scope listed: %v", empty)
	}

	if err := s.Delete(ctx, coverage.Scope{Organisation: "acme", Commit: "c1", File: "m.ts"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, coverage.Scope{Organisation: "acme", Commit: "c1", File: "m.ts"}); ok {
		t.Fatalf("deleted scope still present")
	}
	if _, ok, _ := s.Get(ctx, coverage.Scope{Organisation: "nobody", Commit: "c1", File: "m.ts"}); ok {
		t.Fatalf("unknown scope present")
	}
}

type memBackend struct {
	mu      sync.Mutex
	reports map[coverage.Scope]*aggregate.Report
	loads   atomic.Int32
	fail    error
}

func newMemBackend() *memBackend {
	return &memBackend{reports: map[coverage.Scope]*aggregate.Report{}}
}

func (b *memBackend) Load(_ context.Context, scope coverage.Scope) (*aggregate.Report, error) {
	b.loads.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	return b.reports[scope], nil
}

func (b *memBackend) Update(_ context.Context, scope coverage.Scope, fn MergeFunc) (*aggregate.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	cur := b.reports[scope]
	next, changed, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if !changed {
		return cur, nil
	}
	b.reports[scope] = next
	return next, nil
}

func (b *memBackend) Delete(_ context.Context, scope coverage.Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.reports, scope)
	return nil
}

func (b *memBackend) Scopes(context.Context, string, string) ([]coverage.Scope, error) {
	return nil, nil
}

// write simulates another instance updating the shared backend.
func (b *memBackend) write(scope coverage.Scope, fn MergeFunc) {
	_, _ = b.Update(context.Background(), scope, fn)
}

type recordingNotifier struct {
	mu     sync.Mutex
	scopes []coverage.Scope
}

func (n *recordingNotifier) Publish(_ context.Context, scope coverage.Scope) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scopes = append(n.scopes, scope)
	return nil
}

func TestBackendColdLoadAndInvalidate(t *testing.T) {
	paths := coverage.NewPathTable()
	file, _ := paths.Intern(scopeA.File)
	backend := newMemBackend()
	backend.write(scopeA, applyOne(file, "remote-1", 4))

	s := New(testLogger(t), Options{Backend: backend})
	ctx := context.Background()

	r, ok, err := s.Get(ctx, scopeA)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got := executions(t, r, paths); got != 4 {
		t.Fatalf("executions = %d, want 4", got)
	}
	if _, _, err := s.Get(ctx, scopeA); err != nil {
		t.Fatal(err)
	}
	if got := backend.loads.Load(); got != 1 {
		t.Fatalf("backend loaded %d times, want 1", got)
	}

	// Another instance merges; the cached snapshot is stale until invalidated.
	backend.write(scopeA, applyOne(file, "remote-2", 6))
	r, _, _ = s.Get(ctx, scopeA)
	if got := executions(t, r, paths); got != 4 {
		t.Fatalf("cached executions = %d, want 4", got)
	}
	s.Invalidate(scopeA)
	r, _, _ = s.Get(ctx, scopeA)
	if got := executions(t, r, paths); got != 10 {
		t.Fatalf("executions after invalidate = %d, want 10", got)
	}
}

func TestBackendUpdateMergesLatestState(t *testing.T) {
	paths := coverage.NewPathTable()
	file, _ := paths.Intern(scopeA.File)
	backend := newMemBackend()
	notifier := &recordingNotifier{}
	s := New(testLogger(t), Options{Backend: backend, Notifier: notifier})
	ctx := context.Background()

	if _, err := s.Update(ctx, scopeA, applyOne(file, "local-1", 1)); err != nil {
		t.Fatal(err)
	}
	backend.write(scopeA, applyOne(file, "remote-1", 2))
	r, err := s.Update(ctx, scopeA, applyOne(file, "local-2", 3))
	if err != nil {
		t.Fatal(err)
	}
	if got := executions(t, r, paths); got != 6 {
		t.Fatalf("executions = %d, want 6", got)
	}

	// Replaying a key changes nothing and publishes nothing.
	if _, err := s.Update(ctx, scopeA, applyOne(file, "local-2", 3)); err != nil {
		t.Fatal(err)
	}
	if len(notifier.scopes) != 2 {
		t.Fatalf("published %d changes, want 2", len(notifier.scopes))
	}
}

func TestBackendErrorsSurface(t *testing.T) {
	backend := newMemBackend()
	backend.fail = errors.New("connection refused")
	s := New(testLogger(t), Options{Backend: backend})

	if _, _, err := s.Get(context.Background(), scopeA); !errors.Is(err, backend.fail) {
		t.Fatalf("Get err = %v", err)
	}
	if _, err := s.Update(context.Background(), scopeA, applyOne(1, "x", 1)); !errors.Is(err, backend.fail) {
		t.Fatalf("Update err = %v", err)
	}
}

func TestInvalidateWithoutBackendKeepsData(t *testing.T) {
	paths := coverage.NewPathTable()
	file, _ := paths.Intern(scopeA.File)
	s := New(testLogger(t), Options{})
	ctx := context.Background()
	if _, err := s.Update(ctx, scopeA, applyOne(file, "s", 1)); err != nil {
		t.Fatal(err)
	}
	s.Invalidate(scopeA)
	if _, ok, _ := s.Get(ctx, scopeA); !ok {
		t.Fatalf("memory store lost its only copy")
	}
}
