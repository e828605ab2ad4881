package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/yungbote/coverage-backend/internal/coverage/aggregate"
	"github.com/yungbote/coverage-backend/internal/coverage/snapshot"
	"github.com/yungbote/coverage-backend/internal/coverage/store"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/pkg/dbctx"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

// ReportBackend stores aggregates in the coverage_report table. Concurrent
// writers, in this process or another, serialize on the scope's row lock.
type ReportBackend struct {
	db    *gorm.DB
	repo  ReportRepo
	paths *coverage.PathTable
	log   *logger.Logger
}

var _ store.Backend = (*ReportBackend)(nil)

func NewReportBackend(db *gorm.DB, repo ReportRepo, paths *coverage.PathTable, baseLog *logger.Logger) *ReportBackend {
	return &ReportBackend{
		db:    db,
		repo:  repo,
		paths: paths,
		log:   baseLog.With("component", "ReportBackend"),
	}
}

func (b *ReportBackend) Load(ctx context.Context, scope coverage.Scope) (*aggregate.Report, error) {
	rec, err := b.repo.GetByScope(dbctx.New(ctx), scope)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return snapshot.Decode(b.paths, rec.Payload)
}

func (b *ReportBackend) Update(ctx context.Context, scope coverage.Scope, fn store.MergeFunc) (*aggregate.Report, error) {
	var out *aggregate.Report
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx).WithTx(tx)
		rec, err := b.repo.LockOrCreate(dbc, scope)
		if err != nil {
			return fmt.Errorf("lock %s: %w", scope, err)
		}
		cur, err := snapshot.Decode(b.paths, rec.Payload)
		if err != nil {
			return fmt.Errorf("decode %s: %w", scope, err)
		}
		next, changed, err := fn(cur)
		if err != nil {
			return err
		}
		if !changed {
			out = cur
			return nil
		}

		payload, err := snapshot.Encode(b.paths, next)
		if err != nil {
			return err
		}
		summary, err := json.Marshal(Summarize(b.paths, next))
		if err != nil {
			return err
		}
		rec.Payload = payload
		rec.Summary = summary
		rec.RegionCount = next.Len()
		rec.ConflictCount = len(next.Conflicts(b.paths))
		rec.Revision++
		if err := b.repo.Save(dbc, rec); err != nil {
			return fmt.Errorf("save %s: %w", scope, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Debug("report saved", "scope", scope.String(), "regions", out.Len())
	return out, nil
}

func (b *ReportBackend) Delete(ctx context.Context, scope coverage.Scope) error {
	return b.repo.DeleteByScope(dbctx.New(ctx), scope)
}

func (b *ReportBackend) Scopes(ctx context.Context, organisation, commit string) ([]coverage.Scope, error) {
	return b.repo.ListScopes(dbctx.New(ctx), organisation, commit)
}

// Summarize digests an aggregate for the Summary column.
func Summarize(paths *coverage.PathTable, r *aggregate.Report) coverage.ReportSummary {
	s := coverage.ReportSummary{AppliedKeys: len(r.AppliedKeys())}
	for _, e := range r.Entries(paths) {
		s.Regions++
		s.Executions = addCapped(s.Executions, e.Executions)
		s.Statements = addCapped(s.Statements, e.Statements)
		if e.Conflicted() {
			s.Conflicts++
		}
	}
	return s
}

func addCapped(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
