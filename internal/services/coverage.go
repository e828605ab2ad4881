package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/coverage-backend/internal/coverage/aggregate"
	"github.com/yungbote/coverage-backend/internal/coverage/intake"
	"github.com/yungbote/coverage-backend/internal/coverage/normalize"
	"github.com/yungbote/coverage-backend/internal/coverage/store"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/observability"
	"github.com/yungbote/coverage-backend/internal/platform/apierr"
	"github.com/yungbote/coverage-backend/internal/platform/ctxutil"
	"github.com/yungbote/coverage-backend/internal/platform/gcp"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

type CoverageService interface {
	// Submit validates a raw submission and, unless it is a dry run, merges it
	// into the scopes of its files. Content problems come back as an Invalid
	// result; the error is reserved for operational failures. A failed merge
	// still returns the result carrying the SubmissionID to retry with.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	Report(ctx context.Context, q ReportQuery) (*ReportView, error)
	Ping(ctx context.Context) time.Time
	Paths() *coverage.PathTable
}

type SubmitRequest struct {
	Organisation   string
	Commit         string
	IdempotencyKey string
	// SubmissionID is set when retrying a submission that failed to merge.
	// Without an IdempotencyKey it keys the merge, so scopes the first attempt
	// already reached are not counted twice.
	SubmissionID string
	ContentType  string
	Body         []byte
}

// DryRun reports whether the request only asks for validation.
func (r SubmitRequest) DryRun() bool {
	return r.Organisation == "" && r.Commit == ""
}

type SubmitResult struct {
	SubmissionID string
	Result       coverage.Result
	DryRun       bool
	// Scopes is the number of scopes the submission touched; Duplicates of
	// them had already applied the idempotency key.
	Scopes     int
	Duplicates int
	Conflicts  int
}

type ReportQuery struct {
	Organisation string
	Commit       string
	// File narrows the query to one scope.
	File string
}

type ReportView struct {
	Organisation string
	Commit       string
	Report       coverage.Report
	Conflicts    []aggregate.Conflict
}

type CoverageServiceConfig struct {
	// MergeConcurrency bounds the scopes merged in parallel per submission.
	MergeConcurrency int
	Now              func() time.Time
}

type coverageService struct {
	log       *logger.Logger
	paths     *coverage.PathTable
	validator *intake.Validator
	store     *store.Store
	archive   gcp.Archive
	metrics   *observability.Metrics
	health    *observability.Health
	now       func() time.Time
	limit     int
}

func NewCoverageService(
	log *logger.Logger,
	paths *coverage.PathTable,
	st *store.Store,
	archive gcp.Archive,
	metrics *observability.Metrics,
	health *observability.Health,
	cfg CoverageServiceConfig,
) CoverageService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limit := cfg.MergeConcurrency
	if limit <= 0 {
		limit = 8
	}
	return &coverageService{
		log:       log.With("service", "CoverageService"),
		paths:     paths,
		validator: intake.New(paths),
		store:     st,
		archive:   archive,
		metrics:   metrics,
		health:    health,
		now:       now,
		limit:     limit,
	}
}

func (s *coverageService) Paths() *coverage.PathTable { return s.paths }

func (s *coverageService) Ping(context.Context) time.Time {
	return s.now()
}

func (s *coverageService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.Organisation = strings.TrimSpace(req.Organisation)
	req.Commit = strings.TrimSpace(req.Commit)
	if !req.DryRun() && (req.Organisation == "" || req.Commit == "") {
		return nil, apierr.InvalidScope("organisation and commit must both be set or both be empty")
	}

	id, err := submissionID(req.SubmissionID)
	if err != nil {
		return nil, err
	}
	key := req.IdempotencyKey
	if key == "" {
		key = "submission:" + id
	}

	ctx, span := observability.Tracer().Start(ctx, "coverage.Submit")
	defer span.End()

	out := &SubmitResult{
		SubmissionID: id,
		DryRun:       req.DryRun(),
	}
	log := s.log.With(ctxutil.RequestIDsFrom(ctx).LogFields()...).With(
		"submission_id", out.SubmissionID,
		"organisation", req.Organisation,
		"commit", req.Commit,
		"idempotency_key", key,
	)
	stamp := aggregate.Stamp{ReceivedAt: s.now().UTC(), SubmissionID: out.SubmissionID}

	res := s.validator.Validate(req.Body)
	valid, ok := res.(coverage.Valid)
	if !ok {
		reason := res.(coverage.Invalid).Reason
		out.Result = res
		s.metrics.IncSubmission(reason.String())
		span.SetAttributes(attribute.String("coverage.invalid", reason.String()))
		log.Info("submission rejected", "reason", reason.String(), "size", humanize.Bytes(uint64(len(req.Body))))
		return out, nil
	}
	normalize.Sort(s.paths, valid.Report.Regions)
	out.Result = valid
	span.SetAttributes(attribute.Int("coverage.regions", len(valid.Report.Regions)))

	if out.DryRun {
		s.metrics.IncSubmission("dry_run")
		return out, nil
	}

	s.archiveRaw(ctx, log, req, out.SubmissionID)

	byFile := map[coverage.FileID][]coverage.Region{}
	var order []coverage.FileID
	for _, r := range valid.Report.Regions {
		if _, seen := byFile[r.File]; !seen {
			order = append(order, r.File)
		}
		byFile[r.File] = append(byFile[r.File], r)
	}

	var duplicates, conflicts atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for _, fileID := range order {
		scope := coverage.Scope{Organisation: req.Organisation, File: s.paths.MustLookup(fileID), Commit: req.Commit}
		sub := aggregate.Submission{Stamp: stamp, IdempotencyKey: key, Regions: byFile[fileID]}
		g.Go(func() error {
			applied, newConflicts, err := s.merge(gctx, scope, sub)
			if err != nil {
				return err
			}
			if !applied {
				duplicates.Add(1)
			}
			conflicts.Add(int64(newConflicts))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		s.metrics.IncSubmission("error")
		log.Error("submission merge failed", "error", err)
		return out, apierr.StoreFailure(err)
	}

	out.Scopes = len(order)
	out.Duplicates = int(duplicates.Load())
	out.Conflicts = int(conflicts.Load())
	result := "ok"
	if out.Scopes > 0 && out.Duplicates == out.Scopes {
		result = "duplicate"
	}
	s.metrics.IncSubmission(result)
	s.metrics.AddRegions(len(valid.Report.Regions))
	s.metrics.AddConflicts(out.Conflicts)
	log.Info("submission merged",
		"regions", humanize.Comma(int64(len(valid.Report.Regions))),
		"scopes", out.Scopes,
		"duplicates", out.Duplicates,
		"size", humanize.Bytes(uint64(len(req.Body))),
	)
	return out, nil
}

// submissionID checks a client-supplied retry ID, or mints a fresh one.
func submissionID(retry string) (string, error) {
	retry = strings.TrimSpace(retry)
	if retry == "" {
		return uuid.NewString(), nil
	}
	parsed, err := uuid.Parse(retry)
	if err != nil {
		return "", apierr.InvalidSubmissionID(err)
	}
	return parsed.String(), nil
}

// merge applies one file's share of a submission to its scope. It reports
// whether the submission was applied and how many identities it left newly
// conflicted.
func (s *coverageService) merge(ctx context.Context, scope coverage.Scope, sub aggregate.Submission) (bool, int, error) {
	start := time.Now()
	var (
		applied      bool
		newConflicts int
	)
	_, err := s.store.Update(ctx, scope, func(cur *aggregate.Report) (*aggregate.Report, bool, error) {
		next, ok := aggregate.Apply(cur, sub)
		applied, newConflicts = ok, 0
		if !ok {
			return cur, false, nil
		}
		for _, r := range sub.Regions {
			after, _ := next.Entry(r.Identity())
			if !after.Conflicted() {
				continue
			}
			if before, existed := cur.Entry(r.Identity()); existed && before.Conflicted() {
				continue
			}
			newConflicts++
		}
		return next, true, nil
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveMerge(status, time.Since(start))
	if err != nil {
		return false, 0, fmt.Errorf("merge %s: %w", scope, err)
	}
	if newConflicts > 0 {
		s.log.Warn("statement counts disagree", "scope", scope.String(), "regions", newConflicts)
	}
	return applied, newConflicts, nil
}

func (s *coverageService) archiveRaw(ctx context.Context, log *logger.Logger, req SubmitRequest, id string) {
	if s.archive == nil {
		return
	}
	key := gcp.ArchiveKey{Organisation: req.Organisation, Commit: req.Commit, SubmissionID: id}
	if err := s.archive.Put(ctx, key, req.ContentType, req.Body); err != nil {
		s.health.MarkUnhealthy("archive", err.Error())
		log.Warn("raw submission not archived", "error", err)
		return
	}
	s.health.MarkHealthy("archive", "last write ok")
}

func (s *coverageService) Report(ctx context.Context, q ReportQuery) (*ReportView, error) {
	q.Organisation = strings.TrimSpace(q.Organisation)
	q.Commit = strings.TrimSpace(q.Commit)
	if q.Organisation == "" || q.Commit == "" {
		return nil, apierr.InvalidScope("organisation and commit are required")
	}

	var scopes []coverage.Scope
	if q.File != "" {
		scopes = []coverage.Scope{{Organisation: q.Organisation, File: q.File, Commit: q.Commit}}
	} else {
		listed, err := s.store.Scopes(ctx, q.Organisation, q.Commit)
		if err != nil {
			return nil, apierr.StoreFailure(err)
		}
		scopes = listed
	}

	view := &ReportView{
		Organisation: q.Organisation,
		Commit:       q.Commit,
		Report:       coverage.Report{Regions: []coverage.Region{}},
		Conflicts:    []aggregate.Conflict{},
	}
	for _, scope := range scopes {
		r, ok, err := s.store.Get(ctx, scope)
		if err != nil {
			return nil, apierr.StoreFailure(err)
		}
		if !ok {
			continue
		}
		view.Report.Regions = append(view.Report.Regions, r.Report(s.paths).Regions...)
		view.Conflicts = append(view.Conflicts, r.Conflicts(s.paths)...)
	}
	return view, nil
}
