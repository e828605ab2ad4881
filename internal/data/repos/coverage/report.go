package coverage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/pkg/dbctx"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

type ReportRepo interface {
	GetByScope(dbc dbctx.Context, scope coverage.Scope) (*coverage.ReportRecord, error)
	LockOrCreate(dbc dbctx.Context, scope coverage.Scope) (*coverage.ReportRecord, error)
	Save(dbc dbctx.Context, rec *coverage.ReportRecord) error
	DeleteByScope(dbc dbctx.Context, scope coverage.Scope) error
	ListScopes(dbc dbctx.Context, organisation, commit string) ([]coverage.Scope, error)
}

type reportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	repoLog := baseLog.With("repo", "ReportRepo")
	return &reportRepo{db: db, log: repoLog}
}

func (r *reportRepo) tx(dbc dbctx.Context) *gorm.DB {
	return dbc.DB(r.db)
}

func scopeWhere(scope coverage.Scope) (string, []interface{}) {
	return "organisation = ? AND commit_ref = ? AND file = ?",
		[]interface{}{scope.Organisation, scope.Commit, scope.File}
}

// GetByScope returns nil, nil when the scope has no row.
func (r *reportRepo) GetByScope(dbc dbctx.Context, scope coverage.Scope) (*coverage.ReportRecord, error) {
	var rec coverage.ReportRecord
	query, args := scopeWhere(scope)
	err := r.tx(dbc).Where(query, args...).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LockOrCreate makes sure the scope has a row and locks it for the rest of
// dbc.Tx. It must run inside a transaction.
func (r *reportRepo) LockOrCreate(dbc dbctx.Context, scope coverage.Scope) (*coverage.ReportRecord, error) {
	if !dbc.InTx() {
		return nil, errors.New("LockOrCreate requires a transaction")
	}
	now := time.Now().UTC()
	placeholder := &coverage.ReportRecord{
		ID:           uuid.New(),
		Organisation: scope.Organisation,
		CommitRef:    scope.Commit,
		File:         scope.File,
		Payload:      []byte{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.tx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organisation"}, {Name: "commit_ref"}, {Name: "file"}},
		DoNothing: true,
	}).Create(placeholder).Error; err != nil {
		return nil, err
	}

	var rec coverage.ReportRecord
	query, args := scopeWhere(scope)
	if err := r.tx(dbc).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, args...).
		Take(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *reportRepo) Save(dbc dbctx.Context, rec *coverage.ReportRecord) error {
	if rec == nil {
		return nil
	}
	rec.UpdatedAt = time.Now().UTC()
	return r.tx(dbc).Save(rec).Error
}

func (r *reportRepo) DeleteByScope(dbc dbctx.Context, scope coverage.Scope) error {
	query, args := scopeWhere(scope)
	return r.tx(dbc).Where(query, args...).Delete(&coverage.ReportRecord{}).Error
}

// ListScopes returns the scopes of organisation and commit that hold regions,
// ordered by file.
func (r *reportRepo) ListScopes(dbc dbctx.Context, organisation, commit string) ([]coverage.Scope, error) {
	var files []string
	if err := r.tx(dbc).
		Model(&coverage.ReportRecord{}).
		Where("organisation = ? AND commit_ref = ? AND region_count > 0", organisation, commit).
		Order("file ASC").
		Pluck("file", &files).Error; err != nil {
		return nil, err
	}
	out := make([]coverage.Scope, 0, len(files))
	for _, f := range files {
		out = append(out, coverage.Scope{Organisation: organisation, File: f, Commit: commit})
	}
	return out, nil
}
