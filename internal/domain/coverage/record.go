package coverage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ReportRecord is the persisted aggregate of one scope. Payload holds the
// encoded aggregate; Summary is a JSON digest for ad-hoc SQL inspection.
type ReportRecord struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Organisation  string         `gorm:"not null;uniqueIndex:idx_coverage_report_scope,priority:1" json:"organisation"`
	CommitRef     string         `gorm:"column:commit_ref;not null;uniqueIndex:idx_coverage_report_scope,priority:2" json:"commit"`
	File          string         `gorm:"not null;uniqueIndex:idx_coverage_report_scope,priority:3" json:"file"`
	Payload       []byte         `gorm:"not null" json:"-"`
	Summary       datatypes.JSON `json:"summary"`
	RegionCount   int            `gorm:"not null;default:0" json:"region_count"`
	ConflictCount int            `gorm:"not null;default:0" json:"conflict_count"`
	Revision      int64          `gorm:"not null;default:0" json:"revision"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (ReportRecord) TableName() string { return "coverage_report" }

func (r *ReportRecord) Scope() Scope {
	return Scope{Organisation: r.Organisation, File: r.File, Commit: r.CommitRef}
}

// ReportSummary is the digest stored in ReportRecord.Summary.
type ReportSummary struct {
	Regions     int   `json:"regions"`
	Executions  int64 `json:"executions"`
	Statements  int64 `json:"statements"`
	Conflicts   int   `json:"conflicts"`
	AppliedKeys int   `json:"applied_keys"`
}
