// Package aggregate merges validated submissions into per-scope reports.
//
// Merging is commutative and associative: executions add up, the statements
// value with the latest stamp wins, and a disagreement on statements is kept
// as a min/max pair so it can be flagged regardless of merge order.
package aggregate

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/yungbote/coverage-backend/internal/coverage/normalize"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

// Stamp orders submissions. Later stamps win statement disagreements.
type Stamp struct {
	ReceivedAt   time.Time
	SubmissionID string
}

func (s Stamp) Compare(o Stamp) int {
	if c := s.ReceivedAt.Compare(o.ReceivedAt); c != 0 {
		return c
	}
	return strings.Compare(s.SubmissionID, o.SubmissionID)
}

// Submission is one validated, normalized test run.
type Submission struct {
	Stamp Stamp
	// IdempotencyKey, when set, makes re-applying the submission to a report a no-op.
	IdempotencyKey string
	Regions        []coverage.Region
}

// Entry is the accumulated state of one region identity.
type Entry struct {
	Identity       coverage.Identity
	Executions     int64
	Statements     int64
	StatementsMin  int64
	StatementsMax  int64
	StatementStamp Stamp
}

// Conflicted reports whether submissions disagreed on the statement count.
func (e Entry) Conflicted() bool {
	return e.StatementsMin != e.StatementsMax
}

func (e Entry) Region() coverage.Region {
	return coverage.Region{
		File:       e.Identity.File,
		From:       e.Identity.From,
		To:         e.Identity.To,
		Statements: e.Statements,
		Executions: e.Executions,
	}
}

func entryOf(r coverage.Region, stamp Stamp) Entry {
	return Entry{
		Identity:       r.Identity(),
		Executions:     r.Executions,
		Statements:     r.Statements,
		StatementsMin:  r.Statements,
		StatementsMax:  r.Statements,
		StatementStamp: stamp,
	}
}

func combineEntries(a, b Entry) Entry {
	out := a
	out.Executions = addSaturating(a.Executions, b.Executions)
	out.StatementsMin = min(a.StatementsMin, b.StatementsMin)
	out.StatementsMax = max(a.StatementsMax, b.StatementsMax)
	switch c := b.StatementStamp.Compare(a.StatementStamp); {
	case c > 0, c == 0 && b.Statements > a.Statements:
		out.Statements = b.Statements
		out.StatementStamp = b.StatementStamp
	}
	return out
}

func addSaturating(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// Report is an immutable aggregate. The nil *Report is the empty report.
type Report struct {
	entries map[coverage.Identity]Entry
	applied map[string]struct{}
}

// FromEntries rebuilds a report, e.g. after decoding a stored snapshot.
// Entries sharing an identity are combined.
func FromEntries(entries []Entry, applied []string) *Report {
	r := &Report{
		entries: make(map[coverage.Identity]Entry, len(entries)),
		applied: make(map[string]struct{}, len(applied)),
	}
	for _, e := range entries {
		if cur, ok := r.entries[e.Identity]; ok {
			e = combineEntries(cur, e)
		}
		r.entries[e.Identity] = e
	}
	for _, key := range applied {
		r.applied[key] = struct{}{}
	}
	return r
}

// FromSubmission builds the report of a single submission.
func FromSubmission(sub Submission) *Report {
	entries := make([]Entry, 0, len(sub.Regions))
	for _, region := range sub.Regions {
		entries = append(entries, entryOf(region, sub.Stamp))
	}
	var applied []string
	if sub.IdempotencyKey != "" {
		applied = []string{sub.IdempotencyKey}
	}
	return FromEntries(entries, applied)
}

// Apply merges a submission into r. It returns r itself, and false, when the
// submission's idempotency key was already applied.
func Apply(r *Report, sub Submission) (*Report, bool) {
	if sub.IdempotencyKey != "" && r.Applied(sub.IdempotencyKey) {
		return r, false
	}
	return Merge(r, FromSubmission(sub)), true
}

// Merge combines two reports without modifying either.
func Merge(a, b *Report) *Report {
	if a.Len() == 0 && len(a.appliedKeys()) == 0 {
		return b.clone()
	}
	out := a.clone()
	if b == nil {
		return out
	}
	for id, e := range b.entries {
		if cur, ok := out.entries[id]; ok {
			e = combineEntries(cur, e)
		}
		out.entries[id] = e
	}
	for key := range b.applied {
		out.applied[key] = struct{}{}
	}
	return out
}

func (r *Report) clone() *Report {
	out := &Report{
		entries: make(map[coverage.Identity]Entry, r.Len()),
		applied: make(map[string]struct{}, len(r.appliedKeys())),
	}
	if r == nil {
		return out
	}
	for id, e := range r.entries {
		out.entries[id] = e
	}
	for key := range r.applied {
		out.applied[key] = struct{}{}
	}
	return out
}

func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entry looks up the accumulated state of one identity.
func (r *Report) Entry(id coverage.Identity) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[id]
	return e, ok
}

func (r *Report) Applied(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.applied[key]
	return ok
}

func (r *Report) appliedKeys() map[string]struct{} {
	if r == nil {
		return nil
	}
	return r.applied
}

// AppliedKeys lists the idempotency keys folded into r, sorted.
func (r *Report) AppliedKeys() []string {
	keys := make([]string, 0, len(r.appliedKeys()))
	for key := range r.appliedKeys() {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Entries returns all entries in canonical order.
func (r *Report) Entries(paths *coverage.PathTable) []Entry {
	out := make([]Entry, 0, r.Len())
	if r == nil {
		return out
	}
	for _, e := range r.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return normalize.Compare(paths, normalize.Normalize(a.Region()), normalize.Normalize(b.Region()))
	})
	return out
}

// Report returns the aggregate as a plain region collection in canonical order.
func (r *Report) Report(paths *coverage.PathTable) coverage.Report {
	entries := r.Entries(paths)
	regions := make([]coverage.Region, 0, len(entries))
	for _, e := range entries {
		regions = append(regions, e.Region())
	}
	return coverage.Report{Regions: regions}
}

// Conflict is a region identity whose submissions disagreed on statements.
type Conflict struct {
	Region coverage.Region
	Min    int64
	Max    int64
}

func (r *Report) Conflicts(paths *coverage.PathTable) []Conflict {
	var out []Conflict
	for _, e := range r.Entries(paths) {
		if e.Conflicted() {
			out = append(out, Conflict{Region: e.Region(), Min: e.StatementsMin, Max: e.StatementsMax})
		}
	}
	return out
}
