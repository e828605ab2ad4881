// Package normalize resolves the zero-column end convention and defines the
// canonical ordering of regions.
package normalize

import (
	"math"
	"slices"
	"strings"

	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

// EndOfLine is the column of a resolved zero-column end. It sorts after every
// real column on the same line.
const EndOfLine = math.MaxInt

// End resolves a wire end position: column 0 means the end of the previous line.
func End(to coverage.Position) coverage.Position {
	if to.Column == 0 {
		return coverage.Position{Line: to.Line - 1, Column: EndOfLine}
	}
	return to
}

// Wire is the inverse of End for positions End produced.
func Wire(end coverage.Position) coverage.Position {
	if end.Column == EndOfLine {
		return coverage.Position{Line: end.Line + 1, Column: 0}
	}
	return end
}

// Region is a region together with its resolved end. Region.To keeps the wire
// form so identities and encodings are unaffected.
type Region struct {
	coverage.Region
	End coverage.Position
}

func Normalize(r coverage.Region) Region {
	return Region{Region: r, End: End(r.To)}
}

// Well reports whether the resolved span does not end before it starts.
func (r Region) Well() bool {
	return r.End.Compare(r.From) >= 0
}

// Overlaps reports whether two regions of the same file share any position.
func (r Region) Overlaps(o Region) bool {
	if r.File != o.File {
		return false
	}
	return r.From.Compare(o.End) <= 0 && o.From.Compare(r.End) <= 0
}

// Compare is the canonical order: file path, from, resolved end, then wire
// end. It is total over region identities.
func Compare(paths *coverage.PathTable, a, b Region) int {
	if a.File != b.File {
		if c := strings.Compare(paths.MustLookup(a.File), paths.MustLookup(b.File)); c != 0 {
			return c
		}
	}
	if c := a.From.Compare(b.From); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	return a.To.Compare(b.To)
}

// Sort orders regions canonically in place.
func Sort(paths *coverage.PathTable, regions []coverage.Region) {
	slices.SortFunc(regions, func(a, b coverage.Region) int {
		return Compare(paths, Normalize(a), Normalize(b))
	})
}
