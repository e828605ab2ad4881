package coverage

import (
	"encoding/json"
	"fmt"
)

// Position is a (line, column) pair. Lines are 1-based, columns 0-based.
type Position struct {
	Line   int
	Column int
}

// Compare orders positions by line, then column.
func (p Position) Compare(o Position) int {
	switch {
	case p.Line < o.Line:
		return -1
	case p.Line > o.Line:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	default:
		return 0
	}
}

func (p Position) String() string {
	return fmt.Sprintf("%d.%d", p.Line, p.Column)
}

// MarshalJSON encodes the position as a [line, column] tuple.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Line, p.Column})
}

// UnmarshalJSON decodes a [line, column] tuple. Any other length is an error.
func (p *Position) UnmarshalJSON(b []byte) error {
	var tuple []int
	if err := json.Unmarshal(b, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("position must be a [line, column] pair, got %d values", len(tuple))
	}
	p.Line, p.Column = tuple[0], tuple[1]
	return nil
}

// Region is one covered code span.
//
// To uses the wire encoding: a zero column means the region ends at the end
// of line To.Line-1, so To.Line may exceed the file's line count by one.
type Region struct {
	File       FileID
	From       Position
	To         Position
	Statements int64
	Executions int64
}

// Identity is the merge key of a region.
type Identity struct {
	File FileID
	From Position
	To   Position
}

func (r Region) Identity() Identity {
	return Identity{File: r.File, From: r.From, To: r.To}
}

// Report is an unordered collection of regions. Overlapping regions are legal.
type Report struct {
	Regions []Region
}

// Scope is the unit of aggregation. Two scopes never merge into each other.
type Scope struct {
	Organisation string
	File         string
	Commit       string
}

func (s Scope) Validate() error {
	if s.Organisation == "" {
		return fmt.Errorf("scope: organisation required")
	}
	if s.Commit == "" {
		return fmt.Errorf("scope: commit required")
	}
	if s.File == "" {
		return fmt.Errorf("scope: file required")
	}
	return nil
}

func (s Scope) String() string {
	return s.Organisation + "@" + s.Commit + ":" + s.File
}
