// Package intake turns a raw submission into a validated coverage report.
package intake

import (
	"bytes"
	"errors"
	"fmt"

	"fortio.org/safecast"

	"github.com/yungbote/coverage-backend/internal/coverage/formats"
	"github.com/yungbote/coverage-backend/internal/coverage/formats/gocover"
	"github.com/yungbote/coverage-backend/internal/coverage/formats/jacoco"
	"github.com/yungbote/coverage-backend/internal/coverage/formats/jsonreport"
	"github.com/yungbote/coverage-backend/internal/coverage/formats/lcov"
	"github.com/yungbote/coverage-backend/internal/coverage/normalize"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

// Format names a submission encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatGo     Format = "go"
	FormatJaCoCo Format = "jacoco"
	FormatLCOV   Format = "lcov"
)

type parser func([]byte) ([]formats.Candidate, error)

var parsers = map[Format]parser{
	FormatJSON:   jsonreport.Parse,
	FormatGo:     gocover.Parse,
	FormatJaCoCo: jacoco.Parse,
	FormatLCOV:   lcov.Parse,
}

var byteOrderMark = []byte("\ufeff")

// Detect picks the format of raw from its first bytes. An empty body has no
// format.
func Detect(raw []byte) (Format, bool) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n\ufeff")
	switch {
	case len(trimmed) == 0:
		return "", false
	case trimmed[0] == '{':
		return FormatJSON, true
	case gocover.Sniff(trimmed):
		return FormatGo, true
	case jacoco.Sniff(trimmed):
		return FormatJaCoCo, true
	default:
		return FormatLCOV, lcov.Sniff(trimmed)
	}
}

// Validator checks submissions and interns the paths of those that pass.
type Validator struct {
	paths *coverage.PathTable
}

func New(paths *coverage.PathTable) *Validator {
	return &Validator{paths: paths}
}

// Validate detects the format of raw and validates it.
func (v *Validator) Validate(raw []byte) coverage.Result {
	format, ok := Detect(raw)
	if !ok {
		return coverage.Invalid{Reason: coverage.ParseError}
	}
	return v.ValidateFormat(format, raw)
}

// ValidateFormat validates raw as the given format. The whole submission is
// rejected by its first invalid region; the path table is only touched once
// every region has passed.
func (v *Validator) ValidateFormat(format Format, raw []byte) coverage.Result {
	parse, ok := parsers[format]
	if !ok {
		return coverage.Invalid{Reason: coverage.ParseError}
	}
	candidates, err := parse(bytes.TrimPrefix(raw, byteOrderMark))
	if err != nil {
		return coverage.Invalid{Reason: coverage.ParseError}
	}

	checked := make([]checkedRegion, 0, len(candidates))
	for _, c := range candidates {
		r, reason := check(c)
		if reason != 0 {
			return coverage.Invalid{Reason: reason}
		}
		checked = append(checked, r)
	}

	regions := make([]coverage.Region, 0, len(checked))
	for _, c := range checked {
		id, err := v.paths.Intern(c.file)
		if err != nil {
			// the table is full; the submission is still well formed
			return coverage.Invalid{Reason: coverage.ParseError}
		}
		c.region.File = id
		regions = append(regions, c.region)
	}
	return coverage.Valid{Report: coverage.Report{Regions: regions}}
}

type checkedRegion struct {
	file   string
	region coverage.Region
}

var errInexact = errors.New("not an exact integer")

func check(c formats.Candidate) (checkedRegion, coverage.InvalidReport) {
	if c.File == "" {
		return checkedRegion{}, coverage.ParseError
	}
	from, err := position(c.FromLine, c.FromColumn)
	if err != nil {
		return checkedRegion{}, coverage.LineNumberInvalid
	}
	to, err := position(c.ToLine, c.ToColumn)
	if err != nil {
		return checkedRegion{}, coverage.LineNumberInvalid
	}
	if from.Line < 1 || from.Column < 0 || to.Line < 1 || to.Column < 0 {
		return checkedRegion{}, coverage.LineNumberInvalid
	}
	if normalize.End(to).Compare(from) < 0 {
		return checkedRegion{}, coverage.LineNumberInvalid
	}

	statements, err := count(c.Statements)
	if err != nil {
		return checkedRegion{}, coverage.StatementsInvalid
	}
	executions, err := count(c.Executions)
	if err != nil {
		return checkedRegion{}, coverage.StatementsInvalid
	}

	return checkedRegion{
		file: c.File,
		region: coverage.Region{
			From:       from,
			To:         to,
			Statements: statements,
			Executions: executions,
		},
	}, 0
}

func position(line, column formats.Number) (coverage.Position, error) {
	if !line.Exact || !column.Exact {
		return coverage.Position{}, errInexact
	}
	l, err := safecast.Conv[int](line.Value)
	if err != nil {
		return coverage.Position{}, err
	}
	col, err := safecast.Conv[int](column.Value)
	if err != nil {
		return coverage.Position{}, err
	}
	return coverage.Position{Line: l, Column: col}, nil
}

func count(n formats.Number) (int64, error) {
	if !n.Exact {
		return 0, errInexact
	}
	if n.Value < 0 {
		return 0, fmt.Errorf("negative count %d", n.Value)
	}
	return n.Value, nil
}
