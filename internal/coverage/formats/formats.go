// Package formats holds what the per-tool coverage parsers share: the
// candidate region they produce and number handling.
//
// Parsers only check structure. Range checks on lines and counts belong to
// the intake validator, so a parser hands through negative or inexact values.
package formats

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed is wrapped by every parser error.
var ErrMalformed = errors.New("malformed coverage report")

// Number is a parsed integer field. Exact is false when the source held a
// number that is not a representable integer (a fraction, an exponent that
// overflows, a value out of int64 range).
type Number struct {
	Value int64
	Exact bool
}

func Int(v int64) Number {
	return Number{Value: v, Exact: true}
}

// ParseNumber parses a decimal integer. Whole numbers written with a fraction
// or an exponent ("2.0", "1e2") count as integers. Other numeric text yields
// an inexact Number; anything else is an error.
func ParseNumber(s string) (Number, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return Int(v), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return Number{}, nil
	}
	if _, ferr := strconv.ParseFloat(s, 64); ferr != nil && !errors.Is(ferr, strconv.ErrRange) {
		return Number{}, err
	}
	if v, ok := wholeDecimal(s); ok {
		return Int(v), nil
	}
	return Number{}, nil
}

// wholeDecimal evaluates decimal text with an optional fraction and exponent
// exactly, without going through a float. It fails for non-integral values
// and for values outside int64.
func wholeDecimal(s string) (int64, bool) {
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}
	mant, exp := s, 0
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return 0, false
		}
		mant, exp = s[:i], e
	}
	whole, frac, _ := strings.Cut(mant, ".")
	if whole+frac == "" || !isDigits(whole) || !isDigits(frac) {
		return 0, false
	}

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return 0, true
	}
	exp -= len(frac)
	for exp < 0 && strings.HasSuffix(digits, "0") {
		digits = digits[:len(digits)-1]
		exp++
	}
	if exp < 0 || exp > 19 || len(digits)+exp > 19 {
		return 0, false
	}
	v, err := strconv.ParseInt(sign+digits+strings.Repeat("0", exp), 10, 64)
	return v, err == nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Candidate is a region as read from a submission, before validation.
type Candidate struct {
	File       string
	FromLine   Number
	FromColumn Number
	ToLine     Number
	ToColumn   Number
	Statements Number
	Executions Number
}

// LineCandidate covers one whole line: from (line, 0) to (line+1, 0).
func LineCandidate(file string, line, statements, executions Number) Candidate {
	to := line
	switch {
	case !to.Exact:
	case to.Value == math.MaxInt64:
		to = Number{}
	default:
		to.Value++
	}
	return Candidate{
		File:       file,
		FromLine:   line,
		FromColumn: Int(0),
		ToLine:     to,
		ToColumn:   Int(0),
		Statements: statements,
		Executions: executions,
	}
}
