// Package lcov reads LCOV tracefiles as described in geninfo(1), "TRACEFILE
// FORMAT". Line data (DA) and function spans with a known end line become
// regions; every other record is checked for shape and skipped.
package lcov

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/coverage-backend/internal/coverage/formats"
)

type function struct {
	declared   bool
	start      formats.Number
	end        formats.Number
	hasEnd     bool
	executions formats.Number
	seen       bool
}

// record is one SF ... end_of_record block.
type record struct {
	file string
	out  []formats.Candidate

	// modern FNL/FNA functions by index, legacy FN/FNDA functions by name
	byIndex map[string]*function
	byName  map[string]*function
	order   []*function
}

func newRecord(file string) *record {
	return &record{
		file:    file,
		byIndex: map[string]*function{},
		byName:  map[string]*function{},
	}
}

func (r *record) fn(m map[string]*function, key string) *function {
	f, ok := m[key]
	if !ok {
		f = &function{}
		m[key] = f
		r.order = append(r.order, f)
	}
	return f
}

func (f *function) hit(n formats.Number) {
	switch {
	case !f.seen:
		f.executions = n
	case !n.Exact || !f.executions.Exact:
		f.executions = formats.Number{}
	default:
		// aliases of one function report the same counter
		f.executions.Value = max(f.executions.Value, n.Value)
	}
	f.seen = true
}

func (r *record) close() []formats.Candidate {
	out := r.out
	for _, f := range r.order {
		// FNDA/FNA without a leader, or a leader without an end line
		if !f.declared || !f.hasEnd {
			continue
		}
		executions := f.executions
		if !f.seen {
			executions = formats.Int(0)
		}
		out = append(out, formats.Candidate{
			File:       r.file,
			FromLine:   f.start,
			FromColumn: formats.Int(0),
			ToLine:     next(f.end),
			ToColumn:   formats.Int(0),
			Statements: formats.Int(0),
			Executions: executions,
		})
	}
	return out
}

func next(n formats.Number) formats.Number {
	if !n.Exact || n.Value == math.MaxInt64 {
		return formats.Number{}
	}
	return formats.Int(n.Value + 1)
}

// Sniff always succeeds: LCOV is the fallback format.
func Sniff([]byte) bool { return true }

func Parse(raw []byte) ([]formats.Candidate, error) {
	var (
		out []formats.Candidate
		cur *record
		nr  int
	)
	s := bufio.NewScanner(bytes.NewReader(raw))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		nr++
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "end_of_record" {
			if cur == nil {
				return nil, malformed(nr, "end_of_record outside a record")
			}
			out = append(out, cur.close()...)
			cur = nil
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, malformed(nr, "expected KEY:VALUE")
		}
		switch key {
		case "TN":
			continue
		case "SF":
			if cur != nil {
				return nil, malformed(nr, "SF inside a record")
			}
			if value == "" {
				return nil, malformed(nr, "empty source file name")
			}
			cur = newRecord(value)
			continue
		}
		if cur == nil {
			return nil, malformed(nr, key+" outside a record")
		}
		if err := cur.field(key, value); err != nil {
			return nil, malformed(nr, err.Error())
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", formats.ErrMalformed, err)
	}
	if cur != nil {
		return nil, fmt.Errorf("%w: missing end_of_record for %s", formats.ErrMalformed, cur.file)
	}
	if nr == 0 {
		return nil, fmt.Errorf("%w: empty tracefile", formats.ErrMalformed)
	}
	return out, nil
}

func malformed(line int, msg string) error {
	return fmt.Errorf("%w: line %d: %s", formats.ErrMalformed, line, msg)
}

func (r *record) field(key, value string) error {
	switch key {
	case "VER":
		return nil
	case "DA":
		// DA:<line>,<count>[,<checksum>]
		parts := strings.SplitN(value, ",", 3)
		if len(parts) < 2 {
			return errors.New("DA: want line,count")
		}
		ln, err := formats.ParseNumber(parts[0])
		if err != nil {
			return fmt.Errorf("DA: %w", err)
		}
		count, err := formats.ParseNumber(parts[1])
		if err != nil {
			return fmt.Errorf("DA: %w", err)
		}
		r.out = append(r.out, formats.LineCandidate(r.file, ln, formats.Int(1), count))
		return nil
	case "FNL":
		// FNL:<index>,<start>[,<end>]
		parts := strings.Split(value, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return errors.New("FNL: want index,start[,end]")
		}
		if err := checkUint(parts[0]); err != nil {
			return fmt.Errorf("FNL: %w", err)
		}
		f := r.fn(r.byIndex, parts[0])
		return f.span(parts[1:])
	case "FNA":
		// FNA:<index>,<count>,<name>
		parts := strings.SplitN(value, ",", 3)
		if len(parts) != 3 {
			return errors.New("FNA: want index,count,name")
		}
		if err := checkUint(parts[0]); err != nil {
			return fmt.Errorf("FNA: %w", err)
		}
		count, err := formats.ParseNumber(parts[1])
		if err != nil {
			return fmt.Errorf("FNA: %w", err)
		}
		r.fn(r.byIndex, parts[0]).hit(count)
		return nil
	case "FN":
		// FN:<start>[,<end>],<name>
		parts := strings.SplitN(value, ",", 3)
		if len(parts) < 2 {
			return errors.New("FN: want start[,end],name")
		}
		if len(parts) == 3 {
			if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
				// the name itself contains a comma
				parts = []string{parts[0], parts[1] + "," + parts[2]}
			}
		}
		name := parts[len(parts)-1]
		return r.fn(r.byName, name).span(parts[:len(parts)-1])
	case "FNDA":
		// FNDA:<count>,<name>
		count, name, ok := strings.Cut(value, ",")
		if !ok {
			return errors.New("FNDA: want count,name")
		}
		n, err := formats.ParseNumber(count)
		if err != nil {
			return fmt.Errorf("FNDA: %w", err)
		}
		r.fn(r.byName, name).hit(n)
		return nil
	case "BRDA":
		// BRDA:<line>,[e]<block>,<branch>,<taken>
		parts := strings.SplitN(value, ",", 4)
		if len(parts) != 4 {
			return errors.New("BRDA: want line,block,branch,taken")
		}
		if err := checkUint(parts[0]); err != nil {
			return fmt.Errorf("BRDA: %w", err)
		}
		if err := checkUint(strings.TrimPrefix(parts[1], "e")); err != nil {
			return fmt.Errorf("BRDA: %w", err)
		}
		if parts[3] != "-" {
			if err := checkUint(parts[3]); err != nil {
				return fmt.Errorf("BRDA: %w", err)
			}
		}
		return nil
	case "MCDC":
		// MCDC:<line>,<group size>,<sense>,<taken>,<index>,<expression>
		parts := strings.SplitN(value, ",", 6)
		if len(parts) != 6 {
			return errors.New("MCDC: want line,groupSize,sense,taken,index,expression")
		}
		for _, i := range []int{0, 1, 3, 4} {
			if err := checkUint(parts[i]); err != nil {
				return fmt.Errorf("MCDC: %w", err)
			}
		}
		if parts[2] != "t" && parts[2] != "f" {
			return errors.New("MCDC: sense must be t or f")
		}
		return nil
	case "FNF", "FNH", "BRF", "BRH", "MRF", "MRH", "LF", "LH":
		if err := checkUint(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown record %q", key)
	}
}

func (f *function) span(bounds []string) error {
	start, err := formats.ParseNumber(bounds[0])
	if err != nil {
		return err
	}
	f.start, f.declared = start, true
	if len(bounds) > 1 {
		end, err := formats.ParseNumber(bounds[1])
		if err != nil {
			return err
		}
		f.end, f.hasEnd = end, true
	}
	return nil
}

func checkUint(s string) error {
	_, err := strconv.ParseUint(s, 10, 64)
	return err
}
