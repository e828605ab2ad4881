// Package gocover reads Go coverage profiles as written by `go test -coverprofile`:
//
//	mode: count
//	github.com/owner/repo/file.go:1.2,3.4 5 6
package gocover

import (
	"bufio"
	"bytes"
	"fmt"

	"golang.org/x/tools/cover"

	"github.com/yungbote/coverage-backend/internal/coverage/formats"
)

// Mode is the counting mode of a profile.
type Mode string

const (
	// ModeSet answers "was this block executed at all?".
	ModeSet Mode = "set"
	// ModeCount counts executions. Unsafe in concurrent programs.
	ModeCount Mode = "count"
	// ModeAtomic counts executions, safely under concurrency.
	ModeAtomic Mode = "atomic"
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeSet, ModeCount, ModeAtomic:
		return true
	default:
		return false
	}
}

// Sniff reports whether raw starts like a Go profile.
func Sniff(raw []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte("mode:"))
}

func Parse(raw []byte) ([]formats.Candidate, error) {
	cleaned, err := clean(raw)
	if err != nil {
		return nil, err
	}
	// The reader merges repeated blocks itself and rejects repeats that
	// disagree on the statement count.
	profiles, err := cover.ParseProfilesFromReader(bytes.NewReader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", formats.ErrMalformed, err)
	}

	var out []formats.Candidate
	for _, p := range profiles {
		for _, b := range p.Blocks {
			out = append(out, formats.Candidate{
				File:       p.FileName,
				FromLine:   formats.Int(int64(b.StartLine)),
				FromColumn: formats.Int(int64(b.StartCol)),
				ToLine:     formats.Int(int64(b.EndLine)),
				ToColumn:   formats.Int(int64(b.EndCol)),
				Statements: formats.Int(int64(b.NumStmt)),
				Executions: formats.Int(int64(b.Count)),
			})
		}
	}
	return out, nil
}

// clean drops a byte order mark and blank lines, normalizes CRLF and checks
// the mode line, which the profile reader accepts with any value.
func clean(raw []byte) ([]byte, error) {
	var (
		buf  bytes.Buffer
		mode Mode
	)
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	s := bufio.NewScanner(bytes.NewReader(raw))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := bytes.TrimRight(s.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if mode == "" {
			m, ok := bytes.CutPrefix(line, []byte("mode: "))
			if !ok || !Mode(m).IsValid() {
				return nil, fmt.Errorf("%w: bad mode line %q", formats.ErrMalformed, line)
			}
			mode = Mode(m)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", formats.ErrMalformed, err)
	}
	if mode == "" {
		return nil, fmt.Errorf("%w: missing mode line", formats.ErrMalformed)
	}
	return buf.Bytes(), nil
}
