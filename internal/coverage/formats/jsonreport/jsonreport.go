// Package jsonreport parses the native report document:
//
//	{"regions": [{"executions": 2, "file": "a.ts", "from": [1, 0], "to": [3, 0], "statements": 5}]}
package jsonreport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/yungbote/coverage-backend/internal/coverage/formats"
)

type document struct {
	Regions *[]region `json:"regions"`
}

type region struct {
	Executions *json.Number  `json:"executions"`
	File       *string       `json:"file"`
	From       []json.Number `json:"from"`
	To         []json.Number `json:"to"`
	Statements *json.Number  `json:"statements"`
}

func Parse(raw []byte) ([]formats.Candidate, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", formats.ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after report", formats.ErrMalformed)
	}
	if doc.Regions == nil {
		return nil, fmt.Errorf("%w: missing regions", formats.ErrMalformed)
	}

	out := make([]formats.Candidate, 0, len(*doc.Regions))
	for i, r := range *doc.Regions {
		c, err := r.candidate()
		if err != nil {
			return nil, fmt.Errorf("%w: region %d: %v", formats.ErrMalformed, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r region) candidate() (formats.Candidate, error) {
	if r.File == nil {
		return formats.Candidate{}, errors.New("missing file")
	}
	if r.Executions == nil {
		return formats.Candidate{}, errors.New("missing executions")
	}
	if r.Statements == nil {
		return formats.Candidate{}, errors.New("missing statements")
	}
	if len(r.From) != 2 {
		return formats.Candidate{}, errors.New("from must be a [line, column] pair")
	}
	if len(r.To) != 2 {
		return formats.Candidate{}, errors.New("to must be a [line, column] pair")
	}

	var (
		c   = formats.Candidate{File: *r.File}
		err error
	)
	fields := []struct {
		dst *formats.Number
		src json.Number
	}{
		{&c.FromLine, r.From[0]},
		{&c.FromColumn, r.From[1]},
		{&c.ToLine, r.To[0]},
		{&c.ToColumn, r.To[1]},
		{&c.Statements, *r.Statements},
		{&c.Executions, *r.Executions},
	}
	for _, f := range fields {
		if *f.dst, err = formats.ParseNumber(f.src.String()); err != nil {
			return formats.Candidate{}, err
		}
	}
	return c, nil
}
