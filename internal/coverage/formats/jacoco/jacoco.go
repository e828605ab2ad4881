// Package jacoco reads JaCoCo XML reports. Only per-line data of source files
// is used; the aggregate counters and class/method trees are skipped.
package jacoco

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/yungbote/coverage-backend/internal/coverage/formats"
)

type report struct {
	XMLName  xml.Name `xml:"report"`
	Name     string   `xml:"name,attr"`
	Groups   []group  `xml:"group"`
	Packages []pkg    `xml:"package"`
}

// group nests in multi-module reports.
type group struct {
	Name     string  `xml:"name,attr"`
	Groups   []group `xml:"group"`
	Packages []pkg   `xml:"package"`
}

type pkg struct {
	Name        string       `xml:"name,attr"`
	SourceFiles []sourceFile `xml:"sourcefile"`
}

type sourceFile struct {
	Name  string `xml:"name,attr"`
	Lines []line `xml:"line"`
}

// line carries missed (mi) and covered (ci) instructions, plus branch
// counters (mb, cb) that are not mapped to regions.
type line struct {
	Nr string `xml:"nr,attr"`
	MI string `xml:"mi,attr"`
	CI string `xml:"ci,attr"`
	MB string `xml:"mb,attr"`
	CB string `xml:"cb,attr"`
}

// Sniff reports whether raw looks like an XML document.
func Sniff(raw []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n\ufeff"), []byte("<"))
}

func Parse(raw []byte) ([]formats.Candidate, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var doc report
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", formats.ErrMalformed, err)
	}
	if err := trailing(dec); err != nil {
		return nil, err
	}

	var out []formats.Candidate
	var walk func(pkgs []pkg, groups []group) error
	walk = func(pkgs []pkg, groups []group) error {
		for _, p := range pkgs {
			for _, sf := range p.SourceFiles {
				cs, err := sf.candidates(p.Name)
				if err != nil {
					return err
				}
				out = append(out, cs...)
			}
		}
		for _, g := range groups {
			if err := walk(g.Packages, g.Groups); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc.Packages, doc.Groups); err != nil {
		return nil, err
	}
	return out, nil
}

func (sf sourceFile) candidates(pkgName string) ([]formats.Candidate, error) {
	if sf.Name == "" {
		return nil, fmt.Errorf("%w: sourcefile without name", formats.ErrMalformed)
	}
	file := sf.Name
	if pkgName != "" {
		file = path.Join(pkgName, sf.Name)
	}
	out := make([]formats.Candidate, 0, len(sf.Lines))
	for _, l := range sf.Lines {
		nr, err := formats.ParseNumber(l.Nr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: line nr: %v", formats.ErrMalformed, file, err)
		}
		mi, err := formats.ParseNumber(l.MI)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%s: mi: %v", formats.ErrMalformed, file, l.Nr, err)
		}
		ci, err := formats.ParseNumber(l.CI)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%s: ci: %v", formats.ErrMalformed, file, l.Nr, err)
		}
		out = append(out, formats.LineCandidate(file, nr, total(mi, ci), ci))
	}
	return out, nil
}

// total is mi+ci. A negative operand or an overflowing sum is passed on as
// such so the validator rejects it.
func total(mi, ci formats.Number) formats.Number {
	if !mi.Exact || !ci.Exact {
		return formats.Number{}
	}
	if mi.Value < 0 || ci.Value < 0 {
		return formats.Int(min(mi.Value, ci.Value))
	}
	sum := mi.Value + ci.Value
	if sum < 0 {
		return formats.Number{}
	}
	return formats.Int(sum)
}

func trailing(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", formats.ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return fmt.Errorf("%w: trailing data after report", formats.ErrMalformed)
			}
		default:
			return fmt.Errorf("%w: trailing data after report", formats.ErrMalformed)
		}
	}
}
