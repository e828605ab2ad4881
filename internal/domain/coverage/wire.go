package coverage

import (
	"encoding/json"
	"fmt"
)

// WireRegion is the JSON form of a Region. Positions keep the zero-column
// end encoding.
type WireRegion struct {
	Executions int64    `json:"executions" yaml:"executions"`
	File       string   `json:"file" yaml:"file"`
	From       Position `json:"from" yaml:"from,flow"`
	To         Position `json:"to" yaml:"to,flow"`
	Statements int64    `json:"statements" yaml:"statements"`
}

type WireReport struct {
	Regions []WireRegion `json:"regions" yaml:"regions"`
}

func (r Region) Wire(paths *PathTable) WireRegion {
	return WireRegion{
		Executions: r.Executions,
		File:       paths.MustLookup(r.File),
		From:       r.From,
		To:         r.To,
		Statements: r.Statements,
	}
}

func (r Report) Wire(paths *PathTable) WireReport {
	out := WireReport{Regions: make([]WireRegion, 0, len(r.Regions))}
	for _, region := range r.Regions {
		out.Regions = append(out.Regions, region.Wire(paths))
	}
	return out
}

// MarshalYAML writes positions as [line, column] tuples like the JSON form.
func (p Position) MarshalYAML() (interface{}, error) {
	return []int{p.Line, p.Column}, nil
}

// WireResult is the tagged union sent to clients: {"Ok": Report} or
// {"Err": InvalidReport}.
type WireResult struct {
	ok  *WireReport
	err InvalidReport
}

func EncodeResult(res Result, paths *PathTable) WireResult {
	switch r := res.(type) {
	case Valid:
		w := r.Report.Wire(paths)
		return WireResult{ok: &w}
	case Invalid:
		return WireResult{err: r.Reason}
	default:
		panic(fmt.Sprintf("unknown result %T", res))
	}
}

// Report returns the Ok payload, if this is an Ok result.
func (w WireResult) Report() (WireReport, bool) {
	if w.ok == nil {
		return WireReport{}, false
	}
	return *w.ok, true
}

// Invalid returns the Err payload, if this is an Err result.
func (w WireResult) Invalid() (InvalidReport, bool) {
	if w.ok != nil {
		return 0, false
	}
	return w.err, w.err.IsValid()
}

func (w WireResult) MarshalJSON() ([]byte, error) {
	if w.ok != nil {
		return json.Marshal(struct {
			Ok WireReport `json:"Ok"`
		}{*w.ok})
	}
	return json.Marshal(struct {
		Err InvalidReport `json:"Err"`
	}{w.err})
}

func (w *WireResult) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("result: expected exactly one of Ok or Err")
	}
	if ok, found := raw["Ok"]; found {
		var report WireReport
		if err := json.Unmarshal(ok, &report); err != nil {
			return err
		}
		*w = WireResult{ok: &report}
		return nil
	}
	if e, found := raw["Err"]; found {
		var reason InvalidReport
		if err := json.Unmarshal(e, &reason); err != nil {
			return err
		}
		*w = WireResult{err: reason}
		return nil
	}
	return fmt.Errorf("result: expected exactly one of Ok or Err")
}
