package coverage

import (
	"encoding/json"
	"testing"
)

func TestEncodeResultOk(t *testing.T) {
	paths := NewPathTable()
	file, _ := paths.Intern("a.ts")
	res := Valid{Report: Report{Regions: []Region{{
		File:       file,
		From:       Position{Line: 1, Column: 0},
		To:         Position{Line: 3, Column: 0},
		Statements: 5,
		Executions: 2,
	}}}}

	raw, err := json.Marshal(EncodeResult(res, paths))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"Ok":{"regions":[{"executions":2,"file":"a.ts","from":[1,0],"to":[3,0],"statements":5}]}}`
	if string(raw) != want {
		t.Fatalf("got  %s\nwant %s", raw, want)
	}

	var back WireResult
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	report, ok := back.Report()
	if !ok || len(report.Regions) != 1 {
		t.Fatalf("decoded result is not Ok with one region: %+v", back)
	}
	if report.Regions[0].To != (Position{Line: 3, Column: 0}) {
		t.Fatalf("zero-column end changed on the wire: %v", report.Regions[0].To)
	}
}

func TestEncodeResultErr(t *testing.T) {
	for _, reason := range []InvalidReport{LineNumberInvalid, StatementsInvalid, ParseError} {
		raw, err := json.Marshal(EncodeResult(Invalid{Reason: reason}, NewPathTable()))
		if err != nil {
			t.Fatalf("%s: Marshal: %v", reason, err)
		}
		if want := `{"Err":"` + reason.String() + `"}`; string(raw) != want {
			t.Fatalf("got %s, want %s", raw, want)
		}
		var back WireResult
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("%s: Unmarshal: %v", reason, err)
		}
		if got, ok := back.Invalid(); !ok || got != reason {
			t.Fatalf("round trip = %v, %v", got, ok)
		}
	}
}

func TestWireResultRejectsAmbiguousDocuments(t *testing.T) {
	for _, doc := range []string{`{}`, `{"Ok":{"regions":[]},"Err":"ParseError"}`, `{"Err":"Nope"}`} {
		var w WireResult
		if err := json.Unmarshal([]byte(doc), &w); err == nil {
			t.Fatalf("%s: expected error", doc)
		}
	}
}

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		scope Scope
		ok    bool
	}{
		{Scope{Organisation: "acme", Commit: "c1", File: "a.go"}, true},
		{Scope{Commit: "c1", File: "a.go"}, false},
		{Scope{Organisation: "acme", File: "a.go"}, false},
		{Scope{Organisation: "acme", Commit: "c1"}, false},
	}
	for _, tt := range tests {
		if err := tt.scope.Validate(); (err == nil) != tt.ok {
			t.Errorf("%v: Validate() = %v", tt.scope, err)
		}
	}
}

func TestPositionRequiresPair(t *testing.T) {
	var p Position
	if err := json.Unmarshal([]byte(`[4, 2]`), &p); err != nil || p != (Position{Line: 4, Column: 2}) {
		t.Fatalf("Unmarshal([4, 2]) = %v, %v", p, err)
	}
	for _, doc := range []string{`[1]`, `[1, 2, 3]`, `[]`, `"1.2"`} {
		if err := json.Unmarshal([]byte(doc), &p); err == nil {
			t.Errorf("%s: expected error", doc)
		}
	}

	doc := `{"Ok":{"regions":[{"executions":2,"file":"a.ts","from":[1],"to":[3,0],"statements":5}]}}`
	var w WireResult
	if err := json.Unmarshal([]byte(doc), &w); err == nil {
		t.Fatalf("short tuple decoded: %+v", w)
	}
}
