package normalize

import (
	"testing"

	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

func pos(line, col int) coverage.Position { return coverage.Position{Line: line, Column: col} }

func TestEndResolvesZeroColumn(t *testing.T) {
	tests := []struct {
		name string
		to   coverage.Position
		want coverage.Position
	}{
		{"zero column", pos(5, 0), pos(4, EndOfLine)},
		{"real column", pos(5, 3), pos(5, 3)},
		{"first line zero column", pos(1, 0), pos(0, EndOfLine)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := End(tt.to)
			if got != tt.want {
				t.Fatalf("End(%v) = %v, want %v", tt.to, got, tt.want)
			}
			if back := Wire(got); back != tt.to {
				t.Fatalf("Wire(End(%v)) = %v", tt.to, back)
			}
		})
	}
}

func TestWell(t *testing.T) {
	tests := []struct {
		name     string
		from, to coverage.Position
		want     bool
	}{
		{"multi line", pos(1, 0), pos(3, 0), true},
		{"single line by zero column", pos(4, 0), pos(5, 0), true},
		{"same line", pos(2, 4), pos(2, 9), true},
		{"empty span", pos(2, 4), pos(2, 4), true},
		{"ends before start on same line", pos(2, 9), pos(2, 4), false},
		{"ends on the line before", pos(3, 0), pos(3, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Normalize(coverage.Region{From: tt.from, To: tt.to})
			if got := r.Well(); got != tt.want {
				t.Fatalf("Well() = %v, want %v (end %v)", got, tt.want, r.End)
			}
		})
	}
}

func TestOverlaps(t *testing.T) {
	line := func(file coverage.FileID, l int) Region {
		return Normalize(coverage.Region{File: file, From: pos(l, 0), To: pos(l+1, 0)})
	}
	if line(1, 3).Overlaps(line(1, 4)) {
		t.Fatalf("adjacent whole lines overlap")
	}
	fn := Normalize(coverage.Region{File: 1, From: pos(2, 0), To: pos(6, 0)})
	if !fn.Overlaps(line(1, 4)) || !line(1, 4).Overlaps(fn) {
		t.Fatalf("nested region does not overlap its parent")
	}
	if fn.Overlaps(line(2, 4)) {
		t.Fatalf("regions of different files overlap")
	}
}

func TestSortIsCanonical(t *testing.T) {
	paths := coverage.NewPathTable()
	b, _ := paths.Intern("b.go")
	a, _ := paths.Intern("a.go")

	regions := []coverage.Region{
		{File: b, From: pos(1, 0), To: pos(2, 0)},
		{File: a, From: pos(3, 0), To: pos(4, 0)},
		{File: a, From: pos(1, 0), To: pos(3, 0)},
		{File: a, From: pos(1, 0), To: pos(2, 5)},
		{File: a, From: pos(1, 0), To: pos(2, 0)},
	}
	Sort(paths, regions)

	want := []coverage.Region{
		{File: a, From: pos(1, 0), To: pos(2, 0)},
		{File: a, From: pos(1, 0), To: pos(2, 5)},
		{File: a, From: pos(1, 0), To: pos(3, 0)},
		{File: a, From: pos(3, 0), To: pos(4, 0)},
		{File: b, From: pos(1, 0), To: pos(2, 0)},
	}
	for i := range want {
		if regions[i] != want[i] {
			t.Fatalf("position %d: got %+v, want %+v", i, regions[i], want[i])
		}
	}
}
