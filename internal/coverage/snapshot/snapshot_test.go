package snapshot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/coverage-backend/internal/coverage/aggregate"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

func buildReport(t *testing.T, paths *coverage.PathTable, files, lines int) *aggregate.Report {
	t.Helper()
	var report *aggregate.Report
	for f := 0; f < files; f++ {
		id, err := paths.Intern(fmt.Sprintf("src/module_%d/file.go", f))
		if err != nil {
			t.Fatal(err)
		}
		var regions []coverage.Region
		for l := 1; l <= lines; l++ {
			regions = append(regions, coverage.Region{
				File:       id,
				From:       coverage.Position{Line: l},
				To:         coverage.Position{Line: l + 1},
				Statements: 1,
				Executions: int64(l % 3),
			})
		}
		s := aggregate.Submission{
			Stamp:          aggregate.Stamp{ReceivedAt: time.Unix(1700000000, int64(f)).UTC(), SubmissionID: fmt.Sprintf("s%d", f)},
			IdempotencyKey: fmt.Sprintf("key-%d", f),
			Regions:        regions,
		}
		report, _ = aggregate.Apply(report, s)
	}
	return report
}

func TestRoundTripAcrossPathTables(t *testing.T) {
	tests := []struct {
		name         string
		files, lines int
	}{
		{"small stays raw", 1, 1},
		{"large compresses", 4, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := coverage.NewPathTable()
			report := buildReport(t, src, tt.files, tt.lines)

			data, err := Encode(src, report)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			// A second process interns paths in a different order.
			dst := coverage.NewPathTable()
			if _, err := dst.Intern("unrelated.go"); err != nil {
				t.Fatal(err)
			}
			back, err := Decode(dst, data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			want := report.Report(src).Wire(src)
			got := back.Report(dst).Wire(dst)
			if d := cmp.Diff(want, got); d != "" {
				t.Fatalf("report changed (-want +got):\n%s", d)
			}
			if d := cmp.Diff(report.AppliedKeys(), back.AppliedKeys()); d != "" {
				t.Fatalf("applied keys changed (-want +got):\n%s", d)
			}
		})
	}
}

func TestLargePayloadIsCompressed(t *testing.T) {
	paths := coverage.NewPathTable()
	data, err := Encode(paths, buildReport(t, paths, 4, 200))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != flagLZ4 {
		t.Fatalf("flag = %d, want lz4", data[0])
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	r, err := Decode(coverage.NewPathTable(), nil)
	if err != nil || r.Len() != 0 {
		t.Fatalf("Decode(nil) = %v, %v", r, err)
	}
}

func TestDecodeRejectsCorruptPayloads(t *testing.T) {
	paths := coverage.NewPathTable()
	good, err := Encode(paths, buildReport(t, paths, 1, 3))
	if err != nil {
		t.Fatal(err)
	}
	truncated := append([]byte(nil), good[:len(good)-1]...)
	badFlag := append([]byte(nil), good...)
	badFlag[0] = 9

	for name, data := range map[string][]byte{
		"short header": {flagRaw, 1},
		"truncated":    truncated,
		"unknown flag": badFlag,
	} {
		if _, err := Decode(paths, data); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: err = %v, want ErrCorrupt", name, err)
		}
	}
}
