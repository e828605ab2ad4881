package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/coverage-backend/internal/coverage/intake"
	"github.com/yungbote/coverage-backend/internal/coverage/normalize"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

// errInvalidReport makes the process exit 1 after the reason was printed.
var errInvalidReport = errors.New("invalid report")

const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

type checkOptions struct {
	output      string
	inputFormat string
	noColor     bool
}

func checkCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a coverage file and print the normalized report",
		Long: `Check runs the same validation as the API on a local file ("-" reads
stdin) and prints the resulting report. The exit status is 1 when the file
is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "format", "f", outputTable, "output format: table, yaml or json")
	cmd.Flags().StringVar(&opts.inputFormat, "input-format", "auto", "submission format: auto, json, go, jacoco or lcov")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	return cmd
}

func runCheck(out io.Writer, name string, opts checkOptions) error {
	if opts.noColor {
		color.NoColor = true
	}
	raw, err := readInput(name)
	if err != nil {
		return err
	}

	paths := coverage.NewPathTable()
	v := intake.New(paths)
	var res coverage.Result
	switch f := strings.ToLower(opts.inputFormat); f {
	case "", "auto":
		res = v.Validate(raw)
	case string(intake.FormatJSON), string(intake.FormatGo), string(intake.FormatJaCoCo), string(intake.FormatLCOV):
		res = v.ValidateFormat(intake.Format(f), raw)
	default:
		return fmt.Errorf("unknown input format %q", opts.inputFormat)
	}
	if valid, ok := res.(coverage.Valid); ok {
		normalize.Sort(paths, valid.Report.Regions)
		res = valid
	}

	switch strings.ToLower(opts.output) {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(coverage.EncodeResult(res, paths)); err != nil {
			return err
		}
	case outputYAML:
		if err := writeYAML(out, res, paths); err != nil {
			return err
		}
	case outputTable:
		writeTable(out, name, res, paths)
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	if _, ok := res.(coverage.Invalid); ok {
		return errInvalidReport
	}
	return nil
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return raw, nil
}

func writeYAML(out io.Writer, res coverage.Result, paths *coverage.PathTable) error {
	var doc any
	switch r := res.(type) {
	case coverage.Valid:
		doc = map[string]coverage.WireReport{"ok": r.Report.Wire(paths)}
	case coverage.Invalid:
		doc = map[string]string{"err": r.Reason.String()}
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func writeTable(out io.Writer, name string, res coverage.Result, paths *coverage.PathTable) {
	if inv, ok := res.(coverage.Invalid); ok {
		color.New(color.FgRed).Fprintf(out, "%s rejected: %s\n", name, inv.Reason)
		return
	}
	report := res.(coverage.Valid).Report

	tbl := table.NewWriter()
	tbl.SetOutputMirror(out)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"File", "From", "To", "Statements", "Executions"})

	var statements, covered int64
	for _, r := range report.Regions {
		tbl.AppendRow(table.Row{
			paths.MustLookup(r.File),
			r.From.String(),
			r.To.String(),
			humanize.Comma(r.Statements),
			humanize.Comma(r.Executions),
		})
		statements += r.Statements
		if r.Executions > 0 {
			covered += r.Statements
		}
	}
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%s regions", humanize.Comma(int64(len(report.Regions)))),
		"", "",
		humanize.Comma(statements),
		fmt.Sprintf("%s covered", humanize.Comma(covered)),
	})
	tbl.Render()

	color.New(color.FgGreen).Fprintf(out, "%s is valid\n", name)
	if n := overlapping(report.Regions); n > 0 {
		color.New(color.FgYellow).Fprintf(out, "  %d regions overlap an earlier region of the same file\n", n)
	}
}

// overlapping counts regions that start before the furthest end seen so far
// in their file. regions must be in canonical order.
func overlapping(regions []coverage.Region) int {
	var (
		n       int
		prev    normalize.Region
		hasPrev bool
	)
	for _, r := range regions {
		cur := normalize.Normalize(r)
		if hasPrev && prev.Overlaps(cur) {
			n++
			if cur.End.Compare(prev.End) > 0 {
				prev = cur
			}
			continue
		}
		prev, hasPrev = cur, true
	}
	return n
}
