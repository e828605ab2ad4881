package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunCheckJSON(t *testing.T) {
	path := writeFile(t, "cover.out", "mode: count\nexample.com/m/b.go:1.1,2.3 1 0\nexample.com/m/a.go:4.2,6.1 2 3\n")

	var out bytes.Buffer
	require.NoError(t, runCheck(&out, path, checkOptions{output: outputJSON}))
	assert.JSONEq(t, `{"Ok": {"regions": [
		{"executions": 3, "file": "example.com/m/a.go", "from": [4, 2], "to": [6, 1], "statements": 2},
		{"executions": 0, "file": "example.com/m/b.go", "from": [1, 1], "to": [2, 3], "statements": 1}
	]}}`, out.String())
}

func TestRunCheckRejected(t *testing.T) {
	path := writeFile(t, "broken.info", "this is not coverage\n")

	var out bytes.Buffer
	err := runCheck(&out, path, checkOptions{output: outputYAML})
	assert.ErrorIs(t, err, errInvalidReport)
	assert.Equal(t, "err: ParseError\n", out.String())
}

func TestRunCheckTable(t *testing.T) {
	path := writeFile(t, "lcov.info", "SF:src/a.ts\nDA:1,4\nDA:2,0\nend_of_record\n")

	var out bytes.Buffer
	require.NoError(t, runCheck(&out, path, checkOptions{output: outputTable, noColor: true}))
	text := out.String()
	assert.Contains(t, text, "src/a.ts")
	// The footer is rendered upper case.
	assert.Contains(t, strings.ToLower(text), "2 regions")
	assert.Contains(t, text, "is valid")
}

func TestRunCheckFormatErrors(t *testing.T) {
	path := writeFile(t, "r.json", `{"regions": []}`)
	var out bytes.Buffer

	err := runCheck(&out, path, checkOptions{output: "xml"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "output format"))

	err = runCheck(&out, path, checkOptions{output: outputJSON, inputFormat: "cobertura"})
	require.Error(t, err)

	// Forcing a format that does not match the content rejects it.
	out.Reset()
	err = runCheck(&out, path, checkOptions{output: outputYAML, inputFormat: "lcov"})
	assert.ErrorIs(t, err, errInvalidReport)
}
