package lcov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/coverage-backend/internal/coverage/formats"
)

func span(file string, from, to, executions int64) formats.Candidate {
	return formats.Candidate{
		File:       file,
		FromLine:   formats.Int(from),
		FromColumn: formats.Int(0),
		ToLine:     formats.Int(to),
		ToColumn:   formats.Int(0),
		Statements: formats.Int(0),
		Executions: formats.Int(executions),
	}
}

func line(file string, nr, count int64) formats.Candidate {
	return formats.LineCandidate(file, formats.Int(nr), formats.Int(1), formats.Int(count))
}

func TestParseModernTracefile(t *testing.T) {
	raw := `# produced by lcov 2.0
TN:unit
VER:1
SF:src/math.c
FNL:0,3,8
FNA:0,5,add
FNA:0,5,add_alias
FNL:1,10
FNA:1,0,sub
FNF:2
FNH:1
DA:4,5,abc123
DA:5,0
BRDA:5,e0,0,-
BRDA:5,0,1,3
MCDC:5,2,t,1,0,a && b
BRF:2
BRH:1
LF:2
LH:1
end_of_record
`
	got, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []formats.Candidate{
		line("src/math.c", 4, 5),
		line("src/math.c", 5, 0),
		span("src/math.c", 3, 9, 5),
	}, got)
}

func TestParseLegacyFunctions(t *testing.T) {
	raw := "SF:a.js\n" +
		"FN:1,5,main\n" +
		"FN:7,cb, with comma\n" +
		"FN:9,12,never\n" +
		"FNDA:2,main\n" +
		"FNDA:4,cb, with comma\n" +
		"DA:2,2\n" +
		"end_of_record\n" +
		"SF:b.js\n" +
		"DA:1,1\n" +
		"end_of_record\n"

	got, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []formats.Candidate{
		line("a.js", 2, 2),
		span("a.js", 1, 6, 2),
		span("a.js", 9, 13, 0),
		line("b.js", 1, 1),
	}, got)
}

func TestParseMalformed(t *testing.T) {
	docs := map[string]string{
		"empty":                  "",
		"missing end_of_record":  "SF:a.c\nDA:1,1\n",
		"stray end_of_record":    "end_of_record\n",
		"nested SF":              "SF:a.c\nSF:b.c\nend_of_record\n",
		"data outside a record":  "DA:1,1\n",
		"unknown key":            "SF:a.c\nXX:1\nend_of_record\n",
		"no separator":           "SF:a.c\nDA\nend_of_record\n",
		"short DA":               "SF:a.c\nDA:1\nend_of_record\n",
		"text line number":       "SF:a.c\nDA:one,1\nend_of_record\n",
		"bad branch":             "SF:a.c\nBRDA:1,0,0,x\nend_of_record\n",
		"bad mcdc sense":         "SF:a.c\nMCDC:1,2,y,1,0,a\nend_of_record\n",
		"negative summary count": "SF:a.c\nLF:-1\nend_of_record\n",
		"empty file name":        "SF:\nend_of_record\n",
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, formats.ErrMalformed)
		})
	}
}

func TestNegativeCountsReachTheValidator(t *testing.T) {
	got, err := Parse([]byte("SF:a.c\nDA:3,-2\nend_of_record\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, formats.Int(-2), got[0].Executions)
}
