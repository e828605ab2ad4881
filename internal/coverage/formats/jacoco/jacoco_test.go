package jacoco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/coverage-backend/internal/coverage/formats"
)

const sample = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<!DOCTYPE report PUBLIC "-//JACOCO//DTD Report 1.1//EN" "report.dtd">
<report name="demo">
  <sessioninfo id="s1" start="1" dump="2"/>
  <package name="org/acme">
    <class name="org/acme/App" sourcefilename="App.java">
      <method name="main" desc="()V" line="3"/>
    </class>
    <sourcefile name="App.java">
      <line nr="3" mi="0" ci="4" mb="0" cb="0"/>
      <line nr="4" mi="2" ci="0" mb="1" cb="1"/>
      <counter type="LINE" missed="1" covered="1"/>
    </sourcefile>
  </package>
  <group name="module-b">
    <package name="org/acme/b">
      <sourcefile name="B.java">
        <line nr="10" mi="1" ci="1" mb="0" cb="0"/>
      </sourcefile>
    </package>
  </group>
  <counter type="LINE" missed="1" covered="2"/>
</report>
<!-- generated -->
`

func TestParse(t *testing.T) {
	got, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, []formats.Candidate{
		formats.LineCandidate("org/acme/App.java", formats.Int(3), formats.Int(4), formats.Int(4)),
		formats.LineCandidate("org/acme/App.java", formats.Int(4), formats.Int(2), formats.Int(0)),
		formats.LineCandidate("org/acme/b/B.java", formats.Int(10), formats.Int(2), formats.Int(1)),
	}, got)
}

func TestDefaultPackage(t *testing.T) {
	got, err := Parse([]byte(`<report name="r"><package name=""><sourcefile name="Main.java"><line nr="1" mi="0" ci="1"/></sourcefile></package></report>`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Main.java", got[0].File)
}

func TestNegativeCountsReachTheValidator(t *testing.T) {
	got, err := Parse([]byte(`<report name="r"><package name="p"><sourcefile name="A.java"><line nr="1" mi="-1" ci="2"/></sourcefile></package></report>`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, formats.Int(-1), got[0].Statements)
}

func TestParseMalformed(t *testing.T) {
	docs := map[string]string{
		"unclosed":         `<report name="r"><package name="p">`,
		"wrong root":       `<coverage/>`,
		"missing nr":       `<report><package name="p"><sourcefile name="A.java"><line mi="0" ci="1"/></sourcefile></package></report>`,
		"text nr":          `<report><package name="p"><sourcefile name="A.java"><line nr="x" mi="0" ci="1"/></sourcefile></package></report>`,
		"nameless file":    `<report><package name="p"><sourcefile><line nr="1" mi="0" ci="1"/></sourcefile></package></report>`,
		"trailing element": `<report/><report/>`,
		"trailing text":    `<report/> tail`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, formats.ErrMalformed)
		})
	}
}

func TestSniff(t *testing.T) {
	assert.True(t, Sniff([]byte("\ufeff<?xml version=\"1.0\"?><report/>")))
	assert.False(t, Sniff([]byte("{}")))
}
