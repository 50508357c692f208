package junit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/testbridge/internal/result"
)

const pytestResults = `<?xml version="1.0" encoding="utf-8"?>
<testsuite errors="0" failures="1" name="pytest" skips="0" tests="2" time="0.031">
  <testcase classname="TestA" file="test_a.py" line="3" name="test_one" time="0.01"></testcase>
  <testcase classname="TestA" file="test_a.py" line="6" name="test_two" time="0.02">
    <failure message="bad" type="ValueError">def test_two():
&gt;       raise ValueError("bad")
E       ValueError: bad</failure>
  </testcase>
</testsuite>`

func TestParse_SingleDialectScenario(t *testing.T) {
	records, err := Parse([]byte(pytestResults), DialectSingle)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, result.Record{
		Category: result.OK,
		Status:   "ok",
		Name:     "TestA.test_one",
		Time:     0.01,
	}, records[0])

	second := records[1]
	assert.Equal(t, result.Fail, second.Category)
	assert.Equal(t, "failure", second.Status)
	assert.Equal(t, "TestA.test_two", second.Name)
	assert.Equal(t, "ValueError: bad", second.Message)
	assert.Equal(t, 0.02, second.Time)
	assert.Equal(t, "def test_two():\n>       raise ValueError(\"bad\")\nE       ValueError: bad", second.ExtraText)
}

func TestParse_SingleDialectOutcomes(t *testing.T) {
	doc := `<testsuite>
  <testcase classname="m.T" name="a" time="1"><error type="RuntimeError" message="setup">trace</error></testcase>
  <testcase classname="m.T" name="b" time="2"><skipped type="pytest.skip" message="later"/></testcase>
  <testcase classname="m.T" name="c" time="3"><failure type="AssertionError" message="boom"/></testcase>
  <testcase classname="m.T" name="d" time="4"><failure type="AssertionError"/></testcase>
  <testcase classname="m.T" name="e" time="5"><failure type="AssertionError" message=""/></testcase>
</testsuite>`

	records, err := Parse([]byte(doc), DialectSingle)
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, result.Fail, records[0].Category)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, "RuntimeError: setup", records[0].Message)
	assert.Equal(t, "trace", records[0].ExtraText)

	assert.Equal(t, result.Skip, records[1].Category)
	assert.Equal(t, "skipped", records[1].Status)
	assert.Equal(t, "pytest.skip: later", records[1].Message)
	assert.Equal(t, "", records[1].ExtraText)

	assert.Equal(t, "AssertionError: boom", records[2].Message)
	assert.Equal(t, "AssertionError", records[3].Message, "absent message yields the bare type")
	assert.Equal(t, "AssertionError", records[4].Message, "empty message yields the bare type")
}

func TestParse_SingleDialectIgnoresStreamChildren(t *testing.T) {
	doc := `<testsuite>
  <testcase classname="T" name="a" time="0.5"><system-out>noise</system-out></testcase>
  <testcase classname="T" name="b" time="0.5"><system-out>noise</system-out><failure message="x">body</failure></testcase>
</testsuite>`

	records, err := Parse([]byte(doc), DialectSingle)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, result.OK, records[0].Category)
	assert.Equal(t, "", records[0].ExtraText)
	assert.Equal(t, "failure", records[1].Status)
	assert.Equal(t, "x", records[1].Message)
	assert.Equal(t, "body", records[1].ExtraText)
}

func TestParse_MultiDialectSkipWithStdout(t *testing.T) {
	doc := `<testsuite name="nosetests" tests="1">
  <testcase classname="pkg.TestB" name="test_skip" time="0.001">
    <skipped type="unittest.case.SkipTest" message="not today"></skipped>
    <system-out><![CDATA[hello
]]></system-out>
  </testcase>
</testsuite>`

	records, err := Parse([]byte(doc), DialectMulti)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, result.Skip, rec.Category)
	assert.Equal(t, "skipped", rec.Status)
	assert.Equal(t, "unittest.case.SkipTest: not today", rec.Message)
	assert.Equal(t, "----- Captured stdout -----\nhello", rec.ExtraText)
}

func TestParse_MultiDialectBlockOrder(t *testing.T) {
	doc := `<testsuite>
  <testcase classname="T" name="t" time="0.2">
    <failure type="AssertionError" message="1 != 2">Traceback</failure>
    <system-err>warn

</system-err>
    <system-out>out</system-out>
  </testcase>
</testsuite>`

	records, err := Parse([]byte(doc), DialectMulti)
	require.NoError(t, err)
	require.Len(t, records, 1)

	want := strings.Join([]string{
		"Traceback",
		"----- Captured stderr -----\nwarn",
		"----- Captured stdout -----\nout",
	}, "\n\n")
	assert.Equal(t, want, records[0].ExtraText)
	assert.Equal(t, result.Fail, records[0].Category)
	assert.Equal(t, "AssertionError: 1 != 2", records[0].Message)
}

func TestParse_MultiDialectPassingWithCapturedOutput(t *testing.T) {
	doc := `<testsuite><testcase classname="T" name="ok" time="0"><system-out>x
</system-out></testcase></testsuite>`

	records, err := Parse([]byte(doc), DialectMulti)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.OK, records[0].Category)
	assert.Equal(t, "ok", records[0].Status)
	assert.Equal(t, "", records[0].Message)
	assert.Equal(t, "----- Captured stdout -----\nx", records[0].ExtraText)
}

func TestParse_MultiDialectErrorWithoutText(t *testing.T) {
	doc := `<testsuite><testcase classname="T" name="e" time="0.1"><error type="ImportError"/></testcase></testsuite>`

	records, err := Parse([]byte(doc), DialectMulti)
	require.NoError(t, err)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, result.Fail, records[0].Category)
	assert.Equal(t, "ImportError", records[0].Message)
	assert.Equal(t, "", records[0].ExtraText)
}

func TestParse_NoOutcomeChildIsOK(t *testing.T) {
	doc := `<testsuite><testcase classname="C" name="n" time="0.3"/></testsuite>`
	for _, d := range []Dialect{DialectSingle, DialectMulti} {
		records, err := Parse([]byte(doc), d)
		require.NoError(t, err, d.String())
		require.Len(t, records, 1)
		assert.Equal(t, result.Record{Category: result.OK, Status: "ok", Name: "C.n", Time: 0.3}, records[0], d.String())
	}
}

func TestParse_PreservesDocumentOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("<testsuite>")
	const n = 25
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<testcase classname="T" name="t%02d" time="0.%d"/>`, n-i, i)
	}
	b.WriteString("</testsuite>")

	records, err := Parse([]byte(b.String()), DialectSingle)
	require.NoError(t, err)
	require.Len(t, records, n)
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("T.t%02d", n-i), r.Name)
	}
}

func TestParse_Idempotent(t *testing.T) {
	first, err := Parse([]byte(pytestResults), DialectSingle)
	require.NoError(t, err)
	second, err := Parse([]byte(pytestResults), DialectSingle)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParse_TestsuitesRoot(t *testing.T) {
	doc := `<testsuites>
  <testsuite name="pytest"><testcase classname="A" name="a" time="1"/></testsuite>
  <testsuite name="more"><properties><property name="k" value="v"/></properties><testcase classname="B" name="b" time="2"/></testsuite>
</testsuites>`

	records, err := Parse([]byte(doc), DialectSingle)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A.a", records[0].Name)
	assert.Equal(t, "B.b", records[1].Name)
}

func TestParse_TimeParsing(t *testing.T) {
	records, err := Parse([]byte(`<testsuite><testcase classname="T" name="t" time="0.023"/></testsuite>`), DialectSingle)
	require.NoError(t, err)
	assert.Equal(t, 0.023, records[0].Time)

	_, err = Parse([]byte(`<testsuite><testcase classname="T" name="ok" time="1"/><testcase classname="T" name="t" time="abc"/></testsuite>`), DialectSingle)
	var merr *MalformedResultError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 1, merr.Index)
	assert.Equal(t, "t", merr.Test)
	assert.Contains(t, merr.Error(), `parse time "abc"`)
}

func TestParse_MalformedInputs(t *testing.T) {
	cases := map[string]string{
		"missing time":       `<testsuite><testcase classname="T" name="t"/></testsuite>`,
		"negative time":      `<testsuite><testcase classname="T" name="t" time="-1"/></testsuite>`,
		"no name":            `<testsuite><testcase time="1"/></testsuite>`,
		"wrong root":         `<report><testcase classname="T" name="t" time="1"/></report>`,
		"stray suite child":  `<testsuite><bogus/></testsuite>`,
		"stray suites child": `<testsuites><testcase classname="T" name="t" time="1"/></testsuites>`,
		"not xml":            `this is not xml`,
		"empty":              ``,
		"truncated":          `<testsuite><testcase classname="T" name="t" time="1">`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), DialectMulti)
			var merr *MalformedResultError
			assert.ErrorAs(t, err, &merr)
		})
	}
}

func TestParse_NameFallbacks(t *testing.T) {
	records, err := Parse([]byte(`<testsuite><testcase name="bare" time="1"/><testcase classname="only.class" time="1"/></testsuite>`), DialectSingle)
	require.NoError(t, err)
	assert.Equal(t, "bare", records[0].Name)
	assert.Equal(t, "only.class", records[1].Name)
}

func TestParse_UnknownDialect(t *testing.T) {
	_, err := Parse([]byte(pytestResults), Dialect(99))
	require.Error(t, err)
	var merr *MalformedResultError
	assert.False(t, errors.As(err, &merr))
}

func TestParseFile_MissingFile(t *testing.T) {
	records, err := ParseFile(filepath.Join(t.TempDir(), "does-not-exist.xml"), DialectSingle)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseFile_SetsPathOnMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xml")
	require.NoError(t, os.WriteFile(path, []byte("<testsuite><testcase"), 0o644))

	_, err := ParseFile(path, DialectSingle)
	var merr *MalformedResultError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, path, merr.Path)
	assert.Equal(t, -1, merr.Index)
	assert.Contains(t, err.Error(), path)
}

func TestParseFile_ReadsResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xml")
	require.NoError(t, os.WriteFile(path, []byte(pytestResults), 0o644))

	records, err := ParseFile(path, DialectSingle)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCategoryFor_TablesAreExhaustive(t *testing.T) {
	want := map[string]result.Category{
		"ok":      result.OK,
		"failure": result.Fail,
		"error":   result.Fail,
		"skipped": result.Skip,
	}
	for _, d := range []Dialect{DialectSingle, DialectMulti} {
		for status, cat := range want {
			got, ok := CategoryFor(d, status)
			assert.True(t, ok, "%s/%s", d, status)
			assert.Equal(t, cat, got, "%s/%s", d, status)
		}
		_, ok := CategoryFor(d, "system-out")
		assert.False(t, ok)
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("multi")
	require.NoError(t, err)
	assert.Equal(t, DialectMulti, d)

	_, err = ParseDialect("xunit")
	assert.Error(t, err)
}
