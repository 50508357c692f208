// Package junit reads the JUnit-XML-like result files written by Python test
// runners and turns them into result records.
package junit

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lucasnoah/testbridge/internal/result"
)

// Dialect identifies the shape a runner uses for failures, errors and skips.
type Dialect int

const (
	// DialectSingle is the pytest shape: at most one outcome child per
	// testcase, whose text is the failure body.
	DialectSingle Dialect = iota + 1
	// DialectMulti is the nose shape: outcome children and captured
	// system-out/system-err children side by side.
	DialectMulti
)

func (d Dialect) String() string {
	switch d {
	case DialectSingle:
		return "single"
	case DialectMulti:
		return "multi"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// ParseDialect converts a dialect name ("single" or "multi") to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch name {
	case "single":
		return DialectSingle, nil
	case "multi":
		return DialectMulti, nil
	}
	return 0, fmt.Errorf("unknown result dialect %q", name)
}

const statusOK = "ok"

// outcome is what a dialect extracts from the children of one testcase.
type outcome struct {
	status    string
	message   string
	extraText string
}

type dialectSpec struct {
	categories map[string]result.Category
	outcome    func(tc *element) outcome
}

var dialects = map[Dialect]dialectSpec{
	DialectSingle: {
		categories: map[string]result.Category{
			statusOK:  result.OK,
			"failure": result.Fail,
			"error":   result.Fail,
			"skipped": result.Skip,
		},
		outcome: singleOutcome,
	},
	DialectMulti: {
		categories: map[string]result.Category{
			statusOK:  result.OK,
			"failure": result.Fail,
			"error":   result.Fail,
			"skipped": result.Skip,
		},
		outcome: multiOutcome,
	},
}

// CategoryFor maps a raw status label to its category within a dialect.
func CategoryFor(d Dialect, status string) (result.Category, bool) {
	spec, ok := dialects[d]
	if !ok {
		return 0, false
	}
	cat, ok := spec.categories[status]
	return cat, ok
}

// MalformedResultError reports a result file that exists but does not have
// the expected shape. Index is the zero-based testcase position, or -1 when
// the problem is with the document as a whole.
type MalformedResultError struct {
	Path  string
	Index int
	Test  string
	Err   error
}

func (e *MalformedResultError) Error() string {
	var b strings.Builder
	b.WriteString("malformed result file")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, ", testcase %d", e.Index)
		if e.Test != "" {
			fmt.Fprintf(&b, " (%s)", e.Test)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *MalformedResultError) Unwrap() error {
	return e.Err
}

// element is a generic XML node. Children keep document order.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []element  `xml:",any"`
}

func (e *element) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (e *element) hasAttr(name string) bool {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}

// Parse decodes result-file content into one record per testcase, in
// document order.
func Parse(data []byte, d Dialect) ([]result.Record, error) {
	spec, ok := dialects[d]
	if !ok {
		return nil, fmt.Errorf("unknown result dialect %d", int(d))
	}

	var root element
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, &MalformedResultError{Index: -1, Err: fmt.Errorf("decode xml: %w", err)}
	}

	cases, err := testcases(&root)
	if err != nil {
		return nil, &MalformedResultError{Index: -1, Err: err}
	}

	records := make([]result.Record, 0, len(cases))
	for i, tc := range cases {
		rec, err := spec.record(tc)
		if err != nil {
			return nil, &MalformedResultError{Index: i, Test: tc.attr("name"), Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseFile reads and parses the result file at path. A file that is missing
// or cannot be opened yields no records and no error: the runner was killed
// or crashed before writing it.
func ParseFile(path string, d Dialect) ([]result.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read result file %s: %w", path, err)
	}

	records, err := Parse(data, d)
	var merr *MalformedResultError
	if errors.As(err, &merr) {
		merr.Path = path
	}
	return records, err
}

// testcases collects the testcase elements below a testsuite root, or below
// each testsuite of a testsuites root.
func testcases(root *element) ([]*element, error) {
	switch root.XMLName.Local {
	case "testsuite":
		return suiteCases(root)
	case "testsuites":
		var all []*element
		for i := range root.Children {
			child := &root.Children[i]
			if ignorableSuiteChild(child.XMLName.Local) {
				continue
			}
			if child.XMLName.Local != "testsuite" {
				return nil, fmt.Errorf("unexpected element <%s> in <testsuites>", child.XMLName.Local)
			}
			cases, err := suiteCases(child)
			if err != nil {
				return nil, err
			}
			all = append(all, cases...)
		}
		return all, nil
	default:
		return nil, fmt.Errorf("unexpected root element <%s>", root.XMLName.Local)
	}
}

func suiteCases(suite *element) ([]*element, error) {
	var cases []*element
	for i := range suite.Children {
		child := &suite.Children[i]
		if child.XMLName.Local == "testcase" {
			cases = append(cases, child)
			continue
		}
		if !ignorableSuiteChild(child.XMLName.Local) {
			return nil, fmt.Errorf("unexpected element <%s> in <testsuite>", child.XMLName.Local)
		}
	}
	return cases, nil
}

func ignorableSuiteChild(tag string) bool {
	switch tag {
	case "properties", "system-out", "system-err":
		return true
	}
	return false
}

func (s dialectSpec) record(tc *element) (result.Record, error) {
	name, err := caseName(tc)
	if err != nil {
		return result.Record{}, err
	}
	elapsed, err := caseTime(tc)
	if err != nil {
		return result.Record{}, err
	}

	o := s.outcome(tc)
	cat, ok := s.categories[o.status]
	if !ok {
		return result.Record{}, fmt.Errorf("unmapped status %q", o.status)
	}

	return result.Record{
		Category:  cat,
		Status:    o.status,
		Name:      name,
		Message:   o.message,
		Time:      elapsed,
		ExtraText: o.extraText,
	}, nil
}

func caseName(tc *element) (string, error) {
	classname := tc.attr("classname")
	name := tc.attr("name")
	switch {
	case classname != "" && name != "":
		return classname + "." + name, nil
	case name != "":
		return name, nil
	case classname != "":
		return classname, nil
	}
	return "", errors.New("testcase has neither classname nor name")
}

func caseTime(tc *element) (float64, error) {
	if !tc.hasAttr("time") {
		return 0, errors.New("missing time attribute")
	}
	raw := tc.attr("time")
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative time %q", raw)
	}
	return v, nil
}

func isOutcomeTag(tag string) bool {
	switch tag {
	case "error", "failure", "skipped":
		return true
	}
	return false
}
