// Package result defines the normalised test result model shared by every
// runner dialect.
package result

import "fmt"

// Category is the coarse three-way outcome of a test.
type Category int

const (
	OK Category = iota + 1
	Fail
	Skip
)

var categoryNames = map[Category]string{
	OK:   "ok",
	Fail: "fail",
	Skip: "skip",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText encodes the category as its lower-case name.
func (c Category) MarshalText() ([]byte, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a category name produced by MarshalText.
func (c *Category) UnmarshalText(text []byte) error {
	cat, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = cat
	return nil
}

// ParseCategory converts a category name back to a Category.
func ParseCategory(name string) (Category, error) {
	for cat, n := range categoryNames {
		if n == name {
			return cat, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// Record is the outcome of a single test case. Records are built once by a
// parser and never modified.
type Record struct {
	Category  Category `json:"category"`
	Status    string   `json:"status"`
	Name      string   `json:"name"`
	Message   string   `json:"message"`
	Time      float64  `json:"time"`
	ExtraText string   `json:"extra_text"`
}

// FormatMessage combines a failure type and message into the one-line
// summary shown next to a test. An absent message and an empty message are
// treated the same.
func FormatMessage(typ, message string) string {
	switch {
	case typ != "" && message != "":
		return typ + ": " + message
	case typ != "":
		return typ
	default:
		return message
	}
}

// Summary counts records per category.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summarize tallies the records of one run.
func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.Category {
		case OK:
			s.Passed++
		case Fail:
			s.Failed++
		case Skip:
			s.Skipped++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped out of %d", s.Passed, s.Failed, s.Skipped, s.Total)
}
