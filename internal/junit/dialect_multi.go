package junit

import (
	"strings"

	"github.com/lucasnoah/testbridge/internal/result"
)

const (
	stdoutHeading = "Captured stdout"
	stderrHeading = "Captured stderr"
)

// multiOutcome reads a nose testcase, where outcome and captured-stream
// children are siblings. Every child contributes a block to the extra text
// in document order.
func multiOutcome(tc *element) outcome {
	o := outcome{status: statusOK}
	var blocks []string

	for i := range tc.Children {
		child := &tc.Children[i]
		tag := child.XMLName.Local
		switch {
		case isOutcomeTag(tag):
			o.status = tag
			o.message = result.FormatMessage(child.attr("type"), child.attr("message"))
			if child.Text != "" {
				blocks = append(blocks, child.Text)
			}
		case tag == "system-out":
			blocks = append(blocks, streamBlock(stdoutHeading, child.Text))
		case tag == "system-err":
			blocks = append(blocks, streamBlock(stderrHeading, child.Text))
		}
	}

	o.extraText = strings.Join(blocks, "\n\n")
	return o
}

func streamBlock(heading, text string) string {
	return "----- " + heading + " -----\n" + strings.TrimRight(text, "\n")
}
