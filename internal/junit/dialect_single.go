package junit

import "github.com/lucasnoah/testbridge/internal/result"

// singleOutcome reads a pytest testcase. Only the first outcome child
// counts; its text becomes the extra text verbatim.
func singleOutcome(tc *element) outcome {
	for i := range tc.Children {
		child := &tc.Children[i]
		if !isOutcomeTag(child.XMLName.Local) {
			continue
		}
		return outcome{
			status:    child.XMLName.Local,
			message:   result.FormatMessage(child.attr("type"), child.attr("message")),
			extraText: child.Text,
		}
	}
	return outcome{status: statusOK}
}
