package classifier

import (
	"fmt"
	"strings"
)

// Label is one of the two classes the binary model distinguishes. The set is
// fixed at compile time; the label file shipped with the model artifact is
// only validated against it, never trusted to define new classes.
type Label string

const (
	LabelMalicious Label = "malicious"
	LabelBenign    Label = "benign"
)

// expectedLabels is the required order: index 0 is the positive class.
var expectedLabels = []Label{LabelMalicious, LabelBenign}

// ValidateLabels checks a label file's contents against the expected
// cardinality and order. Fails fast on any mismatch so an incompatible model
// package is caught at startup, not at inference time.
func ValidateLabels(data []byte) error {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) != len(expectedLabels) {
		return fmt.Errorf("label file has %d entries, want %d", len(lines), len(expectedLabels))
	}
	for i, want := range expectedLabels {
		if !strings.EqualFold(lines[i], string(want)) {
			return fmt.Errorf("label %d is %q, want %q", i, lines[i], want)
		}
	}
	return nil
}
