// Package outcome defines the closed set of test result kinds and the
// per-execution Outcome record the reporting pipeline consumes.
package outcome

import (
	"fmt"
	"strings"
)

// Kind is one test result category. The numeric order is the precedence
// order used for summary grouping: later values are more severe.
type Kind int

const (
	Skipped Kind = iota
	Passed
	NotVerified
	Inspect
	Blocked
	TimedOut
	Failed
)

var kindLabels = map[Kind]string{
	Skipped:     "SKIPPED",
	Passed:      "PASSED",
	NotVerified: "NOT VERIFIED",
	Inspect:     "INSPECT",
	Blocked:     "BLOCKED",
	TimedOut:    "TIMED OUT",
	Failed:      "FAILED",
}

// Kinds returns every kind in precedence order.
func Kinds() []Kind {
	return []Kind{Skipped, Passed, NotVerified, Inspect, Blocked, TimedOut, Failed}
}

// FailingKinds returns the kinds that count as failures, in precedence order.
// These drive archiving and annotation eligibility.
func FailingKinds() []Kind {
	return []Kind{Blocked, TimedOut, Failed}
}

func (k Kind) String() string {
	if s, ok := kindLabels[k]; ok {
		return s
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// Failing reports whether the kind is in the failing set.
func (k Kind) Failing() bool {
	return k == Blocked || k == TimedOut || k == Failed
}

// ParseKind maps a label back to its Kind. Matching is case-insensitive and
// tolerates the space/underscore variants seen in recorded outcome files.
func ParseKind(s string) (Kind, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", " ")
	for k, label := range kindLabels {
		if v == label {
			return k, nil
		}
	}
	return Skipped, fmt.Errorf("unknown outcome kind %q", s)
}

// MarshalText implements encoding.TextMarshaler so Kind round-trips through
// the JSONL replay format as its label rather than a bare integer.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Outcome is one finished test execution. Immutable once recorded: the
// ledger and archiver only ever read it.
type Outcome struct {
	TestID       string  `json:"testId"`
	Cycle        int     `json:"cycle"`
	Kind         Kind    `json:"outcome"`
	Reason       string  `json:"reason,omitempty"`
	OutputDir    string  `json:"outputDir,omitempty"`
	TestDir      string  `json:"testDir,omitempty"`
	DurationSecs float64 `json:"durationSecs,omitempty"`
	RunLog       string  `json:"runLog,omitempty"`
}
