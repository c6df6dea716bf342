// Package ledger accumulates per-test outcomes across cycles and renders the
// deterministic end-of-run summary.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/runforge/runreport/internal/outcome"
)

type key struct {
	testID string
	cycle  int
}

// Ledger holds at most one Outcome per (testId, cycle). Recording a
// duplicate replaces the earlier entry so replays are idempotent.
type Ledger struct {
	cycles   int
	results  map[int]map[outcome.Kind][]outcome.Outcome
	index    map[key]outcome.Kind
	duration float64
}

func New(cycles int) *Ledger {
	if cycles < 1 {
		cycles = 1
	}
	l := &Ledger{
		cycles:  cycles,
		results: make(map[int]map[outcome.Kind][]outcome.Outcome, cycles),
		index:   make(map[key]outcome.Kind),
	}
	for c := 0; c < cycles; c++ {
		l.results[c] = make(map[outcome.Kind][]outcome.Outcome)
	}
	return l
}

func (l *Ledger) Cycles() int { return l.cycles }

func (l *Ledger) Record(o outcome.Outcome) {
	bucket, ok := l.results[o.Cycle]
	if !ok {
		bucket = make(map[outcome.Kind][]outcome.Outcome)
		l.results[o.Cycle] = bucket
		if o.Cycle >= l.cycles {
			l.cycles = o.Cycle + 1
		}
	}
	k := key{testID: o.TestID, cycle: o.Cycle}
	if prev, seen := l.index[k]; seen {
		// Replace in place; keep the bucket ordering stable for the rest
		// and give back the replaced entry's duration.
		list := bucket[prev]
		for i := range list {
			if list[i].TestID == o.TestID {
				l.duration -= list[i].DurationSecs
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		bucket[prev] = list
	}
	bucket[o.Kind] = append(bucket[o.Kind], o)
	l.index[k] = o.Kind
	l.duration += o.DurationSecs
}

// Executed is the number of recorded (testId, cycle) pairs.
func (l *Ledger) Executed() int { return len(l.index) }

func (l *Ledger) FailedCount() int {
	n := 0
	for _, k := range l.index {
		if k.Failing() {
			n++
		}
	}
	return n
}

// Duration is the summed elapsed seconds across all recorded outcomes.
func (l *Ledger) Duration() float64 { return l.duration }

// Failing returns every failing outcome in deterministic order: cycle, then
// failing kind precedence, then record order within the bucket.
func (l *Ledger) Failing() []outcome.Outcome {
	var out []outcome.Outcome
	for c := 0; c < l.cycles; c++ {
		bucket := l.results[c]
		for _, k := range outcome.FailingKinds() {
			out = append(out, bucket[k]...)
		}
	}
	return out
}

// SummaryLines renders the run summary. Output is a pure function of the
// recorded outcomes and workdir, so it can be snapshot-tested byte for byte.
// Directories are shown relative to workdir when possible.
func (l *Ledger) SummaryLines(workdir string) []string {
	executed := l.Executed()
	failed := l.FailedCount()
	pct := 0.0
	if executed > 0 {
		pct = float64(failed) / float64(executed) * 100
	}

	lines := []string{
		fmt.Sprintf("Summary of failures (%d of %d tests failed, %.1f%%):", failed, executed, pct),
	}
	if failed == 0 {
		lines = append(lines, "	THERE WERE NO FAILURES")
		return lines
	}

	for _, o := range l.Failing() {
		cyclestr := ""
		if l.cycles > 1 {
			cyclestr = fmt.Sprintf("[CYCLE %d] ", o.Cycle+1)
		}
		lines = append(lines, fmt.Sprintf("  %s%s: %s", cyclestr, o.Kind, o.TestID))
		if o.OutputDir != "" {
			lines = append(lines, "      "+relPath(workdir, o.OutputDir))
		}
		if o.Reason != "" {
			lines = append(lines, "      "+o.Reason)
		}
	}
	return lines
}

func relPath(workdir, p string) string {
	if workdir == "" {
		if wd, err := os.Getwd(); err == nil {
			workdir = wd
		}
	}
	if rel, err := filepath.Rel(workdir, p); err == nil {
		return filepath.Clean(rel)
	}
	return filepath.Clean(p)
}
