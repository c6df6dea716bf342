package archive

import (
	"fmt"
	"sort"

	"github.com/runforge/runreport/internal/ids"
)

// Task is one pending archive of a test's output directory.
type Task struct {
	TestID    string
	Cycle     int
	Cycles    int
	OutputDir string
}

// Name is the archive base name: the sanitized test id, cycle-qualified when
// the run has more than one cycle.
func (t Task) Name() string {
	base := ids.SanitizeComponent(t.TestID)
	if base == "" {
		base = "test"
	}
	if t.Cycles > 1 {
		return fmt.Sprintf("%s.cycle%03d", base, t.Cycle+1)
	}
	return base
}

// OrderKey is the stable end-of-run drain key. Hash order, not insertion or
// alphabetical order, so early-sorting failures don't always win the budget.
func (t Task) OrderKey() string {
	return ids.OrderKey(t.TestID, t.Cycle)
}

// SortTasks orders tasks by OrderKey in place.
func SortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].OrderKey() < tasks[j].OrderKey()
	})
}
