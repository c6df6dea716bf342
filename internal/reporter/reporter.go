// Package reporter wires the ledger, budgeter, archiver, annotation emitter
// and artifact registry into one per-run orchestrator.
//
// All calls are made from the surrounding engine's single run-controller
// goroutine; the reporter performs no internal locking.
package reporter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/runforge/runreport/internal/annotate"
	"github.com/runforge/runreport/internal/archive"
	"github.com/runforge/runreport/internal/artifact"
	"github.com/runforge/runreport/internal/budget"
	"github.com/runforge/runreport/internal/config"
	"github.com/runforge/runreport/internal/ledger"
	"github.com/runforge/runreport/internal/outcome"
	"github.com/runforge/runreport/internal/store"
)

// ErrInvalidState is returned when a lifecycle method is called out of
// order.
var ErrInvalidState = errors.New("reporter: invalid state for operation")

type State int

const (
	Idle State = iota
	SetupDone
	Running
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SetupDone:
		return "setup-done"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Deps are optional collaborator overrides; nil fields get defaults built
// from the config at Setup.
type Deps struct {
	Budget    *budget.Budget
	Archiver  *archive.Archiver
	Emitter   *annotate.Emitter
	Publisher artifact.Publisher
	Logger    *zap.Logger
	// Workdir anchors the summary's relative paths; defaults to the process
	// working directory.
	Workdir string
}

type Reporter struct {
	cfg   config.Config
	deps  Deps
	log   *zap.Logger
	state State

	cycles   int
	ledger   *ledger.Ledger
	budget   *budget.Budget
	archiver *archive.Archiver
	emitter  *annotate.Emitter
	pub      artifact.Publisher
	registry *artifact.Registry

	queue        []archive.Task
	skippedTests []string
}

func New(cfg config.Config, deps Deps) *Reporter {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{cfg: cfg, deps: deps, log: log, state: Idle}
}

// Setup validates the destination, builds the per-run collaborators and
// clears prior artifacts. Valid once, from Idle.
func (r *Reporter) Setup(cycles, threads int) error {
	if r.state != Idle {
		return fmt.Errorf("%w: Setup in %s", ErrInvalidState, r.state)
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	if cycles < 1 {
		cycles = 1
	}
	r.cycles = cycles
	r.ledger = ledger.New(cycles)

	r.budget = r.deps.Budget
	if r.budget == nil {
		r.budget = budget.New(r.cfg.MaxTotalBytes(), r.cfg.MaxArchiveBytes(), r.cfg.MaxArchives)
	}

	r.pub = r.deps.Publisher
	if r.pub == nil {
		r.registry = artifact.NewRegistry()
		r.pub = r.registry
	}

	if err := r.prepareArchiveDir(); err != nil {
		return err
	}

	r.archiver = r.deps.Archiver
	if r.archiver == nil {
		r.archiver = archive.New(r.cfg.ArchiveDir, r.budget, archive.Options{
			Include:     r.cfg.IncludeRe(),
			Exclude:     r.cfg.ExcludeRe(),
			PrimaryLog:  r.cfg.PrimaryLog,
			ProjectRoot: r.cfg.ProjectRoot,
			Publisher:   r.pub,
			Logger:      r.log,
		})
	}

	r.emitter = r.deps.Emitter
	if r.emitter == nil {
		r.emitter = annotate.NewEmitter(os.Stdout, annotate.Config{
			MaxAnnotations:     r.cfg.MaxAnnotations,
			ConfigPath:         r.cfg.ConfigPath,
			FailureAnnotations: r.cfg.FailureAnnotations,
			SummaryAnnotation:  r.cfg.SummaryAnnotation,
		}, r.log)
	}

	if free, err := store.DiskFree(r.cfg.ArchiveDir); err == nil && free < uint64(r.cfg.MaxTotalBytes()) {
		r.log.Warn("free space below configured archive budget",
			zap.Uint64("freeBytes", free),
			zap.Int64("budgetBytes", r.cfg.MaxTotalBytes()))
	}

	r.log.Debug("reporter ready",
		zap.Int("cycles", cycles),
		zap.Int("threads", threads),
		zap.String("archiveDir", r.cfg.ArchiveDir))
	r.state = SetupDone
	return nil
}

// prepareArchiveDir clears leftovers from a previous run, but refuses to
// touch a directory holding anything it does not recognize as a prior run
// artifact. That refusal is the safety net against a misconfigured path.
func (r *Reporter) prepareArchiveDir() error {
	dir := r.cfg.ArchiveDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isRunArtifact(e.Name()) {
			return fmt.Errorf("archive dir %s contains unrelated entry %q; refusing to clear it", dir, e.Name())
		}
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func isRunArtifact(name string) bool {
	return filepath.Ext(name) == ".zip" || name == archive.SkippedTestsManifest
}

// OnTestComplete records one finished (test, cycle) execution. The first
// call moves the reporter from SetupDone to Running.
func (r *Reporter) OnTestComplete(o outcome.Outcome) error {
	if r.state == SetupDone {
		r.state = Running
	}
	if r.state != Running {
		return fmt.Errorf("%w: OnTestComplete in %s", ErrInvalidState, r.state)
	}

	r.ledger.Record(o)
	if o.Kind.Failing() {
		r.emitter.QueueFailure(o)
	}

	if !r.archiver.ShouldArchive(o) || o.OutputDir == "" {
		return nil
	}
	task := archive.Task{TestID: o.TestID, Cycle: o.Cycle, Cycles: r.cycles, OutputDir: o.OutputDir}
	if r.cfg.ArchiveAtEndOfRun {
		r.queue = append(r.queue, task)
		return nil
	}
	return r.runTask(task)
}

func (r *Reporter) runTask(task archive.Task) error {
	res, err := r.archiver.ArchiveOne(task)
	switch res.Status {
	case archive.StatusSkippedBudget, archive.StatusSkippedError:
		r.skippedTests = append(r.skippedTests, task.TestID)
	}
	if err != nil {
		r.log.Error("archiving failed",
			zap.String("testId", task.TestID), zap.Error(err))
	}
	return err
}

// OnRunComplete drains deferred archiving in stable hash order, writes the
// skipped-tests manifest, flushes annotations and publishes the archive
// directory. The reporter ends Closed even when archiving failed; the first
// archiving error is returned so the run's exit status reflects it.
func (r *Reporter) OnRunComplete() error {
	if r.state != Running && r.state != SetupDone {
		return fmt.Errorf("%w: OnRunComplete in %s", ErrInvalidState, r.state)
	}
	r.state = Draining

	archive.SortTasks(r.queue)
	var firstErr error
	for _, task := range r.queue {
		if err := r.runTask(task); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.queue = nil

	// The archiver's destination, not the config's: a caller-supplied
	// archiver may write somewhere else.
	destDir := r.archiver.DestDir()
	if err := archive.WriteSkippedTests(destDir, r.skippedTests); err != nil {
		r.log.Error("writing skipped-tests manifest failed", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	r.state = Closed

	r.emitter.Flush(r.SummaryLines())
	if r.archiver.Created() > 0 {
		r.pub.Publish(destDir, artifact.CategoryArchiveDir)
	}
	r.log.Info("run reporting complete",
		zap.Int("executed", r.ledger.Executed()),
		zap.Int("failed", r.ledger.FailedCount()),
		zap.Int("archives", r.archiver.Created()),
		zap.Int("skippedTests", len(r.skippedTests)))
	return firstErr
}

// SummaryLines renders the ledger summary relative to the configured
// workdir.
func (r *Reporter) SummaryLines() []string {
	return r.ledger.SummaryLines(r.deps.Workdir)
}

func (r *Reporter) State() State { return r.state }

func (r *Reporter) Ledger() *ledger.Ledger { return r.ledger }

// Artifacts exposes the internally built registry; nil when the caller
// supplied its own publisher.
func (r *Reporter) Artifacts() *artifact.Registry { return r.registry }

// SkippedTests lists test identifiers that ended without an archive due to
// budget exhaustion or archiving errors.
func (r *Reporter) SkippedTests() []string {
	out := make([]string, len(r.skippedTests))
	copy(out, r.skippedTests)
	return out
}

// ArchivesCreated is the number of archives written this run.
func (r *Reporter) ArchivesCreated() int {
	if r.archiver == nil {
		return 0
	}
	return r.archiver.Created()
}
