// Package annotate emits GitHub Actions workflow commands for failing tests.
//
// Annotations are queued while the run is in flight and flushed as one batch
// at run end inside a single log group; interleaving them with live test
// output would make both hard to read.
package annotate

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/runforge/runreport/internal/outcome"
	"github.com/runforge/runreport/internal/redact"
)

// reservedSlots is held back from the annotation budget: the CI host itself
// produces one annotation for a non-zero exit status, and the final summary
// annotation needs the other.
const reservedSlots = 2

// LimitReachedSuffix marks the last individually-annotated failure.
const LimitReachedSuffix = "\n(annotation limit reached; for any additional test failures, see the detailed log)"

var (
	reANSI = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	// Bracketed file:line marker in captured run logs, e.g. "[run.py:42]".
	reSourceLoc = regexp.MustCompile(`\[([^\s\[\]:]+):([0-9]+)\]`)
)

// StripANSI removes terminal color escape sequences.
func StripANSI(s string) string {
	return reANSI.ReplaceAllString(s, "")
}

type Config struct {
	// MaxAnnotations is the CI host's per-step annotation cap (10 for GitHub
	// Actions). reservedSlots of these are never used for per-failure
	// annotations.
	MaxAnnotations int
	// ConfigPath is attached to the summary annotation so the host can link
	// back to the project configuration.
	ConfigPath string
	// FailureAnnotations/SummaryAnnotation switch the two annotation types
	// independently.
	FailureAnnotations bool
	SummaryAnnotation  bool
}

type queued struct {
	params string
	value  string
}

// Emitter writes workflow commands to a single text stream (stdout in
// production). Inert unless the GITHUB_ACTIONS environment flag is set.
type Emitter struct {
	w      io.Writer
	cfg    Config
	log    *zap.Logger
	getenv func(string) string

	remaining   int
	queue       []queued
	summarySent bool
}

func NewEmitter(w io.Writer, cfg Config, logger *zap.Logger) *Emitter {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAnnotations <= 0 {
		cfg.MaxAnnotations = 10
	}
	return &Emitter{
		w:         w,
		cfg:       cfg,
		log:       logger,
		getenv:    os.Getenv,
		remaining: cfg.MaxAnnotations - reservedSlots,
	}
}

// SetGetenv overrides environment lookup. Tests use this to fake the CI host.
func (e *Emitter) SetGetenv(fn func(string) string) {
	if fn != nil {
		e.getenv = fn
	}
}

// Enabled reports whether the CI host is active. When false every method is
// a no-op and zero bytes reach the command channel.
func (e *Emitter) Enabled() bool {
	return e.getenv("GITHUB_ACTIONS") == "true"
}

// escape encodes reserved workflow-command tokens so a multi-line message
// renders as a single logical command.
func escape(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// command writes one `::cmd params::value` line. The value is scrubbed for
// credential shapes first; the job log is world-readable on public repos.
// Write failures are logged and swallowed: reporting is best-effort relative
// to the test results.
func (e *Emitter) command(cmd, params, value string) {
	scrubbed, applied := redact.Text(value)
	if len(applied.Names) > 0 {
		e.log.Warn("redacted credentials from annotation", zap.Strings("rules", applied.Names))
	}
	line := "::" + cmd
	if params != "" {
		line += " " + params
	}
	line += "::" + escape(scrubbed) + "\n"
	if _, err := io.WriteString(e.w, line); err != nil {
		e.log.Warn("annotation write failed", zap.String("cmd", cmd), zap.Error(err))
	}
}

// QueueFailure records one failing outcome for annotation at flush time,
// subject to the remaining annotation budget.
func (e *Emitter) QueueFailure(o outcome.Outcome) {
	if !e.Enabled() || !e.cfg.FailureAnnotations {
		return
	}
	if e.remaining <= 0 {
		return
	}
	e.remaining--

	msg := StripANSI(o.RunLog)
	if msg == "" {
		msg = fmt.Sprintf("%s: %s", o.Kind, o.TestID)
		if o.Reason != "" {
			msg += " - " + o.Reason
		}
	}
	if e.remaining == 0 {
		msg += LimitReachedSuffix
	}

	params := ""
	if o.TestDir != "" {
		params = "file=" + strings.ReplaceAll(o.TestDir, "\\", "/")
	}
	if m := reSourceLoc.FindStringSubmatch(msg); m != nil {
		if _, err := strconv.Atoi(m[2]); err == nil {
			if params != "" {
				params += ","
			}
			params += "line=" + m[2]
		}
	}
	e.queue = append(e.queue, queued{params: params, value: msg})
}

// QueuedFailures is the number of annotations waiting for Flush.
func (e *Emitter) QueuedFailures() int { return len(e.queue) }

// Flush writes the queued failure annotations inside one log group, then at
// most one summary annotation. Safe to call once per run; a second call only
// re-emits nothing (the queue is drained and the summary flag is sticky).
func (e *Emitter) Flush(summaryLines []string) {
	if !e.Enabled() {
		return
	}
	if len(e.queue) > 0 {
		e.command("group", "", "Test failure annotations")
		for _, q := range e.queue {
			e.command("error", q.params, q.value)
		}
		e.command("endgroup", "", "")
		e.queue = nil
	}
	if e.cfg.SummaryAnnotation && !e.summarySent && len(summaryLines) > 0 {
		e.summarySent = true
		params := ""
		if e.cfg.ConfigPath != "" {
			params = "file=" + strings.ReplaceAll(e.cfg.ConfigPath, "\\", "/")
		}
		e.command("error", params, strings.Join(summaryLines, "\n"))
	}
}
