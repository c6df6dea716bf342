package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/runforge/runreport/internal/annotate"
	"github.com/runforge/runreport/internal/config"
	"github.com/runforge/runreport/internal/logx"
	"github.com/runforge/runreport/internal/outcome"
	"github.com/runforge/runreport/internal/reporter"
	"github.com/runforge/runreport/internal/store"
)

type reportResult struct {
	OK              bool     `json:"ok"`
	Executed        int      `json:"executed"`
	Failed          int      `json:"failed"`
	ArchivesCreated int      `json:"archivesCreated"`
	SkippedTests    []string `json:"skippedTests,omitempty"`
	ArchiveDir      string   `json:"archiveDir"`
	CIEnabled       bool     `json:"ciEnabled"`
}

func (r Runner) runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // avoid flag package writing to stderr

	outcomesPath := fs.String("outcomes", "", "recorded outcomes jsonl (required)")
	configPath := fs.String("config", "", "config file (default runreport.config.yaml)")
	cycles := fs.Int("cycles", 0, "cycle count; inferred from the stream when 0")
	workdir := fs.String("workdir", "", "base dir for summary-relative paths")
	verbose := fs.Bool("verbose", false, "debug logging")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("report: invalid flags")
	}
	if *help {
		printReportHelp(r.Stdout)
		return 0
	}
	if strings.TrimSpace(*outcomesPath) == "" {
		printReportHelp(r.Stderr)
		return r.failUsage("report: --outcomes is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "RR_E_CONFIG: %s\n", err.Error())
		return 2
	}
	if err := cfg.ApplyEnv(r.Getenv); err != nil {
		fmt.Fprintf(r.Stderr, "RR_E_CONFIG: %s\n", err.Error())
		return 2
	}

	outcomes, err := readOutcomes(*outcomesPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "RR_E_IO: %s\n", err.Error())
		return 1
	}

	runCycles := *cycles
	if runCycles < 1 {
		runCycles = inferCycles(outcomes)
	}

	logger, err := logx.New(*verbose)
	if err != nil {
		fmt.Fprintf(r.Stderr, "RR_E_IO: %s\n", err.Error())
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// Workflow commands share stdout with the plain summary; the emitter
	// stays silent unless the CI host env flag is present.
	em := annotate.NewEmitter(r.Stdout, annotate.Config{
		MaxAnnotations:     cfg.MaxAnnotations,
		ConfigPath:         cfg.ConfigPath,
		FailureAnnotations: cfg.FailureAnnotations,
		SummaryAnnotation:  cfg.SummaryAnnotation,
	}, logger)
	em.SetGetenv(r.Getenv)

	rep := reporter.New(cfg, reporter.Deps{Logger: logger, Workdir: *workdir, Emitter: em})
	if err := rep.Setup(runCycles, 1); err != nil {
		fmt.Fprintf(r.Stderr, "RR_E_CONFIG: %s\n", err.Error())
		return 2
	}

	exit := 0
	for _, o := range outcomes {
		if err := rep.OnTestComplete(o); err != nil {
			fmt.Fprintf(r.Stderr, "RR_E_ARCHIVE: %s: %s\n", o.TestID, err.Error())
			exit = 1
		}
	}
	if err := rep.OnRunComplete(); err != nil {
		fmt.Fprintf(r.Stderr, "RR_E_ARCHIVE: %s\n", err.Error())
		exit = 1
	}

	if *jsonOut {
		res := reportResult{
			OK:              exit == 0,
			Executed:        rep.Ledger().Executed(),
			Failed:          rep.Ledger().FailedCount(),
			ArchivesCreated: rep.ArchivesCreated(),
			SkippedTests:    rep.SkippedTests(),
			ArchiveDir:      cfg.ArchiveDir,
		}
		res.CIEnabled = r.Getenv("GITHUB_ACTIONS") == "true"
		if code := r.writeJSON(res); code != 0 {
			return code
		}
		return exit
	}

	for _, line := range rep.SummaryLines() {
		fmt.Fprintln(r.Stdout, line)
	}
	return exit
}

func readOutcomes(path string) ([]outcome.Outcome, error) {
	var out []outcome.Outcome
	err := store.ScanJSONL(path, 4*1024*1024, func(line []byte) error {
		var o outcome.Outcome
		if err := json.Unmarshal(line, &o); err != nil {
			return fmt.Errorf("invalid outcome line: %w", err)
		}
		if strings.TrimSpace(o.TestID) == "" {
			return fmt.Errorf("outcome line missing testId")
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func inferCycles(outcomes []outcome.Outcome) int {
	max := 0
	for _, o := range outcomes {
		if o.Cycle > max {
			max = o.Cycle
		}
	}
	return max + 1
}
