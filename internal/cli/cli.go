// Package cli implements the runreport command line surface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

type Runner struct {
	Version string
	Now     func() time.Time
	Stdout  io.Writer
	Stderr  io.Writer
	Getenv  func(string) string
}

func (r Runner) Run(args []string) int {
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Getenv == nil {
		r.Getenv = os.Getenv
	}

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printRootHelp(r.Stdout)
		return 0
	}

	switch args[0] {
	case "report":
		return r.runReport(args[1:])
	case "version":
		fmt.Fprintf(r.Stdout, "%s\n", r.Version)
		return 0
	default:
		fmt.Fprintf(r.Stderr, "RR_E_USAGE: unknown command %q\n", args[0])
		printRootHelp(r.Stderr)
		return 2
	}
}

func (r Runner) writeJSON(v any) int {
	enc := json.NewEncoder(r.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(r.Stderr, "RR_E_IO: failed to encode json\n")
		return 1
	}
	return 0
}

func (r Runner) failUsage(msg string) int {
	fmt.Fprintf(r.Stderr, "RR_E_USAGE: %s\n", msg)
	return 2
}

func printRootHelp(w io.Writer) {
	fmt.Fprint(w, `runreport

Usage:
  runreport report --outcomes <outcomes.jsonl> [--config <path>] [--cycles N] [--json]

Commands:
  report    Replay a recorded outcome stream: archive failed test output and emit CI annotations.
  version   Print version.
`)
}

func printReportHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  runreport report --outcomes <outcomes.jsonl> [--config runreport.config.yaml] [--cycles 1] [--workdir DIR] [--verbose] [--json]
`)
}
