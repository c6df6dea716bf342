package reporter

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runforge/runreport/internal/annotate"
	"github.com/runforge/runreport/internal/archive"
	"github.com/runforge/runreport/internal/artifact"
	"github.com/runforge/runreport/internal/config"
	"github.com/runforge/runreport/internal/outcome"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ArchiveDir = filepath.Join(t.TempDir(), "archives")
	require.NoError(t, cfg.Validate())
	return cfg
}

func ciEmitter(buf *strings.Builder, enabled bool) *annotate.Emitter {
	e := annotate.NewEmitter(buf, annotate.Config{
		MaxAnnotations:     10,
		FailureAnnotations: true,
		SummaryAnnotation:  true,
		ConfigPath:         "runreport.config.yaml",
	}, nil)
	e.SetGetenv(func(key string) string {
		if enabled && key == "GITHUB_ACTIONS" {
			return "true"
		}
		return ""
	})
	return e
}

func failedOutcome(t *testing.T, id string) outcome.Outcome {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.log"), []byte("log for "+id+"\n"), 0o644))
	return outcome.Outcome{TestID: id, Kind: outcome.Failed, Reason: "broke", OutputDir: dir, RunLog: "captured " + id}
}

func TestEndToEndWithArchiveCountLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxArchives = 2
	require.NoError(t, cfg.Validate())

	var buf strings.Builder
	rep := New(cfg, Deps{Emitter: ciEmitter(&buf, true), Workdir: "/"})
	require.NoError(t, rep.Setup(1, 4))

	fails := []outcome.Outcome{
		failedOutcome(t, "t_fail_a"),
		failedOutcome(t, "t_fail_b"),
		failedOutcome(t, "t_fail_c"),
	}
	for _, o := range fails {
		require.NoError(t, rep.OnTestComplete(o))
	}
	require.NoError(t, rep.OnTestComplete(outcome.Outcome{TestID: "t_pass_1", Kind: outcome.Passed}))
	require.NoError(t, rep.OnTestComplete(outcome.Outcome{TestID: "t_pass_2", Kind: outcome.Passed}))

	require.NoError(t, rep.OnRunComplete())
	require.Equal(t, Closed, rep.State())

	// Exactly maxArchives zips; the third failing test lands in the
	// skipped manifest.
	entries, err := os.ReadDir(cfg.ArchiveDir)
	require.NoError(t, err)
	var zips []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".zip" {
			zips = append(zips, e.Name())
		}
	}
	require.Len(t, zips, 2)
	require.Equal(t, 2, rep.ArchivesCreated())

	manifest, err := os.ReadFile(filepath.Join(cfg.ArchiveDir, archive.SkippedTestsManifest))
	require.NoError(t, err)
	require.Len(t, rep.SkippedTests(), 1)
	require.Equal(t, rep.SkippedTests()[0]+"\n", string(manifest))

	// Drain happens in stable hash order, so the skipped test is the one
	// with the highest order key.
	tasks := []archive.Task{
		{TestID: "t_fail_a"}, {TestID: "t_fail_b"}, {TestID: "t_fail_c"},
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].OrderKey() < tasks[j].OrderKey() })
	require.Equal(t, tasks[2].TestID, rep.SkippedTests()[0])

	// Annotations: three queued failures plus one summary.
	out := buf.String()
	require.Equal(t, 4, strings.Count(out, "::error"))
	require.Contains(t, out, "file=runreport.config.yaml")

	// Archive directory published since at least one archive exists.
	require.Equal(t, []string{cfg.ArchiveDir}, rep.Artifacts().Paths(artifact.CategoryArchiveDir))
	require.Len(t, rep.Artifacts().Paths(artifact.CategoryArchive), 2)
}

func TestImmediateModeArchivesDuringRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.ArchiveAtEndOfRun = false
	require.NoError(t, cfg.Validate())

	rep := New(cfg, Deps{Emitter: ciEmitter(&strings.Builder{}, false)})
	require.NoError(t, rep.Setup(1, 1))
	require.NoError(t, rep.OnTestComplete(failedOutcome(t, "t1")))

	require.Equal(t, 1, rep.ArchivesCreated())
	entries, err := os.ReadDir(cfg.ArchiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, rep.OnRunComplete())
}

func TestCIDisabledStillArchives(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	var buf strings.Builder
	rep := New(cfg, Deps{Emitter: ciEmitter(&buf, false)})
	require.NoError(t, rep.Setup(1, 1))
	require.NoError(t, rep.OnTestComplete(failedOutcome(t, "t1")))
	require.NoError(t, rep.OnRunComplete())

	require.Zero(t, buf.Len(), "no CI host, no command bytes")
	require.Equal(t, 1, rep.ArchivesCreated())
	require.Equal(t, 1, rep.Ledger().FailedCount())
}

func TestSetupRefusesUnrelatedArchiveDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.ArchiveDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ArchiveDir, "notes.md"), []byte("keep me"), 0o644))

	rep := New(cfg, Deps{})
	err := rep.Setup(1, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "refusing")

	// The unrelated file survives.
	_, statErr := os.Stat(filepath.Join(cfg.ArchiveDir, "notes.md"))
	require.NoError(t, statErr)
}

func TestSetupClearsPriorRunArtifacts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.ArchiveDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ArchiveDir, "old-test.zip"), []byte("zip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ArchiveDir, archive.SkippedTestsManifest), []byte("t9\n"), 0o644))

	rep := New(cfg, Deps{})
	require.NoError(t, rep.Setup(1, 1))

	entries, err := os.ReadDir(cfg.ArchiveDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLifecycleStateErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	rep := New(cfg, Deps{})

	err := rep.OnTestComplete(outcome.Outcome{TestID: "t1", Kind: outcome.Passed})
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, rep.Setup(1, 1))
	require.ErrorIs(t, rep.Setup(1, 1), ErrInvalidState)

	require.NoError(t, rep.OnRunComplete())
	require.ErrorIs(t, rep.OnRunComplete(), ErrInvalidState)
	require.ErrorIs(t, rep.OnTestComplete(outcome.Outcome{TestID: "t1"}), ErrInvalidState)
}

func TestSetupFailsFastOnBadConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Include = "["
	rep := New(cfg, Deps{})
	require.Error(t, rep.Setup(1, 1))
}

func TestOnRunCompleteReturnsFirstArchiveError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	rep := New(cfg, Deps{Emitter: ciEmitter(&strings.Builder{}, false)})
	require.NoError(t, rep.Setup(1, 1))

	o := failedOutcome(t, "t1")
	require.NoError(t, rep.OnTestComplete(o))
	// Break the output dir between completion and drain.
	require.NoError(t, os.RemoveAll(o.OutputDir))

	err := rep.OnRunComplete()
	require.Error(t, err)
	require.Equal(t, Closed, rep.State(), "reporter still closes after archiving errors")
	require.Equal(t, []string{"t1"}, rep.SkippedTests())

	var pathErr *os.PathError
	require.True(t, errors.As(err, &pathErr))
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	out := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(b)
	}
	return out
}

func TestAnchoredExcludeAppliedInDefaultWiring(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Exclude = `^core\.tmp$`
	require.NoError(t, cfg.Validate())

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "run.log"), []byte("log\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "core.tmp"), []byte("scratch\n"), 0o644))

	rep := New(cfg, Deps{Emitter: ciEmitter(&strings.Builder{}, false)})
	require.NoError(t, rep.Setup(1, 1))
	require.NoError(t, rep.OnTestComplete(outcome.Outcome{
		TestID: "t_excl", Kind: outcome.Failed, OutputDir: outDir,
	}))
	require.NoError(t, rep.OnRunComplete())

	entries, err := os.ReadDir(cfg.ArchiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	members := readArchive(t, filepath.Join(cfg.ArchiveDir, entries[0].Name()))
	require.NotContains(t, members, "core.tmp")
	require.Contains(t, members, "run.log")
}
