// Package archive packages failed test output into size-bounded zip
// archives under the run-wide budget.
package archive

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/runforge/runreport/internal/artifact"
	"github.com/runforge/runreport/internal/budget"
	"github.com/runforge/runreport/internal/outcome"
	"github.com/runforge/runreport/internal/store"
)

// Status is the terminal state of one archive task.
type Status string

const (
	StatusArchived       Status = "archived"
	StatusSkippedNoFiles Status = "skipped-no-files"
	StatusSkippedBudget  Status = "skipped-budget"
	StatusSkippedError   Status = "skipped-error"
)

// SkippedFilesManifest is the in-zip entry listing files omitted from an
// incomplete archive, so consumers can tell incomplete from corrupt.
const SkippedFilesManifest = "__runreport_skipped_files.txt"

// SkippedTestsManifest lists test identifiers that were not archived at all.
const SkippedTestsManifest = "skipped_artifacts.txt"

type Options struct {
	// Include/Exclude filter each file by its project-relative path with
	// forward slashes. Exclude wins over Include.
	Include *regexp.Regexp
	Exclude *regexp.Regexp
	// PrimaryLog is ordered first within its directory.
	PrimaryLog string
	// ProjectRoot anchors the filter-relative paths; the task's output dir
	// is used when empty.
	ProjectRoot string
	// Predicate decides archive eligibility; default is the failing set.
	Predicate func(outcome.Outcome) bool

	Publisher artifact.Publisher
	Logger    *zap.Logger
}

type Result struct {
	Status       Status
	ArchivePath  string
	FilesWritten int
	// FilesSkipped holds archive-relative paths omitted by filters or
	// budget. Zero-byte files are not recorded; they are expected
	// transient artifacts.
	FilesSkipped []string
	Bytes        int64
}

type Archiver struct {
	destDir string
	budget  *budget.Budget
	opts    Options
	created int
}

func New(destDir string, b *budget.Budget, opts Options) *Archiver {
	if opts.PrimaryLog == "" {
		opts.PrimaryLog = "run.log"
	}
	if opts.Publisher == nil {
		opts.Publisher = artifact.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Archiver{destDir: destDir, budget: b, opts: opts}
}

// ShouldArchive reports whether the outcome qualifies for archiving.
func (a *Archiver) ShouldArchive(o outcome.Outcome) bool {
	if a.opts.Predicate != nil {
		return a.opts.Predicate(o)
	}
	return o.Kind.Failing()
}

// Created is the number of archives written so far.
func (a *Archiver) Created() int { return a.created }

func (a *Archiver) DestDir() string { return a.destDir }

type candidate struct {
	abs  string
	rel  string // archive member path, forward slashes
	size int64
}

// ArchiveOne walks the task's output directory and writes the admitted files
// into <destDir>/<task name>.zip. Budget-exhaustion and filter exclusions
// are recorded skips, not errors; only unexpected I/O failures return a
// non-nil error, after bookkeeping.
func (a *Archiver) ArchiveOne(task Task) (Result, error) {
	if !a.budget.Admit() {
		a.opts.Logger.Debug("archive budget exhausted",
			zap.String("testId", task.TestID), zap.Int("cycle", task.Cycle))
		return Result{Status: StatusSkippedBudget}, nil
	}

	cands, err := a.collect(task.OutputDir)
	if err != nil {
		return Result{Status: StatusSkippedError}, fmt.Errorf("walk %s: %w", task.OutputDir, err)
	}

	if err := os.MkdirAll(a.destDir, 0o755); err != nil {
		return Result{Status: StatusSkippedError}, err
	}
	zipPath := filepath.Join(a.destDir, task.Name()+".zip")

	res, err := a.writeArchive(zipPath, cands)
	if err != nil {
		// Don't leave a truncated zip behind.
		_ = os.Remove(zipPath)
		res.Status = StatusSkippedError
		return res, err
	}
	if res.FilesWritten == 0 {
		// Archives must never be empty.
		_ = os.Remove(zipPath)
		res.Status = StatusSkippedNoFiles
		res.ArchivePath = ""
		return res, nil
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return res, err
	}
	res.Bytes = info.Size()
	res.Status = StatusArchived
	res.ArchivePath = zipPath
	a.budget.Charge(res.Bytes)
	a.created++
	a.opts.Publisher.Publish(zipPath, artifact.CategoryArchive)
	a.opts.Logger.Info("archived test output",
		zap.String("testId", task.TestID),
		zap.String("path", zipPath),
		zap.Int("files", res.FilesWritten),
		zap.Int64("bytes", res.Bytes))
	return res, nil
}

// collect gathers regular files under root in deterministic order: by
// directory, the primary log first within its directory, then lexicographic.
func (a *Archiver) collect(root string) ([]candidate, error) {
	var out []candidate
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, candidate{
			abs:  p,
			rel:  filepath.ToSlash(rel),
			size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	primary := a.opts.PrimaryLog
	sort.Slice(out, func(i, j int) bool {
		di, dj := path.Dir(out[i].rel), path.Dir(out[j].rel)
		if di != dj {
			return di < dj
		}
		bi, bj := path.Base(out[i].rel), path.Base(out[j].rel)
		if (bi == primary) != (bj == primary) {
			return bi == primary
		}
		return bi < bj
	})
	return out, nil
}

// filterRel is the path the include/exclude patterns see: relative to
// ProjectRoot when one is set, otherwise the file's path under the task's
// output dir. Patterns must never see absolute host paths; anchored
// expressions would silently stop matching.
func (a *Archiver) filterRel(c candidate) string {
	root := a.opts.ProjectRoot
	if root == "" {
		return c.rel
	}
	if rel, err := filepath.Rel(root, c.abs); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return c.rel
}

func (a *Archiver) writeArchive(zipPath string, cands []candidate) (Result, error) {
	var res Result

	f, err := os.Create(zipPath)
	if err != nil {
		return res, err
	}
	zw := zip.NewWriter(f)
	closed := false
	defer func() {
		if !closed {
			_ = zw.Close()
			_ = f.Close()
		}
	}()

	remaining := a.budget.PerArchiveCap()
	triedOversize := false

	for _, c := range cands {
		if c.size == 0 {
			continue
		}
		frel := a.filterRel(c)
		if a.opts.Exclude != nil && a.opts.Exclude.MatchString(frel) {
			res.FilesSkipped = append(res.FilesSkipped, c.rel)
			continue
		}
		if a.opts.Include != nil && !a.opts.Include.MatchString(frel) {
			res.FilesSkipped = append(res.FilesSkipped, c.rel)
			continue
		}
		if remaining < budget.MinUsefulBytes {
			res.FilesSkipped = append(res.FilesSkipped, c.rel)
			continue
		}

		charge := c.size
		if c.size > remaining {
			// The compressed size may still fit. The trial is expensive, so
			// once it has failed for this archive every later over-size file
			// is skipped without checking.
			if triedOversize {
				res.FilesSkipped = append(res.FilesSkipped, c.rel)
				continue
			}
			csize, err := compressedSize(c.abs)
			if err != nil {
				return res, err
			}
			if csize > remaining {
				triedOversize = true
				res.FilesSkipped = append(res.FilesSkipped, c.rel)
				continue
			}
			charge = csize
		}

		if err := writeMember(zw, c.abs, c.rel); err != nil {
			return res, err
		}
		res.FilesWritten++
		remaining -= charge
	}

	// When the caller asked for specific files only, an incomplete archive
	// is intentional and needs no manifest.
	if len(res.FilesSkipped) > 0 && a.opts.Include == nil && res.FilesWritten > 0 {
		w, err := zw.Create(SkippedFilesManifest)
		if err != nil {
			return res, err
		}
		manifest := "Files skipped from this archive due to filters or size budget:\n" +
			strings.Join(res.FilesSkipped, "\n") + "\n"
		if _, err := io.WriteString(w, manifest); err != nil {
			return res, err
		}
	}

	closed = true
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return res, err
	}
	if err := f.Close(); err != nil {
		return res, err
	}
	return res, nil
}

func writeMember(zw *zip.Writer, abs, rel string) error {
	src, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

type countWriter struct{ n int64 }

func (c *countWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// compressedSize runs the file through deflate at the default level and
// reports the output byte count. No scratch archive touches the disk.
func compressedSize(abs string) (int64, error) {
	f, err := os.Open(abs)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	var cw countWriter
	fw, err := flate.NewWriter(&cw, flate.DefaultCompression)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		_ = fw.Close()
		return 0, err
	}
	if err := fw.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// WriteSkippedTests writes the run-level manifest of test identifiers that
// ended without an archive, one per line.
func WriteSkippedTests(destDir string, testIDs []string) error {
	if len(testIDs) == 0 {
		return nil
	}
	body := strings.Join(testIDs, "\n") + "\n"
	return store.WriteFileAtomic(filepath.Join(destDir, SkippedTestsManifest), []byte(body))
}
