// Package budget tracks the run-wide archive byte and count budgets.
//
// Admit answers "may I try?", Charge records "I actually used N bytes". The
// split lets the archiver do a trial compression before committing budget.
package budget

// MinUsefulBytes is the floor below which attempting another archive (or
// another file within one) is pointless.
const MinUsefulBytes = 500

type Budget struct {
	totalRemaining    int64
	perArchiveCap     int64
	archivesRemaining int
}

func New(totalBytes, perArchiveBytes int64, maxArchives int) *Budget {
	if perArchiveBytes > totalBytes {
		perArchiveBytes = totalBytes
	}
	return &Budget{
		totalRemaining:    totalBytes,
		perArchiveCap:     perArchiveBytes,
		archivesRemaining: maxArchives,
	}
}

// Admit reports whether a new archive may be started. It does not mutate any
// counter.
func (b *Budget) Admit() bool {
	return b.archivesRemaining > 0 && b.totalRemaining >= MinUsefulBytes
}

// Charge records one created archive of the given final size. Counters clamp
// at zero rather than going negative: the last admitted archive is checked
// before finalizing, not continuously.
func (b *Budget) Charge(bytes int64) {
	b.totalRemaining -= bytes
	if b.totalRemaining < 0 {
		b.totalRemaining = 0
	}
	if b.archivesRemaining > 0 {
		b.archivesRemaining--
	}
}

func (b *Budget) PerArchiveCap() int64 {
	if b.perArchiveCap > b.totalRemaining {
		return b.totalRemaining
	}
	return b.perArchiveCap
}

func (b *Budget) TotalRemaining() int64 { return b.totalRemaining }

func (b *Budget) ArchivesRemaining() int { return b.archivesRemaining }

func (b *Budget) Exhausted() bool { return !b.Admit() }
