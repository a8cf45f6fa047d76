package part

import (
	perrors "github.com/pulsardb/pulsar/pkg/errors"
)

// Granularity is the running plan of per-mark row counts for one part. It is
// append-only: entries before the write cursor are immutable, and only the
// most recent entry may be grown in place or replaced. The sum of all entries
// always equals the total number of rows ever planned, which keeps the final
// short-mark correction auditable.
type Granularity struct {
	marksRows []uint64
	total     uint64
}

// MarkCount returns the number of planned marks.
func (g *Granularity) MarkCount() uint64 {
	return uint64(len(g.marksRows))
}

// RowsInMark returns the planned row count of mark i.
func (g *Granularity) RowsInMark(i uint64) uint64 {
	return g.marksRows[i]
}

// TotalRows returns the sum of all planned mark row counts.
func (g *Granularity) TotalRows() uint64 {
	return g.total
}

// AppendMark plans a new mark of the given row count.
func (g *Granularity) AppendMark(rows uint64) {
	g.marksRows = append(g.marksRows, rows)
	g.total += rows
}

// AddRowsToLastMark grows the most recent mark in place.
func (g *Granularity) AddRowsToLastMark(rows uint64) {
	g.marksRows[len(g.marksRows)-1] += rows
	g.total += rows
}

// PopMark removes the most recent mark.
func (g *Granularity) PopMark() {
	last := len(g.marksRows) - 1
	g.total -= g.marksRows[last]
	g.marksRows = g.marksRows[:last]
}

// ReplaceLastMark sets the most recent mark to exactly rows. Used at the
// final flush to correct a trailing mark that planned more rows than were
// actually written.
func (g *Granularity) ReplaceLastMark(rows uint64) {
	g.PopMark()
	g.AppendMark(rows)
}

// fillGranularity extends the plan for one incoming block of rowsInBlock
// rows, walking row positions in steps of granuleRows starting at
// indexOffset (rows already pending in the current, not yet finalized mark).
// A trailing remainder of at least half the target starts a new mark;
// a smaller remainder grows the previous mark, so real granule sizes stay
// within 50% of the target in either direction.
func fillGranularity(g *Granularity, indexOffset, granuleRows, rowsInBlock uint64) {
	for row := indexOffset; row < rowsInBlock; row += granuleRows {
		left := rowsInBlock - row

		// Only extend or shrink the tail if the block is large enough or the
		// walk did not start at a mark boundary.
		if left < granuleRows && (rowsInBlock >= granuleRows || indexOffset != 0) {
			if left*2 >= granuleRows {
				g.AppendMark(left)
			} else {
				g.AddRowsToLastMark(left)
			}
		} else {
			g.AppendMark(granuleRows)
		}
	}
}

// Granule maps a contiguous row slice of a buffered block to exactly one
// mark. IsComplete is false only for the final, possibly short, granule of
// the last flush.
type Granule struct {
	StartRow    uint64
	RowsToWrite uint64
	MarkNumber  uint64
	MarkOnStart bool
	IsComplete  bool
}

// granulesToWrite plans the ordered granules covering blockRows buffered
// rows, starting at mark currentMark. Compact parts accumulate exactly full
// marks, so receiving fewer rows than a mark requires is an
// internal-consistency fault unless this is the last block.
func granulesToWrite(g *Granularity, blockRows, currentMark uint64, lastBlock bool) ([]Granule, error) {
	var result []Granule
	var currentRow uint64
	for currentRow < blockRows {
		if currentMark >= g.MarkCount() {
			return nil, perrors.Newf(perrors.ErrorTypeInternal,
				"request to get granules from mark %d but granularity size is %d", currentMark, g.MarkCount())
		}
		expectedRows := g.RowsInMark(currentMark)
		rowsLeft := blockRows - currentRow
		if rowsLeft < expectedRows && !lastBlock {
			return nil, perrors.Newf(perrors.ErrorTypeInternal,
				"required to write %d rows, but only %d rows left for the non-last granule", expectedRows, rowsLeft)
		}

		rows := rowsLeft
		if expectedRows < rows {
			rows = expectedRows
		}
		result = append(result, Granule{
			StartRow:    currentRow,
			RowsToWrite: rows,
			MarkNumber:  currentMark,
			MarkOnStart: true,
			IsComplete:  rowsLeft >= expectedRows,
		})
		currentRow += rows
		currentMark++
	}
	return result, nil
}
