package part

import (
	perrors "github.com/pulsardb/pulsar/pkg/errors"

	"github.com/pulsardb/pulsar/pkg/serialize"
)

// rowBuffer accumulates row-permuted columnar batches until the buffered row
// count reaches the next planned mark boundary. The first batch is adopted as
// is; later batches are appended row-wise. The buffer is only ever drained as
// one unit.
type rowBuffer struct {
	accumulated []serialize.Column
}

// add absorbs one batch. All columns of a batch carry equal row counts, an
// invariant enforced upstream of the writer.
func (b *rowBuffer) add(cols []serialize.Column) error {
	if len(b.accumulated) == 0 {
		b.accumulated = cols
		return nil
	}
	if len(cols) != len(b.accumulated) {
		return perrors.Newf(perrors.ErrorTypeInternal,
			"buffered batch has %d columns, incoming batch has %d", len(b.accumulated), len(cols))
	}
	for i, col := range cols {
		if err := b.accumulated[i].AppendRange(col, 0, col.Rows()); err != nil {
			return err
		}
	}
	return nil
}

// rows returns the buffered row count.
func (b *rowBuffer) rows() uint64 {
	if len(b.accumulated) == 0 {
		return 0
	}
	return uint64(b.accumulated[0].Rows())
}

// release hands back all accumulated columns and resets the buffer.
func (b *rowBuffer) release() []serialize.Column {
	cols := b.accumulated
	b.accumulated = nil
	return cols
}
