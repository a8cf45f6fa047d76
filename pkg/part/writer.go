// Package part implements the write path of the compact columnar part
// format. All columns of a part are serialized into one shared data file,
// interleaved at row granules, while substreams that resolve to the same
// compression codec multiplex into shared compressed streams. A companion
// marks file records per-granule byte offsets for random-access reads, and
// per-file checksums are computed for crash-consistency verification.
//
// A Writer owns exclusive mutable state and performs no internal locking:
// calls to Write, FillChecksums and Finish must be serialized by the caller.
// Once bytes are appended to the data file they are never retracted; an
// over-long final mark is corrected in the granularity plan, not by
// rewinding output.
package part

import (
	"encoding/binary"
	"io"
	"path/filepath"
	"time"

	"github.com/go-faster/city"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pulsardb/pulsar/pkg/checksum"
	"github.com/pulsardb/pulsar/pkg/codec"
	perrors "github.com/pulsardb/pulsar/pkg/errors"
	"github.com/pulsardb/pulsar/pkg/serialize"
	"github.com/pulsardb/pulsar/pkg/sink"
)

// Writer writes one compact part. Construct with NewWriter, feed row-permuted
// column batches to Write, then call FillChecksums followed by Finish. A
// writer that fails any step leaves an invalid part that the caller must
// discard; there is no partial-success state.
type Writer struct {
	settings WriterSettings
	columns  []ColumnDescriptor

	granularity Granularity
	currentMark uint64
	buffer      rowBuffer

	plainFile    *sink.FileSink
	plainHashing *sink.HashingWriter

	marksFile          *sink.FileSink
	marksFileHashing   *sink.HashingWriter
	marksCompressor    *codec.BlockWriter
	marksSourceHashing *sink.HashingWriter

	// streamsByCodec owns the compressed streams, keyed by codec identity.
	// streamOrder preserves insertion order so checksum folding is
	// reproducible for a given schema. compressedStreams maps substream file
	// names to non-owning references.
	streamsByCodec    map[uint64]*compressedStream
	streamOrder       []uint64
	compressedStreams map[string]*compressedStream

	dataWritten bool
	checksummed bool

	log *zap.Logger
}

// NewWriter creates a part writer rooted at dir. Configuration faults, such
// as an unresolvable marks compression codec, fail here before any bytes are
// written. An empty column list produces a writer with no data or marks file;
// index collaborators still run at finalization.
func NewWriter(dir string, columns []ColumnDescriptor, settings WriterSettings) (*Writer, error) {
	st := settings.withDefaults()
	w := &Writer{
		settings:          st,
		columns:           columns,
		streamsByCodec:    make(map[uint64]*compressedStream),
		compressedStreams: make(map[string]*compressedStream),
		log:               st.Logger,
	}

	if len(columns) == 0 {
		return w, nil
	}

	var marksCodec codec.Codec
	if st.CompressMarks {
		mc, err := codec.Get(st.MarksCodec, 0, codec.Descriptor{Name: "zstd"}, true)
		if err != nil {
			return nil, err
		}
		marksCodec = mc
	}

	plainFile, err := sink.NewFileSink(filepath.Join(dir, DataFileName), st.MaxCompressBlockSize)
	if err != nil {
		return nil, err
	}
	marksFile, err := sink.NewFileSink(filepath.Join(dir, st.MarksFileName()), defaultMarksBlockSize)
	if err != nil {
		_ = plainFile.Finalize()
		return nil, err
	}

	w.plainFile = plainFile
	w.plainHashing = sink.NewHashingWriter(plainFile)
	w.marksFile = marksFile
	w.marksFileHashing = sink.NewHashingWriter(marksFile)
	if marksCodec != nil {
		w.marksCompressor = codec.NewBlockWriter(w.marksFileHashing, marksCodec, st.MarksCompressBlockSize)
		w.marksSourceHashing = sink.NewHashingWriter(w.marksCompressor)
	}

	for _, cd := range columns {
		if err := w.addStreams(cd); err != nil {
			_ = plainFile.Finalize()
			_ = marksFile.Finalize()
			return nil, err
		}
	}
	return w, nil
}

// addStreams resolves the effective codec of every substream the column's
// serialization will touch and binds the substream name to a shared
// compressed stream. Name collisions (shared offsets of nested columns) are
// idempotent: the first registration wins.
func (w *Writer) addStreams(cd ColumnDescriptor) error {
	var firstErr error
	cd.Serialization.EnumerateStreams(func(sub serialize.Substream) {
		name := sub.FileName(cd.Name)
		if _, ok := w.compressedStreams[name]; ok {
			return
		}

		var c codec.Codec
		var err error
		if sub.SpecialCompressionAllowed {
			c, err = codec.Get(cd.Codec, sub.FixedWidth, w.settings.DefaultCodec, false)
		} else {
			c, err = codec.Get(cd.Codec, 0, w.settings.DefaultCodec, true)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}

		stream := w.streamsByCodec[c.Hash()]
		if stream == nil {
			stream = newCompressedStream(w.plainHashing, c, w.settings.MaxCompressBlockSize)
			w.streamsByCodec[c.Hash()] = stream
			w.streamOrder = append(w.streamOrder, c.Hash())
		}
		w.compressedStreams[name] = stream
	})
	return firstErr
}

// Write buffers one batch of row-permuted columns, extending the granularity
// plan for the batch, and flushes complete granules once the buffer reaches
// the next planned mark boundary. Columns must match the schema order and
// carry equal row counts.
func (w *Writer) Write(cols []serialize.Column) error {
	if len(w.columns) == 0 {
		return perrors.New(perrors.ErrorTypeInternal, "write into a writer with an empty column list")
	}
	if len(cols) != len(w.columns) {
		return perrors.Newf(perrors.ErrorTypeInternal,
			"batch has %d columns, schema has %d", len(cols), len(w.columns))
	}
	if w.checksummed {
		return perrors.New(perrors.ErrorTypeInternal, "write after checksums were filled")
	}

	rows := uint64(cols[0].Rows())
	if rows == 0 {
		return nil
	}

	w.fillGranularityForBlock(w.computeGranuleRows(cols), rows)

	if err := w.buffer.add(cols); err != nil {
		return err
	}

	currentMarkRows := w.granularity.RowsInMark(w.currentMark)
	if w.buffer.rows() >= currentMarkRows {
		return w.flushBuffer(false)
	}
	return nil
}

// fillGranularityForBlock extends the plan for one incoming block. The
// offset accounts for rows already pending in the current, not yet finalized
// mark.
func (w *Writer) fillGranularityForBlock(granuleRows, rowsInBlock uint64) {
	var indexOffset uint64
	if w.granularity.MarkCount() > w.currentMark {
		indexOffset = w.granularity.RowsInMark(w.currentMark) - w.buffer.rows()
	}
	fillGranularity(&w.granularity, indexOffset, granuleRows, rowsInBlock)
}

// computeGranuleRows returns the granule size for one block: the fixed
// target, or an adaptive size derived from the block's in-memory row width.
func (w *Writer) computeGranuleRows(cols []serialize.Column) uint64 {
	st := &w.settings
	if !st.AdaptiveGranularity || st.IndexGranularityBytes <= 0 {
		return st.GranuleRows
	}
	rows := cols[0].Rows()
	if rows == 0 {
		return st.GranuleRows
	}
	var bytes int64
	for _, c := range cols {
		bytes += c.MemoryUsage()
	}
	rowWidth := bytes / int64(rows)
	if rowWidth <= 0 {
		rowWidth = 1
	}
	g := uint64(st.IndexGranularityBytes / rowWidth)
	if g < 1 {
		g = 1
	}
	if g > st.GranuleRows {
		g = st.GranuleRows
	}
	return g
}

// flushBuffer drains the row buffer as one flush unit and writes its
// granules, the marks and the auxiliary indexes.
func (w *Writer) flushBuffer(lastBlock bool) error {
	start := time.Now()
	bytesBefore := w.plainHashing.Count()

	cols := w.buffer.release()
	rows := uint64(cols[0].Rows())

	granules, err := granulesToWrite(&w.granularity, rows, w.currentMark, lastBlock)
	if err != nil {
		return err
	}
	if lastBlock && !granules[len(granules)-1].IsComplete {
		// The plan must never claim more rows than were serialized.
		w.granularity.ReplaceLastMark(granules[len(granules)-1].RowsToWrite)
	}

	if err := w.writeDataBlock(cols, granules); err != nil {
		return err
	}
	if w.settings.RewritePrimaryKey && w.settings.PrimaryIndex != nil {
		if err := w.settings.PrimaryIndex.Update(cols, granules); err != nil {
			return err
		}
	}
	for _, ix := range w.settings.SkipIndexes {
		if err := ix.Update(cols, granules); err != nil {
			return err
		}
	}

	w.currentMark += uint64(len(granules))
	w.settings.Metrics.ObserveFlush(int(rows), len(granules), w.plainHashing.Count()-bytesBefore, time.Since(start))
	w.log.Debug("flushed granules",
		zap.Uint64("rows", rows),
		zap.Int("granules", len(granules)),
		zap.Uint64("mark", w.currentMark))
	return nil
}

// writeDataBlock writes one flush unit: for every granule, every column in
// schema order emits its mark record and its serialized bytes. Compressed
// streams are shared between columns, so the previous stream's block is
// rotated before a different stream is used, and the stream of a column's
// last substream is rotated after the column. Every (column, granule) pair
// therefore occupies whole compressed blocks only.
func (w *Writer) writeDataBlock(cols []serialize.Column, granules []Granule) error {
	marksOut := w.marksOut()

	for _, g := range granules {
		w.dataWritten = true

		for i, cd := range w.columns {
			var prev *compressedStream
			var getterErr error
			getter := func(sub serialize.Substream) io.Writer {
				name := sub.FileName(cd.Name)
				stream, ok := w.compressedStreams[name]
				if !ok {
					if getterErr == nil {
						getterErr = perrors.Newf(perrors.ErrorTypeInternal,
							"substream %q was not registered at construction", name)
					}
					return io.Discard
				}
				if prev != stream {
					// A fresh compressed block starts at every granule for
					// every stream.
					if stream.buffered() != 0 && getterErr == nil {
						getterErr = perrors.Newf(perrors.ErrorTypeInternal,
							"stream %q has %d bytes pending at block start", name, stream.buffered())
					}
					if prev != nil {
						if err := prev.rotate(); err != nil && getterErr == nil {
							getterErr = err
						}
					}
				}
				prev = stream
				return stream.hashing
			}

			// The mark record precedes the column's bytes: absolute offset of
			// the next compressed block in the data file, and a zero offset
			// within that block.
			if err := writeUint64LE(marksOut, w.plainHashing.Count()); err != nil {
				return err
			}
			if err := writeUint64LE(marksOut, 0); err != nil {
				return err
			}

			if err := cd.Serialization.SerializeBulk(cols[i], int(g.StartRow), int(g.RowsToWrite), getter); err != nil {
				return perrors.Wrap(err, perrors.ErrorTypeIO, "serialize column "+cd.Name)
			}
			if getterErr != nil {
				return getterErr
			}
			if prev == nil {
				return perrors.Newf(perrors.ErrorTypeInternal,
					"serialization of column %q touched no substream", cd.Name)
			}
			if err := prev.rotate(); err != nil {
				return err
			}
		}

		if err := writeUint64LE(marksOut, g.RowsToWrite); err != nil {
			return err
		}
	}
	return nil
}

// FillChecksums finalizes the data and marks output and records checksum
// entries for every physical file of the part. It must be called exactly
// once, before Finish. Collaborator order is fixed: data file, then primary
// index, then skip indexes.
func (w *Writer) FillChecksums(sums *checksum.Checksums) error {
	if w.checksummed {
		return perrors.New(perrors.ErrorTypeInternal, "checksums filled twice")
	}
	w.checksummed = true

	if len(w.columns) != 0 {
		if err := w.fillDataChecksums(sums); err != nil {
			return err
		}
	}

	if w.settings.RewritePrimaryKey && w.settings.PrimaryIndex != nil {
		if err := w.settings.PrimaryIndex.Finish(sums); err != nil {
			return err
		}
	}
	for _, ix := range w.settings.SkipIndexes {
		if err := ix.Finish(sums); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) fillDataChecksums(sums *checksum.Checksums) error {
	if w.buffer.rows() != 0 {
		if err := w.flushBuffer(true); err != nil {
			return err
		}
	}

	// Offsets are zero here: a compressed block was rotated for every
	// (column, granule) pair.
	for _, h := range w.streamOrder {
		if n := w.streamsByCodec[h].buffered(); n != 0 {
			return perrors.Newf(perrors.ErrorTypeInternal,
				"stream has %d bytes pending after final flush", n)
		}
	}

	if w.settings.WithFinalMark && w.dataWritten {
		marksOut := w.marksOut()
		for range w.columns {
			if err := writeUint64LE(marksOut, w.plainHashing.Count()); err != nil {
				return err
			}
			if err := writeUint64LE(marksOut, 0); err != nil {
				return err
			}
		}
		if err := writeUint64LE(marksOut, 0); err != nil {
			return err
		}
	}

	// Seal every stream even if one fails; the first failure leads the
	// combined error.
	var sealErr error
	for _, h := range w.streamOrder {
		sealErr = multierr.Append(sealErr, w.streamsByCodec[h].block.Close())
	}
	if w.marksCompressor != nil {
		sealErr = multierr.Append(sealErr, w.marksCompressor.Close())
	}
	if sealErr != nil {
		return sealErr
	}

	w.addToChecksums(sums)
	w.log.Debug("part data finalized",
		zap.Uint64("marks", w.granularity.MarkCount()),
		zap.Uint64("rows", w.granularity.TotalRows()),
		zap.Uint64("data_bytes", w.plainHashing.Count()))
	return nil
}

// addToChecksums records the entries for the data and marks files. The
// combined uncompressed hash folds each stream's hash into a running 128-bit
// hash in stream insertion order, which is stable for a given schema.
func (w *Writer) addToChecksums(sums *checksum.Checksums) {
	var uncompressedSize uint64
	var uncompressedHash city.U128
	for _, h := range w.streamOrder {
		stream := w.streamsByCodec[h]
		uncompressedSize += stream.hashing.Count()
		streamHash := stream.hashing.Sum()
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[0:], streamHash.Low)
		binary.LittleEndian.PutUint64(buf[8:], streamHash.High)
		uncompressedHash = city.CH128Seed(buf[:], uncompressedHash)
	}

	sums.Add(DataFileName, checksum.Entry{
		IsCompressed:     true,
		UncompressedSize: uncompressedSize,
		UncompressedHash: uncompressedHash,
		FileSize:         w.plainHashing.Count(),
		FileHash:         w.plainHashing.Sum(),
	})

	marksEntry := checksum.Entry{
		FileSize: w.marksFileHashing.Count(),
		FileHash: w.marksFileHashing.Sum(),
	}
	if w.marksCompressor != nil {
		marksEntry.IsCompressed = true
		marksEntry.UncompressedSize = w.marksSourceHashing.Count()
		marksEntry.UncompressedHash = w.marksSourceHashing.Sum()
	}
	sums.Add(w.settings.MarksFileName(), marksEntry)
}

// Finish seals the data and marks files, optionally fsyncing first. All
// sinks are finalized even if one fails.
func (w *Writer) Finish() error {
	if len(w.columns) == 0 {
		return nil
	}

	var err error
	if w.settings.SyncOnFinish {
		err = multierr.Append(err, w.plainFile.Sync())
		err = multierr.Append(err, w.marksFile.Sync())
	}
	err = multierr.Append(err, w.plainFile.Finalize())
	err = multierr.Append(err, w.marksFile.Finalize())
	return err
}

// Granularity exposes the granularity plan, for inspection by index
// collaborators and tests.
func (w *Writer) Granularity() *Granularity {
	return &w.granularity
}

func (w *Writer) marksOut() io.Writer {
	if w.marksSourceHashing != nil {
		return w.marksSourceHashing
	}
	return w.marksFileHashing
}

func writeUint64LE(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return perrors.Wrap(err, perrors.ErrorTypeIO, "write mark record")
	}
	return nil
}
