// Package index provides the auxiliary index collaborators of the part
// writer: a primary-key index sampling the first row of every granule, and a
// min/max skip index summarizing numeric columns per granule. Both implement
// part.GranuleIndexer and own their output files.
package index

import (
	"encoding/binary"
	"io"
	"path/filepath"

	"github.com/pulsardb/pulsar/pkg/checksum"
	perrors "github.com/pulsardb/pulsar/pkg/errors"
	"github.com/pulsardb/pulsar/pkg/part"
	"github.com/pulsardb/pulsar/pkg/serialize"
	"github.com/pulsardb/pulsar/pkg/sink"
)

// PrimaryIndexFileName is the primary index output file.
const PrimaryIndexFileName = "primary.idx"

// KeyColumn names one primary-key component: its position in the schema and
// the serialization used to encode sampled values.
type KeyColumn struct {
	Position      int
	Serialization serialize.Serialization
}

// PrimaryIndex writes the values of the primary-key columns at every granule
// start, producing one sparse index row per mark.
type PrimaryIndex struct {
	keys    []KeyColumn
	file    *sink.FileSink
	hashing *sink.HashingWriter
}

var _ part.GranuleIndexer = (*PrimaryIndex)(nil)

// NewPrimaryIndex creates the primary index writer in dir.
func NewPrimaryIndex(dir string, keys []KeyColumn) (*PrimaryIndex, error) {
	if len(keys) == 0 {
		return nil, perrors.New(perrors.ErrorTypeConfig, "primary index needs at least one key column")
	}
	file, err := sink.NewFileSink(filepath.Join(dir, PrimaryIndexFileName), 0)
	if err != nil {
		return nil, err
	}
	return &PrimaryIndex{
		keys:    keys,
		file:    file,
		hashing: sink.NewHashingWriter(file),
	}, nil
}

// Update samples the key columns at the start row of every granule that
// opens a mark.
func (p *PrimaryIndex) Update(cols []serialize.Column, granules []part.Granule) error {
	getter := func(serialize.Substream) io.Writer { return p.hashing }
	for _, g := range granules {
		if !g.MarkOnStart {
			continue
		}
		for _, key := range p.keys {
			if key.Position < 0 || key.Position >= len(cols) {
				return perrors.Newf(perrors.ErrorTypeInternal,
					"primary key column %d out of range", key.Position)
			}
			if err := key.Serialization.SerializeBulk(cols[key.Position], int(g.StartRow), 1, getter); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finish records the index checksum entry and seals the file.
func (p *PrimaryIndex) Finish(sums *checksum.Checksums) error {
	sums.Add(PrimaryIndexFileName, checksum.Entry{
		FileSize: p.hashing.Count(),
		FileHash: p.hashing.Sum(),
	})
	return p.file.Finalize()
}

// MinMaxIndex is a skip index recording the minimum and maximum of one int64
// column per granule, 16 little-endian bytes per mark.
type MinMaxIndex struct {
	name     string
	position int
	file     *sink.FileSink
	hashing  *sink.HashingWriter
}

var _ part.GranuleIndexer = (*MinMaxIndex)(nil)

// MinMaxFileName returns the on-disk name of a min/max skip index.
func MinMaxFileName(name string) string {
	return "skp_idx_" + name + ".idx"
}

// NewMinMaxIndex creates a min/max skip index over the int64 column at the
// given schema position.
func NewMinMaxIndex(dir, name string, position int) (*MinMaxIndex, error) {
	file, err := sink.NewFileSink(filepath.Join(dir, MinMaxFileName(name)), 0)
	if err != nil {
		return nil, err
	}
	return &MinMaxIndex{
		name:     name,
		position: position,
		file:     file,
		hashing:  sink.NewHashingWriter(file),
	}, nil
}

// Update appends one min/max pair per granule.
func (m *MinMaxIndex) Update(cols []serialize.Column, granules []part.Granule) error {
	if m.position < 0 || m.position >= len(cols) {
		return perrors.Newf(perrors.ErrorTypeInternal, "skip index column %d out of range", m.position)
	}
	col, ok := cols[m.position].(*serialize.Int64Column)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "min/max index over %T", cols[m.position])
	}

	var buf [16]byte
	for _, g := range granules {
		lo, hi := col.Values[g.StartRow], col.Values[g.StartRow]
		for _, v := range col.Values[g.StartRow : g.StartRow+g.RowsToWrite] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		binary.LittleEndian.PutUint64(buf[0:], uint64(lo))
		binary.LittleEndian.PutUint64(buf[8:], uint64(hi))
		if _, err := m.hashing.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// Finish records the index checksum entry and seals the file.
func (m *MinMaxIndex) Finish(sums *checksum.Checksums) error {
	sums.Add(MinMaxFileName(m.name), checksum.Entry{
		FileSize: m.hashing.Count(),
		FileHash: m.hashing.Sum(),
	})
	return m.file.Finalize()
}
