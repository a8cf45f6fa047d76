package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsardb/pulsar/pkg/checksum"
	perrors "github.com/pulsardb/pulsar/pkg/errors"
	"github.com/pulsardb/pulsar/pkg/part"
	"github.com/pulsardb/pulsar/pkg/serialize"
)

func int64Col(vals ...int64) *serialize.Int64Column {
	return &serialize.Int64Column{Values: vals}
}

func TestPrimaryIndexSamplesGranuleStarts(t *testing.T) {
	dir := t.TempDir()
	pi, err := NewPrimaryIndex(dir, []KeyColumn{{Position: 0, Serialization: serialize.Int64Serialization{}}})
	require.NoError(t, err)

	col := &serialize.Int64Column{Values: make([]int64, 150)}
	for i := range col.Values {
		col.Values[i] = int64(i) * 7
	}
	granules := []part.Granule{
		{StartRow: 0, RowsToWrite: 100, MarkNumber: 0, MarkOnStart: true, IsComplete: true},
		{StartRow: 100, RowsToWrite: 50, MarkNumber: 1, MarkOnStart: true, IsComplete: true},
	}
	require.NoError(t, pi.Update([]serialize.Column{col}, granules))

	sums := checksum.New()
	require.NoError(t, pi.Finish(sums))

	data, err := os.ReadFile(filepath.Join(dir, PrimaryIndexFileName))
	require.NoError(t, err)
	require.Len(t, data, 16, "one 8-byte key sample per mark")
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(data[0:]))
	assert.Equal(t, uint64(700), binary.LittleEndian.Uint64(data[8:]))

	entry, ok := sums.Get(PrimaryIndexFileName)
	require.True(t, ok)
	assert.False(t, entry.IsCompressed)
	assert.Equal(t, uint64(16), entry.FileSize)
}

func TestPrimaryIndexSkipsContinuationGranules(t *testing.T) {
	dir := t.TempDir()
	pi, err := NewPrimaryIndex(dir, []KeyColumn{{Position: 0, Serialization: serialize.Int64Serialization{}}})
	require.NoError(t, err)

	granules := []part.Granule{
		{StartRow: 0, RowsToWrite: 10, MarkOnStart: true, IsComplete: true},
		{StartRow: 10, RowsToWrite: 10, MarkOnStart: false, IsComplete: true},
	}
	require.NoError(t, pi.Update([]serialize.Column{int64Col(make([]int64, 20)...)}, granules))

	sums := checksum.New()
	require.NoError(t, pi.Finish(sums))

	entry, _ := sums.Get(PrimaryIndexFileName)
	assert.Equal(t, uint64(8), entry.FileSize, "only granules opening a mark are sampled")
}

func TestPrimaryIndexConfigErrors(t *testing.T) {
	_, err := NewPrimaryIndex(t.TempDir(), nil)
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeConfig))

	pi, err := NewPrimaryIndex(t.TempDir(), []KeyColumn{{Position: 3, Serialization: serialize.Int64Serialization{}}})
	require.NoError(t, err)
	err = pi.Update([]serialize.Column{int64Col(1)},
		[]part.Granule{{RowsToWrite: 1, MarkOnStart: true, IsComplete: true}})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeInternal))
}

func TestMinMaxIndex(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewMinMaxIndex(dir, "id", 0)
	require.NoError(t, err)

	col := int64Col(5, -3, 12, 7, 100, 99)
	granules := []part.Granule{
		{StartRow: 0, RowsToWrite: 4, MarkOnStart: true, IsComplete: true},
		{StartRow: 4, RowsToWrite: 2, MarkOnStart: true, IsComplete: true},
	}
	require.NoError(t, mm.Update([]serialize.Column{col}, granules))

	sums := checksum.New()
	require.NoError(t, mm.Finish(sums))

	data, err := os.ReadFile(filepath.Join(dir, MinMaxFileName("id")))
	require.NoError(t, err)
	require.Len(t, data, 32)

	assert.Equal(t, int64(-3), int64(binary.LittleEndian.Uint64(data[0:])))
	assert.Equal(t, int64(12), int64(binary.LittleEndian.Uint64(data[8:])))
	assert.Equal(t, int64(99), int64(binary.LittleEndian.Uint64(data[16:])))
	assert.Equal(t, int64(100), int64(binary.LittleEndian.Uint64(data[24:])))

	entry, ok := sums.Get("skp_idx_id.idx")
	require.True(t, ok)
	assert.Equal(t, uint64(32), entry.FileSize)
}

func TestMinMaxIndexTypeMismatch(t *testing.T) {
	mm, err := NewMinMaxIndex(t.TempDir(), "name", 0)
	require.NoError(t, err)
	err = mm.Update([]serialize.Column{&serialize.StringColumn{Values: []string{"a"}}},
		[]part.Granule{{RowsToWrite: 1, MarkOnStart: true, IsComplete: true}})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeData))
}
