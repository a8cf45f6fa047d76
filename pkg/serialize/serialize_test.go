package serialize

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleStream(buf *bytes.Buffer) StreamGetter {
	return func(Substream) io.Writer { return buf }
}

func TestInt64SerializationRange(t *testing.T) {
	col := &Int64Column{Values: []int64{1, -2, 3, 4, 5}}

	var buf bytes.Buffer
	require.NoError(t, Int64Serialization{}.SerializeBulk(col, 1, 3, singleStream(&buf)))
	require.Equal(t, 24, buf.Len())

	for i, want := range []int64{-2, 3, 4} {
		got := int64(binary.LittleEndian.Uint64(buf.Bytes()[i*8:]))
		assert.Equal(t, want, got)
	}
}

func TestStringSerializationRange(t *testing.T) {
	col := &StringColumn{Values: []string{"a", "bb", "ccc"}}

	var buf bytes.Buffer
	require.NoError(t, StringSerialization{}.SerializeBulk(col, 1, 2, singleStream(&buf)))

	r := bytes.NewReader(buf.Bytes())
	for _, want := range []string{"bb", "ccc"} {
		n, err := binary.ReadUvarint(r)
		require.NoError(t, err)
		got := make([]byte, n)
		_, err = io.ReadFull(r, got)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Zero(t, r.Len(), "trailing bytes after the encoded range")
}

func TestSerializationIsPositionIndependent(t *testing.T) {
	col := &StringColumn{Values: []string{"x", "y", "z", "w"}}

	var whole, tail bytes.Buffer
	require.NoError(t, StringSerialization{}.SerializeBulk(col, 0, 4, singleStream(&whole)))
	require.NoError(t, StringSerialization{}.SerializeBulk(col, 2, 2, singleStream(&tail)))
	assert.True(t, bytes.HasSuffix(whole.Bytes(), tail.Bytes()),
		"encoding a tail range must produce the same bytes as the tail of the whole encoding")
}

func TestAppendRange(t *testing.T) {
	dst := &Int64Column{Values: []int64{1}}
	src := &Int64Column{Values: []int64{2, 3, 4}}
	require.NoError(t, dst.AppendRange(src, 1, 2))
	assert.Equal(t, []int64{1, 3, 4}, dst.Values)

	assert.Error(t, dst.AppendRange(&StringColumn{}, 0, 0))
}

func TestSubstreamFileName(t *testing.T) {
	assert.Equal(t, "id", Substream{}.FileName("id"))
	assert.Equal(t, "id.size0", Substream{Suffix: "size0"}.FileName("id"))
	assert.Equal(t, "n.size0", Substream{Suffix: "size0", SharedPrefix: "n"}.FileName("n.a"))
}

func TestForType(t *testing.T) {
	for _, name := range []string{"int64", "uint64", "float64", "string"} {
		ser, err := ForType(name)
		require.NoError(t, err)
		assert.NotNil(t, ser)
		col, err := NewColumn(name)
		require.NoError(t, err)
		assert.Zero(t, col.Rows())
	}
	_, err := ForType("decimal")
	assert.Error(t, err)
}
