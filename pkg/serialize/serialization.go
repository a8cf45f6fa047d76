package serialize

import (
	"encoding/binary"
	"io"
	"math"

	perrors "github.com/pulsardb/pulsar/pkg/errors"
)

// Substream identifies one named byte stream a serialization writes into.
// Simple types use a single unnamed substream; composite types report one
// entry per stream they touch.
type Substream struct {
	// Suffix distinguishes substreams of one column, e.g. "size0" for array
	// offsets. Empty for the main data stream.
	Suffix string

	// SharedPrefix, when set, replaces the column name in the stream file
	// name. Substreams shared between sibling columns (nested offsets) use a
	// common prefix so they resolve to one physical stream.
	SharedPrefix string

	// SpecialCompressionAllowed reports whether type-specific transforms may
	// be applied to this substream. Variable-width streams only get generic
	// compression.
	SpecialCompressionAllowed bool

	// FixedWidth is the fixed byte width of one value on this substream,
	// zero for variable-width encodings.
	FixedWidth int
}

// FileName returns the stream name for a given column.
func (s Substream) FileName(column string) string {
	base := column
	if s.SharedPrefix != "" {
		base = s.SharedPrefix
	}
	if s.Suffix == "" {
		return base
	}
	return base + "." + s.Suffix
}

// StreamGetter resolves a substream to its byte sink. The part writer
// supplies getters that route substreams into shared compressed streams; a
// serialization may call the getter several times per row range.
type StreamGetter func(sub Substream) io.Writer

// Serialization encodes a column's values onto substreams.
type Serialization interface {
	// EnumerateStreams reports every substream this serialization writes.
	EnumerateStreams(fn func(sub Substream))

	// SerializeBulk writes rows [fromRow, fromRow+rows) of col through the
	// getter, including any prefix and suffix state the encoding needs. The
	// produced bytes depend only on the given row range.
	SerializeBulk(col Column, fromRow, rows int, getter StreamGetter) error
}

// Int64Serialization writes fixed-width little-endian int64 values.
type Int64Serialization struct{}

func (Int64Serialization) EnumerateStreams(fn func(Substream)) {
	fn(Substream{SpecialCompressionAllowed: true, FixedWidth: 8})
}

func (Int64Serialization) SerializeBulk(col Column, fromRow, rows int, getter StreamGetter) error {
	c, ok := col.(*Int64Column)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "int64 serialization over %T", col)
	}
	w := getter(Substream{SpecialCompressionAllowed: true, FixedWidth: 8})
	var buf [8]byte
	for _, v := range c.Values[fromRow : fromRow+rows] {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// UInt64Serialization writes fixed-width little-endian uint64 values.
type UInt64Serialization struct{}

func (UInt64Serialization) EnumerateStreams(fn func(Substream)) {
	fn(Substream{SpecialCompressionAllowed: true, FixedWidth: 8})
}

func (UInt64Serialization) SerializeBulk(col Column, fromRow, rows int, getter StreamGetter) error {
	c, ok := col.(*UInt64Column)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "uint64 serialization over %T", col)
	}
	w := getter(Substream{SpecialCompressionAllowed: true, FixedWidth: 8})
	var buf [8]byte
	for _, v := range c.Values[fromRow : fromRow+rows] {
		binary.LittleEndian.PutUint64(buf[:], v)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// Float64Serialization writes fixed-width little-endian float64 bits.
type Float64Serialization struct{}

func (Float64Serialization) EnumerateStreams(fn func(Substream)) {
	fn(Substream{SpecialCompressionAllowed: true, FixedWidth: 8})
}

func (Float64Serialization) SerializeBulk(col Column, fromRow, rows int, getter StreamGetter) error {
	c, ok := col.(*Float64Column)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "float64 serialization over %T", col)
	}
	w := getter(Substream{SpecialCompressionAllowed: true, FixedWidth: 8})
	var buf [8]byte
	for _, v := range c.Values[fromRow : fromRow+rows] {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// StringSerialization writes uvarint-length-prefixed bytes. Variable width,
// so only generic compression applies.
type StringSerialization struct{}

func (StringSerialization) EnumerateStreams(fn func(Substream)) {
	fn(Substream{})
}

func (StringSerialization) SerializeBulk(col Column, fromRow, rows int, getter StreamGetter) error {
	c, ok := col.(*StringColumn)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "string serialization over %T", col)
	}
	w := getter(Substream{})
	var buf [binary.MaxVarintLen64]byte
	for _, v := range c.Values[fromRow : fromRow+rows] {
		n := binary.PutUvarint(buf[:], uint64(len(v)))
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, v); err != nil {
			return err
		}
	}
	return nil
}

// ForType returns the serialization for a named logical type.
func ForType(typeName string) (Serialization, error) {
	switch typeName {
	case "int64":
		return Int64Serialization{}, nil
	case "uint64":
		return UInt64Serialization{}, nil
	case "float64":
		return Float64Serialization{}, nil
	case "string":
		return StringSerialization{}, nil
	default:
		return nil, perrors.Newf(perrors.ErrorTypeConfig, "unknown column type %q", typeName)
	}
}
