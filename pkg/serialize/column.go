// Package serialize provides the column containers and bulk serializations
// consumed by the part writer. A serialization turns a row range of one
// column into bytes on one or more named substreams; the encoding is
// position independent, so any row range round-trips without context from
// earlier ranges. Dictionary-style encodings are not used in this bulk mode:
// values are always written in plain form.
package serialize

import (
	perrors "github.com/pulsardb/pulsar/pkg/errors"
)

// Column is a typed columnar container holding one column's values.
type Column interface {
	// Rows returns the number of values held.
	Rows() int

	// MemoryUsage returns the approximate in-memory byte size of the values,
	// used for adaptive granule sizing.
	MemoryUsage() int64

	// AppendRange appends count rows of src starting at from. src must be of
	// the same concrete type.
	AppendRange(src Column, from, count int) error
}

// Int64Column stores signed 64-bit integers.
type Int64Column struct {
	Values []int64
}

func (c *Int64Column) Rows() int { return len(c.Values) }

func (c *Int64Column) MemoryUsage() int64 { return int64(len(c.Values)) * 8 }

func (c *Int64Column) AppendRange(src Column, from, count int) error {
	s, ok := src.(*Int64Column)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "append %T rows to Int64Column", src)
	}
	c.Values = append(c.Values, s.Values[from:from+count]...)
	return nil
}

// UInt64Column stores unsigned 64-bit integers.
type UInt64Column struct {
	Values []uint64
}

func (c *UInt64Column) Rows() int { return len(c.Values) }

func (c *UInt64Column) MemoryUsage() int64 { return int64(len(c.Values)) * 8 }

func (c *UInt64Column) AppendRange(src Column, from, count int) error {
	s, ok := src.(*UInt64Column)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "append %T rows to UInt64Column", src)
	}
	c.Values = append(c.Values, s.Values[from:from+count]...)
	return nil
}

// Float64Column stores 64-bit floats.
type Float64Column struct {
	Values []float64
}

func (c *Float64Column) Rows() int { return len(c.Values) }

func (c *Float64Column) MemoryUsage() int64 { return int64(len(c.Values)) * 8 }

func (c *Float64Column) AppendRange(src Column, from, count int) error {
	s, ok := src.(*Float64Column)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "append %T rows to Float64Column", src)
	}
	c.Values = append(c.Values, s.Values[from:from+count]...)
	return nil
}

// StringColumn stores variable-width strings.
type StringColumn struct {
	Values []string
}

func (c *StringColumn) Rows() int { return len(c.Values) }

func (c *StringColumn) MemoryUsage() int64 {
	total := int64(len(c.Values)) * 16
	for _, v := range c.Values {
		total += int64(len(v))
	}
	return total
}

func (c *StringColumn) AppendRange(src Column, from, count int) error {
	s, ok := src.(*StringColumn)
	if !ok {
		return perrors.Newf(perrors.ErrorTypeData, "append %T rows to StringColumn", src)
	}
	c.Values = append(c.Values, s.Values[from:from+count]...)
	return nil
}

// NewColumn creates an empty column for a named logical type.
func NewColumn(typeName string) (Column, error) {
	switch typeName {
	case "int64":
		return &Int64Column{}, nil
	case "uint64":
		return &UInt64Column{}, nil
	case "float64":
		return &Float64Column{}, nil
	case "string":
		return &StringColumn{}, nil
	default:
		return nil, perrors.Newf(perrors.ErrorTypeConfig, "unknown column type %q", typeName)
	}
}
