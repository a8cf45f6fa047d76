package codec

import (
	"strconv"
	"strings"

	perrors "github.com/pulsardb/pulsar/pkg/errors"
)

// Descriptor is a parsed compression codec declaration, e.g. "lz4",
// "zstd(3)", "delta(4),zstd". A zero Descriptor (or the name "default")
// resolves to the configured default codec.
type Descriptor struct {
	Name       string // none, lz4, zstd, default or empty
	Level      int
	Delta      bool
	DeltaWidth int
}

// IsZero reports whether the descriptor carries no declaration at all.
func (d Descriptor) IsZero() bool {
	return d.Name == "" && !d.Delta
}

// String returns the canonical textual form of the descriptor.
func (d Descriptor) String() string {
	var b strings.Builder
	if d.Delta {
		b.WriteString("delta(")
		b.WriteString(strconv.Itoa(d.DeltaWidth))
		b.WriteString("),")
	}
	name := d.Name
	if name == "" {
		name = "default"
	}
	b.WriteString(name)
	if d.Level != 0 {
		b.WriteString("(")
		b.WriteString(strconv.Itoa(d.Level))
		b.WriteString(")")
	}
	return b.String()
}

// ParseDescriptor parses a codec declaration. Accepted forms are a codec name
// with an optional integer level argument, optionally preceded by a delta
// transform with an optional byte-width argument:
//
//	lz4
//	zstd(3)
//	delta,lz4
//	delta(4),zstd(1)
func ParseDescriptor(s string) (Descriptor, error) {
	var d Descriptor

	rest := strings.TrimSpace(strings.ToLower(s))
	if rest == "" {
		return d, nil
	}

	parts := splitTopLevel(rest)
	for i, part := range parts {
		name, arg, err := parseCodecAtom(part)
		if err != nil {
			return Descriptor{}, err
		}
		switch name {
		case "delta":
			if i != 0 || d.Delta {
				return Descriptor{}, perrors.Newf(perrors.ErrorTypeConfig, "misplaced delta in codec %q", s)
			}
			if arg < 0 || arg > 255 {
				return Descriptor{}, perrors.Newf(perrors.ErrorTypeConfig, "delta width %d out of range", arg)
			}
			d.Delta = true
			d.DeltaWidth = arg
		case "none", "lz4", "zstd", "default":
			if d.Name != "" {
				return Descriptor{}, perrors.Newf(perrors.ErrorTypeConfig, "multiple compression methods in codec %q", s)
			}
			d.Name = name
			d.Level = arg
		default:
			return Descriptor{}, perrors.Newf(perrors.ErrorTypeConfig, "unknown codec %q", name)
		}
	}

	if d.Name == "" && d.Delta {
		return Descriptor{}, perrors.Newf(perrors.ErrorTypeConfig, "codec %q has no compression method", s)
	}
	return d, nil
}

// splitTopLevel splits on commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

func parseCodecAtom(s string) (name string, arg int, err error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, 0, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", 0, perrors.Newf(perrors.ErrorTypeConfig, "malformed codec argument %q", s)
	}
	name = s[:open]
	inner := s[open+1 : len(s)-1]
	if inner == "" {
		return name, 0, nil
	}
	arg, convErr := strconv.Atoi(inner)
	if convErr != nil {
		return "", 0, perrors.Newf(perrors.ErrorTypeConfig, "malformed codec argument %q", s)
	}
	return name, arg, nil
}
