// Package codec provides the compression codecs and the compressed block
// framing used by the compact part format. Codecs are identified for stream
// grouping purposes by a stable content hash of their effective configuration,
// so unrelated columns that resolve to the same codec can multiplex into one
// compressed stream.
package codec

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	perrors "github.com/pulsardb/pulsar/pkg/errors"
)

// Frame method bytes recorded in each compressed block header. A block is
// always decodable from its header alone.
const (
	methodNone      byte = 0x02
	methodDeltaNone byte = 0x03
	methodLZ4       byte = 0x82
	methodDeltaLZ4  byte = 0x83
	methodZSTD      byte = 0x90
	methodDeltaZSTD byte = 0x91
)

// Codec compresses block payloads. Implementations are stateless or
// internally pooled and safe for reuse across streams.
type Codec interface {
	// Compress compresses src and returns the block payload together with
	// the frame method byte describing how the payload was produced. A codec
	// may fall back to raw storage for incompressible input, in which case
	// the returned method reflects the fallback.
	Compress(src []byte) (payload []byte, method byte, err error)

	// Hash returns a stable identity hash of the effective codec
	// configuration, used to group substreams into shared compressed streams.
	Hash() uint64

	// String returns the canonical descriptor form.
	String() string
}

// Get resolves a codec for one substream. desc is the declared descriptor
// (zero or "default" resolves through def). fixedWidth is the fixed row width
// of the substream's values in bytes, zero for variable-width data. When
// genericOnly is set, type-specific transforms (delta) are stripped and only
// generic compression applies.
func Get(desc Descriptor, fixedWidth int, def Descriptor, genericOnly bool) (Codec, error) {
	if desc.IsZero() || desc.Name == "default" {
		resolved := def
		// A declared delta survives default resolution.
		if desc.Delta {
			resolved.Delta = true
			resolved.DeltaWidth = desc.DeltaWidth
		}
		desc = resolved
	}
	if desc.IsZero() {
		desc = Descriptor{Name: "lz4"}
	}

	if genericOnly {
		desc.Delta = false
		desc.DeltaWidth = 0
	}

	var base Codec
	switch desc.Name {
	case "", "none":
		base = noneCodec{}
	case "lz4":
		base = &lz4Codec{level: desc.Level}
	case "zstd":
		c, err := newZstdCodec(desc.Level)
		if err != nil {
			return nil, err
		}
		base = c
	default:
		return nil, perrors.Newf(perrors.ErrorTypeConfig, "unresolvable codec %q", desc.Name)
	}

	if !desc.Delta {
		return base, nil
	}

	width := desc.DeltaWidth
	if width == 0 {
		width = fixedWidth
	}
	if width == 0 {
		width = 1
	}
	if width < 1 || width > 255 {
		return nil, perrors.Newf(perrors.ErrorTypeConfig, "delta width %d out of range", width)
	}
	return &deltaCodec{width: byte(width), inner: base}, nil
}

func identityHash(canonical string) uint64 {
	return xxhash.Sum64String(canonical)
}

// noneCodec stores payloads verbatim.
type noneCodec struct{}

func (noneCodec) Compress(src []byte) ([]byte, byte, error) {
	payload := make([]byte, len(src))
	copy(payload, src)
	return payload, methodNone, nil
}

func (noneCodec) Hash() uint64   { return identityHash("none") }
func (noneCodec) String() string { return "none" }

// lz4Codec uses LZ4 block compression. Levels above zero select the
// high-compression variant.
type lz4Codec struct {
	level int
}

func (c *lz4Codec) Compress(src []byte) ([]byte, byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	var n int
	var err error
	if c.level <= 0 {
		var comp lz4.Compressor
		n, err = comp.CompressBlock(src, dst)
	} else {
		comp := lz4.CompressorHC{Level: mapLZ4Level(c.level)}
		n, err = comp.CompressBlock(src, dst)
	}
	if err != nil {
		return nil, 0, perrors.Wrap(err, perrors.ErrorTypeIO, "lz4 compress")
	}
	if n == 0 {
		// Incompressible input, store raw.
		return append([]byte(nil), src...), methodNone, nil
	}
	return dst[:n], methodLZ4, nil
}

func (c *lz4Codec) Hash() uint64   { return identityHash(c.String()) }
func (c *lz4Codec) String() string { return Descriptor{Name: "lz4", Level: c.level}.String() }

// zstdCodec uses zstandard. One encoder per codec instance, single threaded
// like the writer that owns it.
type zstdCodec struct {
	level int
	enc   *zstd.Encoder
}

func newZstdCodec(level int) (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(mapZstdLevel(level)),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrorTypeConfig, "create zstd encoder")
	}
	return &zstdCodec{level: level, enc: enc}, nil
}

func (c *zstdCodec) Compress(src []byte) ([]byte, byte, error) {
	return c.enc.EncodeAll(src, nil), methodZSTD, nil
}

func (c *zstdCodec) Hash() uint64   { return identityHash(c.String()) }
func (c *zstdCodec) String() string { return Descriptor{Name: "zstd", Level: c.level}.String() }

// deltaCodec applies a byte-wise delta transform with a fixed stride before
// the inner compression. The stride is recorded as the first payload byte.
type deltaCodec struct {
	width byte
	inner Codec
}

func (c *deltaCodec) Compress(src []byte) ([]byte, byte, error) {
	payload, method, err := c.inner.Compress(deltaEncode(src, int(c.width)))
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, 1+len(payload))
	out[0] = c.width
	copy(out[1:], payload)
	return out, deltaMethod(method), nil
}

func (c *deltaCodec) Hash() uint64 { return identityHash(c.String()) }

func (c *deltaCodec) String() string {
	d, _ := ParseDescriptor(c.inner.String())
	d.Delta = true
	d.DeltaWidth = int(c.width)
	return d.String()
}

func deltaMethod(base byte) byte {
	switch base {
	case methodNone:
		return methodDeltaNone
	case methodLZ4:
		return methodDeltaLZ4
	case methodZSTD:
		return methodDeltaZSTD
	}
	return base
}

func deltaEncode(src []byte, width int) []byte {
	out := make([]byte, len(src))
	for i := range src {
		if i < width {
			out[i] = src[i]
		} else {
			out[i] = src[i] - src[i-width]
		}
	}
	return out
}

func deltaDecode(src []byte, width int) []byte {
	out := make([]byte, len(src))
	for i := range src {
		if i < width {
			out[i] = src[i]
		} else {
			out[i] = src[i] + out[i-width]
		}
	}
	return out
}

func mapLZ4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 1:
		return lz4.Level1
	case level >= 9:
		return lz4.Level9
	default:
		return []lz4.CompressionLevel{
			lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
			lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8,
		}[level-1]
	}
}

func mapZstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedDefault
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 8:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

var (
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func zstdDecoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdDec
}
