package codec

import (
	"encoding/binary"
	"io"

	"github.com/go-faster/city"
	"github.com/pierrec/lz4/v4"

	perrors "github.com/pulsardb/pulsar/pkg/errors"
)

const (
	// checksumSize is the 128-bit block checksum prefix.
	checksumSize = 16
	// headerSize is method byte + compressed size + uncompressed size.
	headerSize = 9

	// DefaultBlockSize is the uncompressed block size used when a writer does
	// not configure one.
	DefaultBlockSize = 1 << 20
)

// BlockWriter buffers uncompressed bytes and emits framed compressed blocks
// into an underlying writer. Each block is:
//
//	checksum  16 bytes  CityHash128 of header+body, little endian (low, high)
//	method     1 byte
//	compSize   4 bytes  little endian, includes the 9 header bytes
//	rawSize    4 bytes  little endian, uncompressed payload size
//	body       compSize-9 bytes
//
// Every block is decompressible in isolation: the frame carries everything a
// reader needs. A frame is emitted with a single Write call on the underlying
// writer so downstream hashing wrappers observe deterministic chunking.
type BlockWriter struct {
	w         io.Writer
	codec     Codec
	blockSize int
	buf       []byte
}

// NewBlockWriter creates a block writer with the given uncompressed block
// size. blockSize <= 0 selects DefaultBlockSize.
func NewBlockWriter(w io.Writer, c Codec, blockSize int) *BlockWriter {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &BlockWriter{w: w, codec: c, blockSize: blockSize}
}

func (b *BlockWriter) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) >= b.blockSize {
		if err := b.Flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Buffered returns the number of uncompressed bytes not yet emitted as a
// block. At every granule boundary this must be zero for all streams.
func (b *BlockWriter) Buffered() int {
	return len(b.buf)
}

// Flush emits the buffered bytes as one compressed block. Flushing an empty
// buffer is a no-op, so forced block rotations at granule boundaries never
// produce empty blocks.
func (b *BlockWriter) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}

	payload, method, err := b.codec.Compress(b.buf)
	if err != nil {
		return err
	}
	if len(b.buf) > maxBlockRawSize || len(payload)+headerSize > maxBlockRawSize {
		return perrors.Newf(perrors.ErrorTypeInternal, "compressed block of %d bytes exceeds frame limits", len(b.buf))
	}

	frame := make([]byte, checksumSize+headerSize+len(payload))
	frame[checksumSize] = method
	binary.LittleEndian.PutUint32(frame[checksumSize+1:], uint32(headerSize+len(payload)))
	binary.LittleEndian.PutUint32(frame[checksumSize+5:], uint32(len(b.buf)))
	copy(frame[checksumSize+headerSize:], payload)

	sum := city.CH128(frame[checksumSize:])
	binary.LittleEndian.PutUint64(frame[0:], sum.Low)
	binary.LittleEndian.PutUint64(frame[8:], sum.High)

	if _, err := b.w.Write(frame); err != nil {
		return perrors.Wrap(err, perrors.ErrorTypeIO, "write compressed block")
	}

	b.buf = b.buf[:0]
	return nil
}

// Close flushes any trailing partial block. The underlying writer is not
// closed.
func (b *BlockWriter) Close() error {
	return b.Flush()
}

const maxBlockRawSize = 1<<32 - 1

// DecompressBlock decodes one framed block from the start of data, verifying
// its checksum. It returns the uncompressed payload and the number of frame
// bytes consumed, so back-to-back blocks can be walked.
func DecompressBlock(data []byte) (payload []byte, consumed int, err error) {
	if len(data) < checksumSize+headerSize {
		return nil, 0, perrors.New(perrors.ErrorTypeData, "compressed block too short")
	}

	stored := city.U128{
		Low:  binary.LittleEndian.Uint64(data[0:8]),
		High: binary.LittleEndian.Uint64(data[8:16]),
	}
	method := data[checksumSize]
	compSize := int(binary.LittleEndian.Uint32(data[checksumSize+1:]))
	rawSize := int(binary.LittleEndian.Uint32(data[checksumSize+5:]))

	total := checksumSize + compSize
	if compSize < headerSize || len(data) < total {
		return nil, 0, perrors.New(perrors.ErrorTypeData, "truncated compressed block")
	}
	if city.CH128(data[checksumSize:total]) != stored {
		return nil, 0, perrors.New(perrors.ErrorTypeData, "compressed block checksum mismatch")
	}

	body := data[checksumSize+headerSize : total]
	payload, err = decodeBody(method, body, rawSize)
	if err != nil {
		return nil, 0, err
	}
	if len(payload) != rawSize {
		return nil, 0, perrors.Newf(perrors.ErrorTypeData,
			"compressed block decodes to %d bytes, header says %d", len(payload), rawSize)
	}
	return payload, total, nil
}

func decodeBody(method byte, body []byte, rawSize int) ([]byte, error) {
	switch method {
	case methodNone:
		return append([]byte(nil), body...), nil
	case methodLZ4:
		dst := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.ErrorTypeData, "lz4 decompress")
		}
		return dst[:n], nil
	case methodZSTD:
		out, err := zstdDecoder().DecodeAll(body, nil)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.ErrorTypeData, "zstd decompress")
		}
		return out, nil
	case methodDeltaNone, methodDeltaLZ4, methodDeltaZSTD:
		if len(body) == 0 {
			return nil, perrors.New(perrors.ErrorTypeData, "delta block without width byte")
		}
		width := int(body[0])
		inner, err := decodeBody(method&^0x01, body[1:], rawSize)
		if err != nil {
			return nil, err
		}
		return deltaDecode(inner, width), nil
	default:
		return nil, perrors.Newf(perrors.ErrorTypeData, "unknown compression method 0x%02x", method)
	}
}
