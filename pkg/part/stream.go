package part

import (
	"github.com/pulsardb/pulsar/pkg/codec"
	"github.com/pulsardb/pulsar/pkg/sink"
)

// compressedStream is one codec-identified output multiplexed into the shared
// plain data file. Writes pass through an uncompressed-side hashing wrapper
// into a block compressor that frames whole compressed blocks into the plain
// output. Streams are shared: every substream that resolves to the same codec
// identity writes here.
type compressedStream struct {
	// hashing tracks the uncompressed byte count and content hash.
	hashing *sink.HashingWriter
	// block buffers uncompressed bytes and emits framed compressed blocks.
	block *codec.BlockWriter
}

func newCompressedStream(plain *sink.HashingWriter, c codec.Codec, blockSize int) *compressedStream {
	block := codec.NewBlockWriter(plain, c, blockSize)
	return &compressedStream{
		hashing: sink.NewHashingWriter(block),
		block:   block,
	}
}

// rotate forces the current compressed block to end. A compressed block never
// straddles a codec switch or a granule boundary, so every (column, granule)
// pair decompresses in isolation.
func (s *compressedStream) rotate() error {
	return s.block.Flush()
}

// buffered returns the uncompressed bytes pending in the current block. At
// the start of every granule this is zero for all streams.
func (s *compressedStream) buffered() int {
	return s.block.Buffered()
}
