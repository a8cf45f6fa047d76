package sink

import (
	"io"

	"github.com/go-faster/city"
)

// HashingWriter wraps an io.Writer and maintains a running 128-bit content
// hash and a byte count of everything written through it. The hash is folded
// chunk-by-chunk with CityHash128 seeded by the previous value, so it is
// deterministic for a fixed sequence of Write calls.
type HashingWriter struct {
	w     io.Writer
	count uint64
	sum   city.U128
}

// NewHashingWriter wraps w.
func NewHashingWriter(w io.Writer) *HashingWriter {
	return &HashingWriter{w: w}
}

func (h *HashingWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	if n > 0 {
		h.sum = city.CH128Seed(p[:n], h.sum)
		h.count += uint64(n)
	}
	return n, err
}

// Count returns the total number of bytes written through the wrapper.
func (h *HashingWriter) Count() uint64 {
	return h.count
}

// Sum returns the running 128-bit content hash.
func (h *HashingWriter) Sum() city.U128 {
	return h.sum
}
