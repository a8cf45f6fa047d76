// Package checksum tracks per-file checksum entries for a written part. The
// durability and replication layers consume these to verify a part after a
// crash or before shipping it to a replica.
package checksum

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/city"
)

// Entry describes one physical file of a part.
type Entry struct {
	IsCompressed     bool
	UncompressedSize uint64
	UncompressedHash city.U128
	FileSize         uint64
	FileHash         city.U128
}

// Checksums is an insertion-ordered collection of per-file entries. Iteration
// order is the order entries were added, which makes serialized output
// reproducible for a given schema.
type Checksums struct {
	files map[string]Entry
	order []string
}

// New creates an empty checksum set.
func New() *Checksums {
	return &Checksums{files: make(map[string]Entry)}
}

// Add records the entry for a file, replacing any previous entry without
// disturbing insertion order.
func (c *Checksums) Add(name string, e Entry) {
	if _, ok := c.files[name]; !ok {
		c.order = append(c.order, name)
	}
	c.files[name] = e
}

// Get returns the entry for a file.
func (c *Checksums) Get(name string) (Entry, bool) {
	e, ok := c.files[name]
	return e, ok
}

// Files returns file names in insertion order.
func (c *Checksums) Files() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of entries.
func (c *Checksums) Len() int {
	return len(c.order)
}

// WriteTo serializes the checksum set as deterministic text, one file per
// line.
func (c *Checksums) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, name := range c.order {
		e := c.files[name]
		n, err := fmt.Fprintf(w, "%s compressed=%t size=%d hash=%016x%016x uncompressed_size=%d uncompressed_hash=%016x%016x\n",
			name, e.IsCompressed,
			e.FileSize, e.FileHash.High, e.FileHash.Low,
			e.UncompressedSize, e.UncompressedHash.High, e.UncompressedHash.Low)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// String returns the serialized text form.
func (c *Checksums) String() string {
	var b strings.Builder
	_, _ = c.WriteTo(&b)
	return b.String()
}
