// Package pulsar implements the write path of a compact columnar part format
// for a table storage engine.
//
// A part stores all columns of a row range in a single shared data file,
// interleaved at fixed-size row granules. Columns that resolve to the same
// compression codec multiplex into a shared compressed stream, and a companion
// marks file records, per granule and per column, the byte offsets required
// for random-access reads. End-to-end checksums (sizes plus 128-bit content
// hashes, on both the compressed and uncompressed side) are produced for
// crash-consistency verification and replication.
//
// The entry point is pkg/part.Writer. Supporting packages:
//
//   - pkg/codec:     compression codecs, descriptors and block framing
//   - pkg/serialize: column containers and bulk serializations
//   - pkg/sink:      durable byte sinks and hashing wrappers
//   - pkg/checksum:  per-file checksum accounting
//   - pkg/index:     primary-key and skip index writers
//
// The cmd/pulsar CLI writes parts from JSON-lines input.
package pulsar
