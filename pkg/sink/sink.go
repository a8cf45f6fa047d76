// Package sink provides durable byte sinks and hashing wrappers used by the
// part writer. A Sink is an append-only stream: bytes written are never
// retracted, and the sink reports the total byte count written so far so that
// callers can record absolute file offsets.
package sink

import (
	"bufio"
	"io"
	"os"

	perrors "github.com/pulsardb/pulsar/pkg/errors"
)

// Sink is an append-only output with offset accounting. Finalize flushes and
// seals the sink; after Finalize no further writes are valid.
type Sink interface {
	io.Writer

	// Count returns the total number of bytes written so far.
	Count() uint64

	// Sync flushes buffered bytes and forces them to durable storage.
	Sync() error

	// Finalize flushes buffered bytes and seals the sink. It is idempotent.
	Finalize() error
}

// FileSink is a buffered Sink over an os.File.
type FileSink struct {
	file      *os.File
	buf       *bufio.Writer
	count     uint64
	finalized bool
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates the file at path, truncating any previous content.
// bufSize <= 0 selects the bufio default.
func NewFileSink(path string, bufSize int) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrorTypeIO, "create sink file")
	}

	var buf *bufio.Writer
	if bufSize > 0 {
		buf = bufio.NewWriterSize(file, bufSize)
	} else {
		buf = bufio.NewWriter(file)
	}

	return &FileSink{file: file, buf: buf}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	if s.finalized {
		return 0, perrors.New(perrors.ErrorTypeIO, "write to finalized sink")
	}
	n, err := s.buf.Write(p)
	s.count += uint64(n)
	if err != nil {
		return n, perrors.Wrap(err, perrors.ErrorTypeIO, "sink write")
	}
	return n, nil
}

// Count returns the total number of bytes written so far.
func (s *FileSink) Count() uint64 {
	return s.count
}

// Sync flushes the buffer and fsyncs the file.
func (s *FileSink) Sync() error {
	if err := s.buf.Flush(); err != nil {
		return perrors.Wrap(err, perrors.ErrorTypeIO, "sink flush")
	}
	if err := s.file.Sync(); err != nil {
		return perrors.Wrap(err, perrors.ErrorTypeIO, "sink fsync")
	}
	return nil
}

// Finalize flushes the buffer and closes the file.
func (s *FileSink) Finalize() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	if err := s.buf.Flush(); err != nil {
		_ = s.file.Close()
		return perrors.Wrap(err, perrors.ErrorTypeIO, "sink flush")
	}
	if err := s.file.Close(); err != nil {
		return perrors.Wrap(err, perrors.ErrorTypeIO, "sink close")
	}
	return nil
}
