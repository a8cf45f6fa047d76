package part

import (
	"go.uber.org/zap"

	"github.com/pulsardb/pulsar/pkg/checksum"
	"github.com/pulsardb/pulsar/pkg/codec"
	"github.com/pulsardb/pulsar/pkg/metrics"
	"github.com/pulsardb/pulsar/pkg/serialize"
)

// Part file names. The compact format stores all columns in one data file.
const (
	DataFileName = "data.bin"

	// DefaultMarksExtension names the companion marks file.
	DefaultMarksExtension = ".mrk3"

	defaultGranuleRows    = 8192
	defaultMarksBlockSize = 4096
)

// ColumnDescriptor declares one column of the part schema. Descriptor order
// is fixed for the lifetime of a part: it determines both the iteration order
// within every granule and the on-disk mark sequence.
type ColumnDescriptor struct {
	Name          string
	Serialization serialize.Serialization

	// Codec is the declared per-column codec. Zero resolves to the writer's
	// default codec.
	Codec codec.Descriptor
}

// GranuleIndexer consumes column projections and granule boundaries to build
// auxiliary indexes alongside the data file. Implementations own their output
// files and seal them in Finish.
type GranuleIndexer interface {
	Update(cols []serialize.Column, granules []Granule) error
	Finish(sums *checksum.Checksums) error
}

// WriterSettings configures a part writer. The zero value selects LZ4
// compression, uncompressed marks and the default granule size.
type WriterSettings struct {
	// DefaultCodec applies to columns without a declared codec.
	DefaultCodec codec.Descriptor

	// MaxCompressBlockSize bounds the uncompressed block size of the data
	// file streams. Zero selects codec.DefaultBlockSize.
	MaxCompressBlockSize int

	// GranuleRows is the target rows per granule.
	GranuleRows uint64

	// AdaptiveGranularity derives the per-block granule size from
	// IndexGranularityBytes and the block's in-memory row width, capped at
	// GranuleRows.
	AdaptiveGranularity   bool
	IndexGranularityBytes int64

	// CompressMarks wraps the marks file in a second compression layer.
	CompressMarks          bool
	MarksCodec             codec.Descriptor
	MarksCompressBlockSize int
	MarksFileExtension     string

	// WithFinalMark appends a trailing synthetic mark pointing at the end of
	// the data file so readers detect end-of-data without special-casing the
	// last real mark.
	WithFinalMark bool

	// RewritePrimaryKey enables the primary index collaborator.
	RewritePrimaryKey bool
	PrimaryIndex      GranuleIndexer

	// SkipIndexes are secondary index collaborators, finalized after the
	// primary index.
	SkipIndexes []GranuleIndexer

	// SyncOnFinish fsyncs the data and marks files before sealing them.
	SyncOnFinish bool

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

func (s *WriterSettings) withDefaults() WriterSettings {
	out := *s
	if out.GranuleRows == 0 {
		out.GranuleRows = defaultGranuleRows
	}
	if out.MarksFileExtension == "" {
		out.MarksFileExtension = DefaultMarksExtension
	}
	if out.MarksCompressBlockSize == 0 {
		out.MarksCompressBlockSize = defaultMarksBlockSize
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// MarksFileName returns the marks file name for the configured extension.
func (s *WriterSettings) MarksFileName() string {
	ext := s.MarksFileExtension
	if ext == "" {
		ext = DefaultMarksExtension
	}
	return "data" + ext
}
