// Command pulsar writes compact columnar parts from JSON-lines input.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pulsardb/pulsar/pkg/checksum"
	"github.com/pulsardb/pulsar/pkg/codec"
	"github.com/pulsardb/pulsar/pkg/index"
	"github.com/pulsardb/pulsar/pkg/logger"
	"github.com/pulsardb/pulsar/pkg/part"
	"github.com/pulsardb/pulsar/pkg/serialize"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "pulsar",
		Short:   "Compact columnar part writer",
		Version: version,
	}
	root.AddCommand(newWriteCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newWriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write [input.jsonl]",
		Short: "Write one part from JSON-lines rows",
		Long: `Reads one JSON object per line, maps fields onto the declared schema and
writes a compact part. With no input file, rows are read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetEnvPrefix("PULSAR")
			v.AutomaticEnv()
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return runWrite(cmd, args, v)
		},
	}

	flags := cmd.Flags()
	flags.String("schema", "", "comma separated name:type pairs, e.g. id:int64,name:string")
	flags.String("out", ".", "output directory for the part files")
	flags.String("codec", "lz4", "default compression codec, e.g. lz4, zstd(3), delta,lz4")
	flags.Uint64("granule-rows", 8192, "target rows per granule")
	flags.Int("batch-rows", 1024, "rows per ingestion batch")
	flags.Bool("compress-marks", false, "compress the marks file")
	flags.String("marks-codec", "zstd", "marks compression codec")
	flags.Bool("final-mark", true, "write a trailing synthetic mark")
	flags.Bool("sync", false, "fsync part files on finish")
	flags.String("primary-key", "", "column name to build the primary index on")
	flags.String("log-level", "info", "log level")

	return cmd
}

func runWrite(cmd *cobra.Command, args []string, v *viper.Viper) error {
	log, err := logger.New(logger.Config{Level: v.GetString("log-level")})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	columns, err := parseSchema(v.GetString("schema"))
	if err != nil {
		return err
	}

	defaultCodec, err := codec.ParseDescriptor(v.GetString("codec"))
	if err != nil {
		return err
	}
	marksCodec, err := codec.ParseDescriptor(v.GetString("marks-codec"))
	if err != nil {
		return err
	}

	outDir := v.GetString("out")
	settings := part.WriterSettings{
		DefaultCodec:  defaultCodec,
		GranuleRows:   v.GetUint64("granule-rows"),
		CompressMarks: v.GetBool("compress-marks"),
		MarksCodec:    marksCodec,
		WithFinalMark: v.GetBool("final-mark"),
		SyncOnFinish:  v.GetBool("sync"),
		Logger:        log,
	}

	if pk := v.GetString("primary-key"); pk != "" {
		pos := -1
		for i, cd := range columns {
			if cd.Name == pk {
				pos = i
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("primary key column %q not in schema", pk)
		}
		primary, err := index.NewPrimaryIndex(outDir, []index.KeyColumn{
			{Position: pos, Serialization: columns[pos].Serialization},
		})
		if err != nil {
			return err
		}
		settings.RewritePrimaryKey = true
		settings.PrimaryIndex = primary
	}

	writer, err := part.NewWriter(outDir, columns, settings)
	if err != nil {
		return err
	}

	input := cmd.InOrStdin()
	if len(args) == 1 {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	rows, err := ingest(writer, columns, input, v.GetInt("batch-rows"))
	if err != nil {
		return err
	}

	sums := checksum.New()
	if err := writer.FillChecksums(sums); err != nil {
		return err
	}
	if err := writer.Finish(); err != nil {
		return err
	}

	log.Info("part written",
		zap.String("dir", outDir),
		zap.Int64("rows", rows),
		zap.Uint64("marks", writer.Granularity().MarkCount()))
	fmt.Fprint(cmd.OutOrStdout(), sums.String())
	return nil
}

// parseSchema turns "id:int64,name:string" into ordered column descriptors.
func parseSchema(s string) ([]part.ColumnDescriptor, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	var columns []part.ColumnDescriptor
	for _, pair := range strings.Split(s, ",") {
		name, typeName, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("malformed schema entry %q", pair)
		}
		ser, err := serialize.ForType(typeName)
		if err != nil {
			return nil, err
		}
		columns = append(columns, part.ColumnDescriptor{Name: name, Serialization: ser})
	}
	return columns, nil
}

// ingest reads JSON-lines rows and feeds them to the writer in batches.
func ingest(writer *part.Writer, columns []part.ColumnDescriptor, r io.Reader, batchRows int) (int64, error) {
	if batchRows <= 0 {
		batchRows = 1024
	}

	types := make([]string, len(columns))
	for i, cd := range columns {
		switch cd.Serialization.(type) {
		case serialize.Int64Serialization:
			types[i] = "int64"
		case serialize.UInt64Serialization:
			types[i] = "uint64"
		case serialize.Float64Serialization:
			types[i] = "float64"
		default:
			types[i] = "string"
		}
	}

	batch, err := newBatch(types)
	if err != nil {
		return 0, err
	}

	var total int64
	pending := 0
	dec := json.NewDecoder(r)
	for {
		var row map[string]interface{}
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				break
			}
			return total, fmt.Errorf("parse row %d: %w", total+1, err)
		}

		for i, cd := range columns {
			if err := appendValue(batch[i], types[i], row[cd.Name]); err != nil {
				return total, fmt.Errorf("row %d, column %q: %w", total+1, cd.Name, err)
			}
		}
		total++
		pending++

		if pending >= batchRows {
			if err := writer.Write(batch); err != nil {
				return total, err
			}
			if batch, err = newBatch(types); err != nil {
				return total, err
			}
			pending = 0
		}
	}

	if pending > 0 {
		if err := writer.Write(batch); err != nil {
			return total, err
		}
	}
	return total, nil
}

func newBatch(types []string) ([]serialize.Column, error) {
	batch := make([]serialize.Column, len(types))
	for i, t := range types {
		col, err := serialize.NewColumn(t)
		if err != nil {
			return nil, err
		}
		batch[i] = col
	}
	return batch, nil
}

func appendValue(col serialize.Column, typeName string, value interface{}) error {
	switch c := col.(type) {
	case *serialize.Int64Column:
		n, err := toFloat(value)
		if err != nil {
			return err
		}
		c.Values = append(c.Values, int64(n))
	case *serialize.UInt64Column:
		n, err := toFloat(value)
		if err != nil {
			return err
		}
		c.Values = append(c.Values, uint64(n))
	case *serialize.Float64Column:
		n, err := toFloat(value)
		if err != nil {
			return err
		}
		c.Values = append(c.Values, n)
	case *serialize.StringColumn:
		s, _ := value.(string)
		if value != nil && s == "" {
			s = fmt.Sprint(value)
		}
		c.Values = append(c.Values, s)
	default:
		return fmt.Errorf("unsupported column type %q", typeName)
	}
	return nil
}

func toFloat(value interface{}) (float64, error) {
	switch n := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}
