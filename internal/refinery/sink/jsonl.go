package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

const writerBufferBytes = 256 << 10

// JSONLWriter writes survivors as line-delimited JSON, one output file per
// source file (the partitioning key), all under the output directory. Records
// that carry their original line bytes are written verbatim; columnar records
// are re-encoded.
type JSONLWriter struct {
	dir     string
	logger  *zap.Logger
	writers map[string]*fileWriter
}

type fileWriter struct {
	file *os.File
	buf  *bufio.Writer
}

// NewJSONLWriter creates a writer rooted at the output directory.
func NewJSONLWriter(dir string, logger *zap.Logger) *JSONLWriter {
	return &JSONLWriter{
		dir:     dir,
		logger:  logger,
		writers: make(map[string]*fileWriter),
	}
}

// Write appends the record to the output file for its source file.
func (w *JSONLWriter) Write(ctx context.Context, r *model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fw, err := w.writerFor(r.SourceFile)
	if err != nil {
		return err
	}

	line := r.RawBytes
	if len(line) == 0 {
		line, err = encodeRecord(r)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	if _, err := fw.buf.Write(line); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := fw.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (w *JSONLWriter) writerFor(sourceFile string) (*fileWriter, error) {
	name := outputName(sourceFile)
	if fw, ok := w.writers[name]; ok {
		return fw, nil
	}

	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	w.logger.Debug("opened output file", zap.String("path", path))

	fw := &fileWriter{file: f, buf: bufio.NewWriterSize(f, writerBufferBytes)}
	w.writers[name] = fw
	return fw, nil
}

// Flush drains buffered output to disk for every open file.
func (w *JSONLWriter) Flush() error {
	for name, fw := range w.writers {
		if err := fw.buf.Flush(); err != nil {
			return fmt.Errorf("flush %s: %w", name, err)
		}
	}
	return nil
}

// Close flushes and closes every output file.
func (w *JSONLWriter) Close() error {
	var firstErr error
	for name, fw := range w.writers {
		if err := fw.buf.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush %s: %w", name, err)
		}
		if err := fw.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	w.writers = make(map[string]*fileWriter)
	return firstErr
}

// outputName keeps the source file's base name, normalizing columnar inputs
// to the line-delimited output extension.
func outputName(sourceFile string) string {
	name := filepath.Base(sourceFile)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "output.jsonl"
	}
	if strings.EqualFold(filepath.Ext(name), ".parquet") {
		return strings.TrimSuffix(name, filepath.Ext(name)) + ".jsonl"
	}
	return name
}

type outputRecord struct {
	Signature string `json:"signature,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Status    string `json:"status"`
	Slot      uint64 `json:"slot"`
	Value     uint64 `json:"value"`
	Fee       uint64 `json:"fee"`
	Memo      string `json:"memo,omitempty"`
}

func encodeRecord(r *model.Record) ([]byte, error) {
	return json.Marshal(outputRecord{
		Signature: r.Signature,
		Sender:    r.Sender,
		Status:    r.Status.String(),
		Slot:      r.Slot,
		Value:     r.Value,
		Fee:       r.Fee,
		Memo:      string(r.Payload),
	})
}
