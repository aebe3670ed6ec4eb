// Package source decodes transaction-log containers into records.
//
// Two container formats are supported: line-delimited JSON logs and columnar
// parquet files. Readers yield records lazily; per-record decode failures are
// reported as *DecodeError and never stop the stream.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

// Reader yields decoded records. Next returns io.EOF when the stream ends
// and *DecodeError for a malformed item; any other error is fatal for the
// reader. Readers are not safe for concurrent use.
type Reader interface {
	Next() (*model.Record, error)
	Close() error
}

// DecodeError is a recoverable per-record decode failure. Bytes carries the
// size of the malformed item so throughput accounting stays accurate.
type DecodeError struct {
	File  string
	Line  int
	Bytes int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s line %d: %v", e.File, e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Discover resolves the input path to the list of container files to process.
// A file path is returned as-is; a directory is scanned (non-recursively) for
// supported extensions. The result is sorted for a stable processing order.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jsonl", ".json", ".parquet":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Open returns the reader matching the file's container format.
func Open(path string) (Reader, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return OpenParquet(path)
	}
	return OpenJSONL(path)
}

// MultiReader concatenates readers over a list of files, opening each lazily.
type MultiReader struct {
	files   []string
	open    func(string) (Reader, error)
	current Reader
	idx     int
}

// NewMultiReader builds a reader over the discovered files.
func NewMultiReader(files []string) *MultiReader {
	return &MultiReader{files: files, open: Open}
}

// Next yields the next record across all files.
func (m *MultiReader) Next() (*model.Record, error) {
	for {
		if m.current == nil {
			if m.idx >= len(m.files) {
				return nil, io.EOF
			}
			r, err := m.open(m.files[m.idx])
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", m.files[m.idx], err)
			}
			m.current = r
			m.idx++
		}

		rec, err := m.current.Next()
		if err == io.EOF {
			if cerr := m.current.Close(); cerr != nil {
				m.current = nil
				return nil, cerr
			}
			m.current = nil
			continue
		}
		return rec, err
	}
}

// Close closes the reader currently in flight.
func (m *MultiReader) Close() error {
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}
