package source

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
	"github.com/goodnatureofminers/txrefine7000/pkg/safe"
)

const parquetBatchSize = 256

// parquetRow is the flat columnar schema for batched transaction logs.
type parquetRow struct {
	Signature string `parquet:"signature,optional"`
	Sender    string `parquet:"sender,optional"`
	Status    string `parquet:"status"`
	Slot      int64  `parquet:"slot"`
	Value     int64  `parquet:"value"`
	Fee       int64  `parquet:"fee"`
	Payload   []byte `parquet:"payload,optional"`
}

// ParquetReader decodes records from a columnar batch file.
type ParquetReader struct {
	file   *os.File
	reader *parquet.GenericReader[parquetRow]
	path   string
	buf    []parquetRow
	pos    int
	row    int
	done   bool
}

// OpenParquet opens a columnar batch file for reading.
func OpenParquet(path string) (*ParquetReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &ParquetReader{
		file:   f,
		reader: parquet.NewGenericReader[parquetRow](f),
		path:   path,
		buf:    make([]parquetRow, 0, parquetBatchSize),
	}, nil
}

// Next returns the next decoded record, a *DecodeError for a row with invalid
// field values, or io.EOF when the file is exhausted.
func (r *ParquetReader) Next() (*model.Record, error) {
	for {
		if r.pos < len(r.buf) {
			row := r.buf[r.pos]
			r.pos++
			r.row++

			rec, err := decodeRow(row)
			if err != nil {
				size := len(row.Signature) + len(row.Sender) + len(row.Payload) + 3*8
				return nil, &DecodeError{File: r.path, Line: r.row, Bytes: size, Err: err}
			}
			rec.SourceFile = r.path
			return rec, nil
		}

		if r.done {
			return nil, io.EOF
		}

		r.buf = r.buf[:parquetBatchSize]
		n, err := r.reader.Read(r.buf)
		if err == io.EOF {
			r.done = true
		} else if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.path, err)
		}
		r.buf = r.buf[:n]
		r.pos = 0
	}
}

// Close closes the reader and the underlying file.
func (r *ParquetReader) Close() error {
	rerr := r.reader.Close()
	ferr := r.file.Close()
	if rerr != nil {
		return rerr
	}
	return ferr
}

func decodeRow(row parquetRow) (*model.Record, error) {
	var status model.Status
	switch row.Status {
	case "success":
		status = model.StatusSuccess
	case "failed":
		status = model.StatusFailed
	case "", "unknown":
		status = model.StatusUnknown
	default:
		return nil, fmt.Errorf("invalid status %q", row.Status)
	}

	value, err := safe.Uint64(row.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	fee, err := safe.Uint64(row.Fee)
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}
	slot, err := safe.Uint64(row.Slot)
	if err != nil {
		return nil, fmt.Errorf("slot: %w", err)
	}

	return &model.Record{
		Signature: row.Signature,
		Sender:    row.Sender,
		Status:    status,
		Payload:   row.Payload,
		Value:     value,
		Fee:       fee,
		Slot:      slot,
	}, nil
}
