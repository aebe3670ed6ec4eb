package source

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
	"github.com/goodnatureofminers/txrefine7000/pkg/safe"
)

// Lines beyond this are treated as malformed rather than growing the buffer.
const maxLineBytes = 16 << 20

var errLineTooLong = errors.New("line too long")

// jsonlEntry mirrors the transaction-log line schema. Meta is optional;
// a line without meta has unknown status. MemoB64 carries raw payload bytes
// and takes precedence over the plain-text memo.
type jsonlEntry struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Meta      *struct {
		Err json.RawMessage `json:"err"`
		Fee int64           `json:"fee"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Value   int64  `json:"value"`
	Memo    string `json:"memo"`
	MemoB64 string `json:"memo_b64"`
}

// JSONLReader decodes one record per line from a line-delimited log file.
type JSONLReader struct {
	file   *os.File
	reader *bufio.Reader
	path   string
	line   int
}

// OpenJSONL opens a line-delimited log file for reading.
func OpenJSONL(path string) (*JSONLReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &JSONLReader{file: f, reader: bufio.NewReaderSize(f, 64<<10), path: path}, nil
}

// Next returns the next decoded record, a *DecodeError for a malformed line,
// or io.EOF at end of file. Blank lines are skipped. An over-long line is
// discarded and reported as a decode failure; the stream continues after it.
func (r *JSONLReader) Next() (*model.Record, error) {
	for {
		raw, size, err := r.readLine()
		switch {
		case err == errLineTooLong:
			r.line++
			return nil, &DecodeError{File: r.path, Line: r.line, Bytes: size, Err: err}
		case err == io.EOF && len(raw) == 0:
			return nil, io.EOF
		case err != nil && err != io.EOF:
			return nil, fmt.Errorf("read %s: %w", r.path, err)
		}

		r.line++
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		// The reader reuses its buffer; the record owns its bytes.
		line := make([]byte, len(raw))
		copy(line, raw)

		rec, derr := decodeLine(line)
		if derr != nil {
			return nil, &DecodeError{File: r.path, Line: r.line, Bytes: len(line), Err: derr}
		}
		rec.SourceFile = r.path
		return rec, nil
	}
}

// readLine reads up to the next newline without its terminator. A line past
// maxLineBytes is consumed to its end and reported as errLineTooLong with the
// total byte count, leaving the reader positioned at the following line.
func (r *JSONLReader) readLine() ([]byte, int, error) {
	chunk, err := r.reader.ReadSlice('\n')
	if err == nil || err == io.EOF {
		return trimEOL(chunk), len(chunk), err
	}
	if err != bufio.ErrBufferFull {
		return nil, 0, err
	}

	buf := append([]byte(nil), chunk...)
	size := len(chunk)
	for err == bufio.ErrBufferFull {
		chunk, err = r.reader.ReadSlice('\n')
		size += len(chunk)
		if len(buf) <= maxLineBytes {
			buf = append(buf, chunk...)
		}
	}
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	if size > maxLineBytes {
		return nil, size, errLineTooLong
	}
	return trimEOL(buf), size, err
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// Close closes the underlying file.
func (r *JSONLReader) Close() error {
	return r.file.Close()
}

func decodeLine(line []byte) (*model.Record, error) {
	var entry jsonlEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, err
	}

	status := model.StatusUnknown
	var fee uint64
	if entry.Meta != nil {
		if isJSONNull(entry.Meta.Err) {
			status = model.StatusSuccess
		} else {
			status = model.StatusFailed
		}
		var err error
		fee, err = safe.Uint64(entry.Meta.Fee)
		if err != nil {
			return nil, fmt.Errorf("fee: %w", err)
		}
	}

	value, err := safe.Uint64(entry.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}

	payload := []byte(entry.Memo)
	if entry.MemoB64 != "" {
		payload, err = base64.StdEncoding.DecodeString(entry.MemoB64)
		if err != nil {
			return nil, fmt.Errorf("memo_b64: %w", err)
		}
	}

	var sender string
	if keys := entry.Transaction.Message.AccountKeys; len(keys) > 0 {
		sender = keys[0]
	}

	return &model.Record{
		RawBytes:  line,
		Signature: entry.Signature,
		Sender:    sender,
		Status:    status,
		Payload:   payload,
		Value:     value,
		Fee:       fee,
		Slot:      entry.Slot,
	}, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
