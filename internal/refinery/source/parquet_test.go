package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

func writeParquet(t *testing.T, rows []parquetRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := parquet.NewGenericWriter[parquetRow](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParquetReaderDecodes(t *testing.T) {
	path := writeParquet(t, []parquetRow{
		{Signature: "sig-1", Sender: "alice", Status: "success", Slot: 10, Value: 500, Fee: 5, Payload: []byte("memo")},
		{Signature: "sig-2", Sender: "bob", Status: "failed", Slot: 11, Value: 1},
		{Signature: "sig-3", Status: "unknown", Slot: 12},
	})

	r, err := OpenParquet(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rec, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Signature != "sig-1" || rec.Status != model.StatusSuccess {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.Sender != "alice" || rec.Value != 500 || rec.Fee != 5 || rec.Slot != 10 {
		t.Fatalf("fields = %q/%d/%d/%d", rec.Sender, rec.Value, rec.Fee, rec.Slot)
	}
	if string(rec.Payload) != "memo" {
		t.Fatalf("payload = %q", rec.Payload)
	}
	if rec.SourceFile != path {
		t.Fatalf("source file = %q", rec.SourceFile)
	}
	if rec.Size() == 0 {
		t.Fatal("columnar record size must be estimated, not zero")
	}

	rec, err = r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}

	rec, err = r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != model.StatusUnknown {
		t.Fatalf("status = %s, want unknown", rec.Status)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestParquetReaderRowDecodeError(t *testing.T) {
	path := writeParquet(t, []parquetRow{
		{Signature: "sig-bad", Status: "success", Value: -5},
		{Signature: "sig-ok", Status: "success", Value: 1},
	})

	r, err := OpenParquet(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = r.Next()
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
	if decodeErr.Bytes == 0 {
		t.Fatal("decode error must carry a byte estimate")
	}

	// The stream continues past the bad row.
	rec, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Signature != "sig-ok" {
		t.Fatalf("signature = %q, want sig-ok", rec.Signature)
	}
}

func TestDecodeRowInvalidStatus(t *testing.T) {
	if _, err := decodeRow(parquetRow{Status: "maybe"}); err == nil {
		t.Fatal("expected error for invalid status")
	}
}
