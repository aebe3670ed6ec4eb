// Package model defines the record and classification types shared by the refinery pipeline.
package model

// Status is the execution outcome recorded for a transaction.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusFailed
)

// String returns the lowercase name used in logs and reports.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is one decoded transaction-log entry. Workers treat it as read-only
// once constructed; classification never mutates it.
type Record struct {
	RawBytes   []byte
	Signature  string
	Sender     string
	Status     Status
	Payload    []byte
	Value      uint64
	Fee        uint64
	Slot       uint64
	SourceFile string
}

// Size reports the record's source footprint for throughput accounting.
// Columnar rows carry no raw line bytes, so their size is estimated from the
// decoded fields.
func (r *Record) Size() int {
	if len(r.RawBytes) > 0 {
		return len(r.RawBytes)
	}
	return len(r.Signature) + len(r.Sender) + len(r.Payload) + 3*8
}
