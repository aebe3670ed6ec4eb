package filter

import (
	"bytes"
	"unicode/utf8"

	"github.com/goodnatureofminers/txrefine7000/internal/refinery/model"
)

// EncodingPredicate drops records whose payload is not well-formed text.
// The payload must be strictly valid UTF-8 and free of NUL bytes; an empty
// payload passes (not every transaction carries a memo).
type EncodingPredicate struct{}

func (EncodingPredicate) Check(r *model.Record) (model.Verdict, bool) {
	if len(r.Payload) == 0 {
		return 0, true
	}
	if !utf8.Valid(r.Payload) || bytes.IndexByte(r.Payload, 0) >= 0 {
		return model.VerdictDroppedMalformed, false
	}
	return 0, true
}
