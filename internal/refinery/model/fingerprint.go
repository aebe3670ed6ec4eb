package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint is the fixed-width digest used for run-wide deduplication.
type Fingerprint [16]byte

// String returns the hex form used in logs and the persisted index.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintFromBytes rebuilds a fingerprint from its raw 16-byte form.
func FingerprintFromBytes(b []byte) (Fingerprint, error) {
	var f Fingerprint
	if len(b) != len(f) {
		return f, fmt.Errorf("fingerprint must be %d bytes, got %d", len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

// FingerprintPolicy selects which record fields are canonicalized into the
// fingerprint. Both policies are pure functions of record content.
type FingerprintPolicy string

const (
	// PolicySignature hashes the transaction signature. Records without a
	// signature fall back to content hashing so every record still gets a
	// deterministic fingerprint.
	PolicySignature FingerprintPolicy = "signature"

	// PolicyContent hashes sender, payload and transferred value, ignoring
	// slot and signature, so re-ingested near-duplicates collapse.
	PolicyContent FingerprintPolicy = "content"
)

// ParseFingerprintPolicy validates a policy name from configuration.
func ParseFingerprintPolicy(s string) (FingerprintPolicy, error) {
	switch FingerprintPolicy(s) {
	case PolicySignature, PolicyContent:
		return FingerprintPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown fingerprint policy %q (use %q or %q)", s, PolicySignature, PolicyContent)
	}
}

// Fingerprint computes the record's digest under the policy.
func (p FingerprintPolicy) Fingerprint(r *Record) Fingerprint {
	if p == PolicySignature && r.Signature != "" {
		return digest([]byte(r.Signature))
	}

	buf := make([]byte, 0, len(r.Sender)+len(r.Payload)+10)
	buf = append(buf, r.Sender...)
	buf = append(buf, 0)
	buf = append(buf, r.Payload...)
	buf = append(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, r.Value)
	return digest(buf)
}

func digest(b []byte) Fingerprint {
	h := xxh3.Hash128(b)
	var f Fingerprint
	binary.LittleEndian.PutUint64(f[:8], h.Lo)
	binary.LittleEndian.PutUint64(f[8:], h.Hi)
	return f
}
