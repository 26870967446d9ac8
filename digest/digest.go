// Package digest provides the single integrity checksum used everywhere an
// artifact is produced or checked: backup publication, restore validation and
// post-write verification. The algorithm is MD5 and is deliberately not
// pluggable, so no two call sites can ever disagree on what a checksum means.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
)

// Size is the digest length in bytes.
const Size = md5.Size

var ErrorInvalidDigestString = errors.New("invalid digest string")

// Digest is a fixed-size MD5 checksum. It marshals to a hex string in JSON
// and to raw bytes in binary encodings (CBOR).
type Digest [Size]byte

// Compute returns the digest of data.
func Compute(data []byte) Digest {
	return md5.Sum(data)
}

// Verify reports whether data hashes to want.
func Verify(data []byte, want Digest) bool {
	return Compute(data) == want
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) MarshalBinary() ([]byte, error) {
	return d[:], nil
}

func (d *Digest) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return ErrorInvalidDigestString
	}
	copy(d[:], data)
	return nil
}

func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FromString parses the hex representation produced by String.
func FromString(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(raw) != Size {
		return d, ErrorInvalidDigestString
	}
	copy(d[:], raw)
	return d, nil
}

// Writer accumulates a digest over a stream of chunks, so large transfers can
// be hashed without holding the whole artifact in memory.
type Writer struct {
	h hash.Hash
	n uint64
}

func NewWriter() *Writer {
	return &Writer{h: md5.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	w.n += uint64(n)
	return n, err
}

// Sum returns the digest of everything written so far.
func (w *Writer) Sum() Digest {
	var d Digest
	copy(d[:], w.h.Sum(nil))
	return d
}

// BytesWritten returns the total number of bytes hashed.
func (w *Writer) BytesWritten() uint64 {
	return w.n
}
