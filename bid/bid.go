package bid

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"
)

type Kind int

const (
	VersionV01 = 0x01

	KindFull      = 0x00 // Whole-device capture, region list covers [0, flash_size)
	KindPartition = 0x01 // Single named partition from the partition table
	KindRange     = 0x02 // Explicit offset/length range supplied by the caller

	PaddingByte = 0x5A
)

var ErrorInvalidIDString = errors.New("invalid backup ID string")
var ErrorInvalidIDFormat = errors.New("invalid backup ID format")

// Byte structure of an ID is as follows <version:1><padding:1><kind:1><random:32>
// Raw bytes are encoded by Base32. The payload is random rather than a content
// hash: two captures of identical flash contents must still be distinct
// catalog entries.

// ID holds the string representation of a backup ID as well as the cached kind
// and binary form. ID implements the MarshalBinary and UnmarshalBinary
// interfaces to assist CBOR encoding and avoid redundancy.
type ID struct {
	b [35]byte
	k Kind
	s string
}

func (id *ID) String() string {
	return id.s
}

func (id *ID) Kind() Kind {
	return id.k
}

func (id *ID) MarshalBinary() ([]byte, error) {
	return id.b[:], nil
}

func (id *ID) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return ErrorInvalidIDFormat
	}

	switch data[0] {
	case VersionV01:
		if len(data) != 35 {
			return ErrorInvalidIDString
		}
		if data[1] != PaddingByte {
			return ErrorInvalidIDString
		}
		id.k = Kind(data[2])
		id.s = base32.StdEncoding.EncodeToString(data)
		copy(id.b[:], data)
	default:
		return ErrorInvalidIDFormat
	}

	return nil
}

func (id *ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*id = *parsed
	return nil
}

func Encode(k Kind, payload [32]byte) (*ID, error) {
	idbytes := []byte{}

	// Add version, padding and kind
	idbytes = append(idbytes, byte(VersionV01))
	idbytes = append(idbytes, PaddingByte)
	idbytes = append(idbytes, byte(k))
	idbytes = append(idbytes, payload[:]...)

	id := &ID{
		k: k,
		s: base32.StdEncoding.EncodeToString(idbytes),
	}
	copy(id.b[:], idbytes)
	return id, nil
}

func FromString(s string) (*ID, error) {
	idBytes, err := base32.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	id := &ID{}
	if err := id.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}
	return id, nil
}

func FromStringMustParse(s string) *ID {
	id, err := FromString(s)
	if err != nil {
		log.Fatalf("Failed to parse backup ID: %v", err)
	}
	return id
}

// New generates a fresh random ID of the given kind.
func New(k Kind) (*ID, error) {
	buf := make([]byte, 32)
	_, err := rand.Read(buf)
	if err != nil {
		return nil, err
	}

	id, err := Encode(k, [32]byte(buf))
	if err != nil {
		return nil, err
	}

	return id, nil
}

// Equal helper
func (id *ID) Equal(other *ID) bool {
	if id == nil && other == nil {
		return true
	}
	if id == nil || other == nil {
		return false
	}
	return id.b == other.b
}
