package backup

import (
	"errors"
	"time"

	"flashvault/bid"
	"flashvault/datamodel/chip"
	"flashvault/digest"
)

// SchemaVersion is bumped whenever the metadata record shape changes.
const SchemaVersion = 1

var ErrorNotIndexed = errors.New("backup not indexed")

// Region is one contiguous flash range covered by an artifact. Name is set
// when the region came from the partition table and empty for whole-device or
// explicit-range captures.
type Region struct {
	Name   string `cbor:"1,keyasint,omitempty" json:"name,omitempty"`
	Offset uint64 `cbor:"2,keyasint" json:"offset"`
	Length uint64 `cbor:"3,keyasint" json:"length"`
}

func (r *Region) End() uint64 {
	return r.Offset + r.Length
}

// Metadata is the sidecar record paired 1:1 with an artifact file. The pair
// shares a backup ID; neither is ever visible in the catalog without the
// other. Serialized as CBOR in the index and as JSON in the sidecar file.
type Metadata struct {
	ID            bid.ID        `cbor:"1,keyasint" json:"backup_id"`
	Chip          chip.Info     `cbor:"2,keyasint" json:"chip"`
	Regions       []Region      `cbor:"3,keyasint" json:"regions"`
	Checksum      digest.Digest `cbor:"4,keyasint" json:"checksum"`
	ByteSize      uint64        `cbor:"5,keyasint" json:"byte_size"`
	SchemaVersion int           `cbor:"6,keyasint" json:"schema_version"`
	CreatedAt     time.Time     `cbor:"7,keyasint" json:"created_at"`
}

// TotalLength sums the region lengths. For a well-formed record it equals
// ByteSize and the artifact file size.
func (m *Metadata) TotalLength() uint64 {
	var total uint64
	for i := range m.Regions {
		total += m.Regions[i].Length
	}
	return total
}

// Index defines the interface for the catalog's persistent metadata index.
// Mutations must be atomic: a record is either fully indexed under all its
// keys or not indexed at all.
type Index interface {
	// Put stores a metadata record, keyed both by ID and by creation time.
	Put(*Metadata) error

	// Get retrieves a record by backup ID.
	// It returns ErrorNotIndexed if no such record exists.
	Get(*bid.ID) (*Metadata, error)

	// Has checks whether a record exists for the given backup ID.
	Has(*bid.ID) (bool, error)

	// Delete removes a record and all its keys.
	// Deleting an absent record is not an error.
	Delete(*bid.ID) error

	// EnumerateByTime returns all records ordered by creation time, newest
	// first.
	EnumerateByTime() ([]*Metadata, error)

	// Close releases any resources held by the Index implementation.
	Close() error
}
