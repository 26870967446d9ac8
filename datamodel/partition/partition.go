package partition

import (
	"errors"
	"fmt"
	"sort"
)

var ErrorUnknownPartition = errors.New("unknown partition")
var ErrorEmptyPartition = errors.New("partition has zero length")
var ErrorPartitionOutOfRange = errors.New("partition exceeds flash size")
var ErrorPartitionOverlap = errors.New("partitions overlap")
var ErrorDuplicateName = errors.New("duplicate partition name")

// Descriptor is a single named, contiguous flash region.
type Descriptor struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

func (d *Descriptor) End() uint64 {
	return d.Offset + d.Length
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s @ 0x%06x +0x%x", d.Name, d.Offset, d.Length)
}

// Table is a static name -> (offset, length) mapping for a device. It is
// loaded from config and validated once against the flash size the chip
// reports; the engines only ever consult it through Resolve.
type Table struct {
	parts []Descriptor
}

func NewTable(parts []Descriptor) *Table {
	// Keep our own copy so the caller can't mutate the table underneath us
	t := &Table{parts: make([]Descriptor, len(parts))}
	copy(t.parts, parts)
	return t
}

// Default returns the stock 4 MiB ESP32 OTA layout.
func Default() *Table {
	return NewTable([]Descriptor{
		{Name: "nvs", Offset: 0x9000, Length: 0x5000},
		{Name: "otadata", Offset: 0xE000, Length: 0x2000},
		{Name: "app0", Offset: 0x10000, Length: 0x140000},
		{Name: "app1", Offset: 0x150000, Length: 0x140000},
		{Name: "spiffs", Offset: 0x290000, Length: 0x160000},
		{Name: "coredump", Offset: 0x3F0000, Length: 0x10000},
	})
}

// Validate checks every descriptor against the device flash size: unique
// names, nonzero length, in range, and no two regions overlapping.
func (t *Table) Validate(flashSize uint64) error {
	names := make(map[string]bool, len(t.parts))
	for i := range t.parts {
		d := &t.parts[i]
		if names[d.Name] {
			return fmt.Errorf("%w: %s", ErrorDuplicateName, d.Name)
		}
		names[d.Name] = true

		if d.Length == 0 {
			return fmt.Errorf("%w: %s", ErrorEmptyPartition, d.Name)
		}
		// Overflow-safe range check
		if d.Offset > flashSize || d.Length > flashSize-d.Offset {
			return fmt.Errorf("%w: %s (flash size 0x%x)", ErrorPartitionOutOfRange, d.String(), flashSize)
		}
	}

	// Sort a copy by offset and check adjacent pairs for overlap
	sorted := make([]Descriptor, len(t.parts))
	copy(sorted, t.parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Offset < sorted[i-1].End() {
			return fmt.Errorf("%w: %s and %s", ErrorPartitionOverlap, sorted[i-1].Name, sorted[i].Name)
		}
	}

	return nil
}

// Resolve looks up a partition by name.
func (t *Table) Resolve(name string) (*Descriptor, error) {
	for i := range t.parts {
		if t.parts[i].Name == name {
			d := t.parts[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrorUnknownPartition, name)
}

// Descriptors returns the table contents in declaration order.
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, len(t.parts))
	copy(out, t.parts)
	return out
}
