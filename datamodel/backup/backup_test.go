package backup

import (
	"encoding/json"
	"testing"
	"time"

	"flashvault/bid"
	"flashvault/datamodel/chip"
	"flashvault/digest"

	"github.com/fxamacker/cbor/v2"
)

func createTestMetadata(t *testing.T) *Metadata {
	t.Helper()
	id, err := bid.New(bid.KindPartition)
	if err != nil {
		t.Fatal(err)
	}
	return &Metadata{
		ID: *id,
		Chip: chip.Info{
			ChipID:     "esp32-d0wd-0b:4e:11",
			FlashSize:  4 * 1024 * 1024,
			SDKVersion: "v4.4.2",
		},
		Regions: []Region{
			{Name: "app0", Offset: 0x10000, Length: 0x100000},
		},
		Checksum:      digest.Compute([]byte("payload")),
		ByteSize:      0x100000,
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestMetadataCBORRoundTrip(t *testing.T) {
	md := createTestMetadata(t)

	enc, err := cbor.Marshal(md)
	if err != nil {
		t.Fatal(err)
	}

	var md2 Metadata
	if err := cbor.Unmarshal(enc, &md2); err != nil {
		t.Fatal(err)
	}

	if !md.ID.Equal(&md2.ID) {
		t.Fatalf("IDs do not match: %s != %s", md.ID.String(), md2.ID.String())
	}
	if md.Chip != md2.Chip {
		t.Fatalf("chip info does not match: %+v != %+v", md.Chip, md2.Chip)
	}
	if len(md2.Regions) != 1 || md2.Regions[0] != md.Regions[0] {
		t.Fatalf("regions do not match: %+v != %+v", md.Regions, md2.Regions)
	}
	if md.Checksum != md2.Checksum {
		t.Fatalf("checksums do not match: %s != %s", md.Checksum, md2.Checksum)
	}
	if !md.CreatedAt.Equal(md2.CreatedAt) {
		t.Fatalf("timestamps do not match: %v != %v", md.CreatedAt, md2.CreatedAt)
	}
}

func TestMetadataJSONShape(t *testing.T) {
	md := createTestMetadata(t)

	enc, err := json.Marshal(md)
	if err != nil {
		t.Fatal(err)
	}

	// The sidecar is read by external tooling, so the field names are part of
	// the contract.
	var raw map[string]any
	if err := json.Unmarshal(enc, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"backup_id", "chip", "regions", "checksum", "byte_size", "schema_version", "created_at"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("sidecar JSON missing %q key: %s", key, enc)
		}
	}

	var md2 Metadata
	if err := json.Unmarshal(enc, &md2); err != nil {
		t.Fatal(err)
	}
	if !md.ID.Equal(&md2.ID) || md.Checksum != md2.Checksum {
		t.Fatal("JSON round trip lost identity fields")
	}
}

func TestTotalLength(t *testing.T) {
	md := createTestMetadata(t)
	md.Regions = append(md.Regions, Region{Offset: 0x150000, Length: 0x2000})
	if md.TotalLength() != 0x102000 {
		t.Fatalf("TotalLength = 0x%x, want 0x102000", md.TotalLength())
	}
}
