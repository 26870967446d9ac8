package leveldb

import (
	"errors"
	"testing"
	"time"

	"flashvault/bid"
	"flashvault/datamodel/backup"
	"flashvault/datamodel/chip"
	"flashvault/digest"
)

func openTestIndex(t *testing.T) *BackupIndex {
	t.Helper()
	idx, err := NewBackupIndex(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func createTestRecord(t *testing.T, createdAt time.Time) *backup.Metadata {
	t.Helper()
	id, err := bid.New(bid.KindFull)
	if err != nil {
		t.Fatal(err)
	}
	return &backup.Metadata{
		ID:            *id,
		Chip:          chip.Info{ChipID: "esp32-idx", FlashSize: 1 << 22},
		Regions:       []backup.Region{{Offset: 0, Length: 64}},
		Checksum:      digest.Compute([]byte(id.String())),
		ByteSize:      64,
		SchemaVersion: backup.SchemaVersion,
		CreatedAt:     createdAt,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	idx := openTestIndex(t)

	md := createTestRecord(t, time.Now().UTC())
	if err := idx.Put(md); err != nil {
		t.Fatal(err)
	}

	got, err := idx.Get(&md.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ID.Equal(&md.ID) {
		t.Fatalf("IDs do not match: %s != %s", got.ID.String(), md.ID.String())
	}
	if got.Checksum != md.Checksum {
		t.Fatalf("checksums do not match: %s != %s", got.Checksum, md.Checksum)
	}

	has, err := idx.Has(&md.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("Has returned false for an indexed record")
	}
}

func TestGetUnknownID(t *testing.T) {
	idx := openTestIndex(t)

	id, err := bid.New(bid.KindFull)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Get(id); !errors.Is(err, backup.ErrorNotIndexed) {
		t.Fatalf("expected ErrorNotIndexed, got %v", err)
	}
}

func TestEnumerateByTimeNewestFirst(t *testing.T) {
	idx := openTestIndex(t)

	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	// Insert out of chronological order on purpose
	middle := createTestRecord(t, base.Add(time.Hour))
	oldest := createTestRecord(t, base)
	newest := createTestRecord(t, base.Add(2*time.Hour))
	for _, md := range []*backup.Metadata{middle, oldest, newest} {
		if err := idx.Put(md); err != nil {
			t.Fatal(err)
		}
	}

	list, err := idx.EnumerateByTime()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if !list[0].ID.Equal(&newest.ID) || !list[1].ID.Equal(&middle.ID) || !list[2].ID.Equal(&oldest.ID) {
		t.Fatalf("records not ordered newest first: %s, %s, %s",
			list[0].ID.String(), list[1].ID.String(), list[2].ID.String())
	}
}

func TestDeleteRemovesBothKeys(t *testing.T) {
	idx := openTestIndex(t)

	md := createTestRecord(t, time.Now().UTC())
	if err := idx.Put(md); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(&md.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := idx.Get(&md.ID); !errors.Is(err, backup.ErrorNotIndexed) {
		t.Fatalf("expected ErrorNotIndexed after delete, got %v", err)
	}
	list, err := idx.EnumerateByTime()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("time key not deleted, enumeration returned %d records", len(list))
	}

	// Deleting an absent record is not an error
	if err := idx.Delete(&md.ID); err != nil {
		t.Fatal(err)
	}
}
