package digest

import (
	"crypto/rand"
	"encoding/json"
	"testing"
)

func TestComputeKnownVector(t *testing.T) {
	// md5("abc") per RFC 1321 appendix A.5
	d := Compute([]byte("abc"))
	if d.String() != "900150983cd24fb0d6963f7d28e17f72" {
		t.Fatalf("unexpected digest: %s", d.String())
	}
	if !Verify([]byte("abc"), d) {
		t.Fatal("Verify rejected a matching digest")
	}
	if Verify([]byte("abd"), d) {
		t.Fatal("Verify accepted a non-matching digest")
	}
}

func TestWriterMatchesCompute(t *testing.T) {
	data := make([]byte, 256*1024)
	rand.Read(data)

	w := NewWriter()
	// Feed in uneven chunks to make sure chunking doesn't affect the result
	for off := 0; off < len(data); {
		n := 4096 + off%513
		if off+n > len(data) {
			n = len(data) - off
		}
		if _, err := w.Write(data[off : off+n]); err != nil {
			t.Fatal(err)
		}
		off += n
	}

	if w.Sum() != Compute(data) {
		t.Fatalf("streamed digest %s != one-shot digest %s", w.Sum(), Compute(data))
	}
	if w.BytesWritten() != uint64(len(data)) {
		t.Fatalf("BytesWritten = %d, want %d", w.BytesWritten(), len(data))
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := Compute([]byte("round trip"))

	enc, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}

	var d2 Digest
	if err := json.Unmarshal(enc, &d2); err != nil {
		t.Fatal(err)
	}
	if d != d2 {
		t.Fatalf("digests do not match: %s != %s", d, d2)
	}
}

func TestFromStringRejectsGarbage(t *testing.T) {
	if _, err := FromString("not-hex"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
	if _, err := FromString("abcd"); err == nil {
		t.Fatal("expected error for short input")
	}
}
