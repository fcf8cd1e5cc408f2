package eventlog

import (
	"errors"
	"testing"
)

func TestEntryRoundTrip(t *testing.T) {
	for _, tc := range []struct{ header, payload string }{
		{"h", `{"action":"rtm/publish"}`},
		{"", "p"},
		{"", ""},
	} {
		h, p, err := decodeEntry(encodeEntry([]byte(tc.header), []byte(tc.payload)))
		if err != nil {
			t.Fatalf("decode %q/%q: %v", tc.header, tc.payload, err)
		}
		if string(h) != tc.header || string(p) != tc.payload {
			t.Fatalf("got %q/%q", h, p)
		}
	}
}

func TestEntryCorruption(t *testing.T) {
	good := encodeEntry([]byte("x"), []byte("y"))

	flipped := append([]byte(nil), good...)
	flipped[3] ^= 0xFF
	if _, _, err := decodeEntry(flipped); !errors.Is(err, errChecksum) {
		t.Fatalf("want checksum error, got %v", err)
	}

	other := append([]byte(nil), good...)
	other[0] = 9
	if _, _, err := decodeEntry(other); !errors.Is(err, errEntryFormat) {
		t.Fatalf("want format error, got %v", err)
	}

	if _, _, err := decodeEntry(good[:3]); !errors.Is(err, errShortEntry) {
		t.Fatalf("want short entry, got %v", err)
	}
}
