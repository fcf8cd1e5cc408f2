package eventlog

import (
	"bytes"
	"testing"

	"github.com/rzbill/rtm/pkg/id"
)

func TestKeyOrderingEntries(t *testing.T) {
	a := KeyStreamEntry("app::c", id.Position{Ms: 10, Seq: 5})
	b := KeyStreamEntry("app::c", id.Position{Ms: 11, Seq: 0})
	if !bytes.HasPrefix(a, KeyStreamPrefix("app::c")) {
		t.Fatalf("entry key should share the stream prefix")
	}
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected 10-5 < 11-0")
	}
	if positionFromKey(a) != (id.Position{Ms: 10, Seq: 5}) {
		t.Fatalf("position decode mismatch")
	}
}

func TestStreamRangesDoNotOverlap(t *testing.T) {
	inner := KeyStreamEntry("app::/a/b", id.Position{Ms: 1})
	if bytes.Compare(inner, KeyStreamPrefix("app::/a")) >= 0 && bytes.Compare(inner, KeyStreamEnd("app::/a")) < 0 {
		t.Fatalf("key of app::/a/b falls inside range of app::/a")
	}
	meta := KeyStreamMeta("app::/a")
	if bytes.Compare(meta, KeyStreamEnd("app::/a")) >= 0 {
		t.Fatalf("meta key outside stream range")
	}
}
