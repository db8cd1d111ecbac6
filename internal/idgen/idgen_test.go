package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeBase36_Padding(t *testing.T) {
	got := EncodeBase36([]byte{0}, 6)
	if got != "000000" {
		t.Errorf("EncodeBase36(0) = %q, want zero padding", got)
	}
	if len(EncodeBase36([]byte{0xff, 0xff, 0xff, 0xff, 0xff}, 6)) != 6 {
		t.Error("encoded id should be truncated to requested length")
	}
}

func TestNewAt_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAt("iss", at, "title", "creator")
	b := NewAt("iss", at, "title", "creator")
	if a != b {
		t.Errorf("same inputs should produce the same id: %s != %s", a, b)
	}
	c := NewAt("iss", at.Add(time.Nanosecond), "title", "creator")
	if a == c {
		t.Error("different instants should produce different ids")
	}
	if !strings.HasPrefix(a, "iss-") {
		t.Errorf("id %q missing prefix", a)
	}
}
