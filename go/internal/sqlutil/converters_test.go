package sqlutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNullRawMessage(t *testing.T) {
	if v := ToNullRawMessage(nil); v.Valid {
		t.Errorf("nil input should be NULL")
	}
	raw := json.RawMessage(`{"bypass":true}`)
	v := ToNullRawMessage(raw)
	if !v.Valid {
		t.Fatalf("expected valid value")
	}
	if got := string(FromNullRawMessage(v)); got != string(raw) {
		t.Errorf("round trip = %s, want %s", got, raw)
	}
}

func TestNullUUID(t *testing.T) {
	if got := FromNullUUID(ToNullUUID(nil)); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	id := uuid.New()
	if got := FromNullUUID(ToNullUUID(&id)); got == nil || *got != id {
		t.Errorf("expected %v, got %v", id, got)
	}
}

func TestUTCMicro(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2025, 3, 5, 20, 0, 0, 123456789, loc)
	got := UTCMicro(in)
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	if got.Nanosecond() != 123456000 {
		t.Errorf("nanos = %d, want 123456000", got.Nanosecond())
	}
}
