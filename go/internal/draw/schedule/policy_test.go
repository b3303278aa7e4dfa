package schedule

import (
	"testing"
	"time"
)

func mustPolicy(t *testing.T, mutate func(*Config)) *Policy {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPolicy(cfg)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p
}

func zurich(t *testing.T, year int, month time.Month, day, hour, min, sec int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(year, month, day, hour, min, sec, 0, loc)
}

func TestNextEligibleInstant(t *testing.T) {
	p := mustPolicy(t, nil)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"wednesday morning", zurich(t, 2025, 3, 5, 9, 0, 0), zurich(t, 2025, 3, 5, 20, 0, 0)},
		{"exactly at the instant", zurich(t, 2025, 3, 5, 20, 0, 0), zurich(t, 2025, 3, 9, 20, 0, 0)},
		{"inside the window", zurich(t, 2025, 3, 5, 20, 0, 30), zurich(t, 2025, 3, 9, 20, 0, 0)},
		{"one second before", zurich(t, 2025, 3, 5, 19, 59, 59), zurich(t, 2025, 3, 5, 20, 0, 0)},
		{"sunday night", zurich(t, 2025, 3, 9, 21, 0, 0), zurich(t, 2025, 3, 12, 20, 0, 0)},
		{"utc input", time.Date(2025, 3, 5, 19, 0, 0, 0, time.UTC), zurich(t, 2025, 3, 9, 20, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.NextEligibleInstant(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextEligibleInstant(%v) = %v, want %v", tt.now, got, tt.want)
			}
			if got.Location() != p.Location() {
				t.Errorf("location = %v, want %v", got.Location(), p.Location())
			}
		})
	}
}

func TestNextEligibleInstantAcrossDST(t *testing.T) {
	p := mustPolicy(t, nil)

	// Summer time starts on 2025-03-30; the draw stays at 20:00 local.
	got := p.NextEligibleInstant(zurich(t, 2025, 3, 27, 12, 0, 0))
	if want := time.Date(2025, 3, 30, 18, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got.UTC(), want)
	}
}

func TestInAdmissionWindow(t *testing.T) {
	slot := zurich(t, 2025, 3, 5, 20, 0, 0)

	tests := []struct {
		name string
		lead time.Duration
		now  time.Time
		ok   bool
	}{
		{"before the instant", 0, zurich(t, 2025, 3, 5, 19, 59, 59), false},
		{"at the instant", 0, slot, true},
		{"inside grace", 0, zurich(t, 2025, 3, 5, 20, 1, 30), true},
		{"grace boundary", 0, zurich(t, 2025, 3, 5, 20, 2, 0), true},
		{"after grace", 0, zurich(t, 2025, 3, 5, 20, 2, 1), false},
		{"non draw day", 0, zurich(t, 2025, 3, 6, 20, 0, 30), false},
		{"inside lead", time.Minute, zurich(t, 2025, 3, 5, 19, 59, 30), true},
		{"before lead", time.Minute, zurich(t, 2025, 3, 5, 19, 58, 59), false},
		{"sub-second after grace", 0, slot.Add(2*time.Minute + 500*time.Millisecond), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPolicy(t, func(c *Config) { c.Lead = tt.lead })
			got, ok := p.InAdmissionWindow(tt.now)
			if ok != tt.ok {
				t.Fatalf("InAdmissionWindow(%v) ok = %v, want %v", tt.now, ok, tt.ok)
			}
			if ok && !got.Equal(slot) {
				t.Errorf("slot = %v, want %v", got, slot)
			}
		})
	}
}

func TestRegistrationOpen(t *testing.T) {
	p := mustPolicy(t, nil)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"afternoon", zurich(t, 2025, 3, 5, 15, 0, 0), true},
		{"just before close", zurich(t, 2025, 3, 5, 19, 54, 59), true},
		{"closed", zurich(t, 2025, 3, 5, 19, 55, 0), false},
		{"during the draw", zurich(t, 2025, 3, 5, 19, 59, 59), false},
		{"reopens after the draw", zurich(t, 2025, 3, 5, 20, 0, 30), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.RegistrationOpen(tt.now); got != tt.want {
				t.Errorf("RegistrationOpen(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestStartOfDay(t *testing.T) {
	p := mustPolicy(t, nil)

	// 23:30 UTC on the 5th is already the 6th in Zurich.
	got := p.StartOfDay(time.Date(2025, 3, 5, 23, 30, 0, 0, time.UTC))
	if want := zurich(t, 2025, 3, 6, 0, 0, 0); !got.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", got, want)
	}
}

func TestNewPolicyRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"no weekdays", func(c *Config) { c.Weekdays = nil }},
		{"unknown weekday", func(c *Config) { c.Weekdays = []string{"caturday"} }},
		{"time format", func(c *Config) { c.Time = "8pm" }},
		{"negative grace", func(c *Config) { c.Grace = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewPolicy(cfg); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	p := mustPolicy(t, func(c *Config) { c.Weekdays = []string{"Wed", "sunday", "wed"} })
	if got, want := p.Describe(), "wednesday,sunday 20:00 Europe/Zurich"; got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}
