package period

import (
	"testing"
	"time"
)

func mustTimezone(t *testing.T, tz string) {
	t.Helper()
	prev := Location()
	if err := SetTimezone(tz); err != nil {
		t.Fatalf("SetTimezone(%q): %v", tz, err)
	}
	t.Cleanup(func() { location = prev })
}

func TestFromTimeBoundaries(t *testing.T) {
	mustTimezone(t, "Europe/Madrid")
	madrid := Location()

	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "exactly on boundary",
			input:    time.Date(2025, 1, 15, 14, 30, 0, 0, madrid),
			expected: "2025-01-15T13:30:00Z",
		},
		{
			name:     "one second after boundary",
			input:    time.Date(2025, 1, 15, 14, 30, 1, 0, madrid),
			expected: "2025-01-15T13:30:00Z",
		},
		{
			name:     "one second before boundary",
			input:    time.Date(2025, 1, 15, 14, 29, 59, 0, madrid),
			expected: "2025-01-15T13:00:00Z",
		},
		{
			name:     "nanoseconds are dropped",
			input:    time.Date(2025, 1, 15, 14, 59, 59, 999, madrid),
			expected: "2025-01-15T13:30:00Z",
		},
		{
			name:     "summer time offset",
			input:    time.Date(2025, 7, 1, 0, 10, 0, 0, madrid),
			expected: "2025-06-30T22:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromTime(tt.input).Key(); got != tt.expected {
				t.Errorf("FromTime(%s) got %q, wanted %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFromTimeHalfHourOffsetZone(t *testing.T) {
	// India is UTC+05:30, local half-hours fall on UTC full hours.
	mustTimezone(t, "Asia/Kolkata")
	utc := time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC) // 15:45 local
	got := FromTime(utc)
	if got.Key() != "2025-03-01T10:00:00Z" {
		t.Errorf("got %q, wanted %q", got.Key(), "2025-03-01T10:00:00Z")
	}
	if got.String() != "2025-03-01 15:30" {
		t.Errorf("got %q, wanted %q", got.String(), "2025-03-01 15:30")
	}
}

func TestFromTimeDSTFallBack(t *testing.T) {
	mustTimezone(t, "Europe/Madrid")
	// 2025-10-26 02:00-03:00 local happens twice; both passes map to distinct slots.
	first := time.Date(2025, 10, 26, 0, 45, 0, 0, time.UTC)  // 02:45 CEST
	second := time.Date(2025, 10, 26, 1, 45, 0, 0, time.UTC) // 02:45 CET
	a, b := FromTime(first), FromTime(second)
	if a.Key() != "2025-10-26T00:30:00Z" || b.Key() != "2025-10-26T01:30:00Z" {
		t.Errorf("got %q and %q", a.Key(), b.Key())
	}
}

func TestSlotAdd(t *testing.T) {
	mustTimezone(t, "UTC")
	s := FromTime(time.Date(2025, 1, 1, 23, 40, 0, 0, time.UTC))

	tests := []struct {
		name     string
		got      Slot
		expected string
	}{
		{"add crossing midnight", s.Add(1), "2025-01-02T00:00:00Z"},
		{"add several", s.Add(3), "2025-01-02T01:00:00Z"},
		{"add negative", s.Add(-2), "2025-01-01T22:30:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Key() != tt.expected {
				t.Errorf("got %q, wanted %q", tt.got.Key(), tt.expected)
			}
		})
	}

	if !(Slot{}).Add(5).IsZero() {
		t.Errorf("adding to a zero slot should stay zero")
	}
}

func TestSlotCompare(t *testing.T) {
	s := FromTime(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
	if s.Compare(s) != 0 {
		t.Errorf("slot should equal itself")
	}
	if s.Compare(s.Add(1)) != -1 || s.Add(1).Compare(s) != 1 {
		t.Errorf("unexpected ordering")
	}
}

func TestParseKey(t *testing.T) {
	s, err := ParseKey("2025-02-03T04:30:00Z")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if s.Key() != "2025-02-03T04:30:00Z" {
		t.Errorf("got %q", s.Key())
	}
	if s.End().Sub(s.Start()) != Length {
		t.Errorf("slot length got %s, wanted %s", s.End().Sub(s.Start()), Length)
	}

	if _, err := ParseKey("2025-02-03 04:30"); err == nil {
		t.Errorf("expected error for malformed key")
	}
}
