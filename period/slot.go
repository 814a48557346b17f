package period

import (
	"fmt"
	"time"
)

const (
	// Storage layout of a slot, always UTC.
	keyLayout   = "2006-01-02T15:04:05Z"
	localLayout = "2006-01-02 15:04"

	Length = 30 * time.Minute
)

var location *time.Location

func init() {
	var err error
	location, err = time.LoadLocation("CET")
	if err != nil {
		panic(fmt.Sprintf("failed to load CET location: %v", err))
	}
}

// SetTimezone sets the zone whose wall clock defines the half-hour boundaries.
func SetTimezone(timezone string) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %s: %w", timezone, err)
	}
	location = loc
	return nil
}

func Location() *time.Location {
	return location
}

// Slot is a half-hour price period, identified by the UTC instant it starts at.
type Slot struct {
	start time.Time
}

// FromTime returns the slot containing t. The local minute and second
// remainder is subtracted from the absolute time, so DST transitions never
// produce an ambiguous wall clock.
func FromTime(t time.Time) Slot {
	if t.IsZero() {
		return Slot{}
	}
	local := t.In(location)
	rem := time.Duration(local.Minute()%30)*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return Slot{start: t.Add(-rem).UTC()}
}

func FromNow() Slot {
	return FromTime(time.Now())
}

// ParseKey parses a slot stored with Key.
func ParseKey(key string) (Slot, error) {
	t, err := time.Parse(keyLayout, key)
	if err != nil {
		return Slot{}, fmt.Errorf("parsing slot %q: %w", key, err)
	}
	return FromTime(t), nil
}

func (s Slot) Start() time.Time {
	return s.start
}

func (s Slot) End() time.Time {
	return s.start.Add(Length)
}

func (s Slot) Local() time.Time {
	return s.start.In(location)
}

// Key is the database representation of the slot.
func (s Slot) Key() string {
	return s.start.Format(keyLayout)
}

func (s Slot) String() string {
	return s.Local().Format(localLayout)
}

func (s Slot) Add(slots int) Slot {
	if s.IsZero() {
		return s
	}
	return Slot{start: s.start.Add(time.Duration(slots) * Length)}
}

func (s Slot) Compare(other Slot) int {
	return s.start.Compare(other.start)
}

func (s Slot) IsZero() bool {
	return s.start.IsZero()
}
