package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a local wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h). A single-digit hour ("9:05") is accepted.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// ClockOf returns the wall-clock time of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseWeekday accepts full or three-letter English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && name == full[:3]) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// Slot is the single tutorial occurrence a student is enrolled in.
// ID 0 means the slot has no id and only Day/Time identify it.
type Slot struct {
	ID   int
	Day  time.Weekday
	Time Clock
}

// NewSlot builds a Slot from its config representation.
func NewSlot(id int, day, clock string) (Slot, error) {
	if id < 0 {
		return Slot{}, fmt.Errorf("tutorial id must be positive, got %d", id)
	}
	d, err := ParseWeekday(day)
	if err != nil {
		return Slot{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return Slot{}, err
	}
	return Slot{ID: id, Day: d, Time: c}, nil
}

func (s Slot) HasID() bool {
	return s.ID > 0
}

// At reports whether t, as given, falls on the slot's weekday and wall-clock time.
// Callers convert t into the reference location first.
func (s Slot) At(t time.Time) bool {
	return t.Weekday() == s.Day && ClockOf(t) == s.Time
}

func (s Slot) String() string {
	if s.HasID() {
		return fmt.Sprintf("#%d %s %s", s.ID, s.Day, s.Time)
	}
	return fmt.Sprintf("%s %s", s.Day, s.Time)
}

// Entry is one registry item: a feed and the tutorial slot assigned within it.
type Entry struct {
	// Name labels the source in logs and reports.
	Name string
	URL  string
	Slot Slot
}
