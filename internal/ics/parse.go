package ics

import (
	"bytes"
	"errors"
	"fmt"

	ical "github.com/arran4/golang-ical"

	appLog "tutcal/internal/log"
)

// ParseError wraps a feed body that could not be decoded as iCalendar.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes one feed body. The returned calendar keeps every component
// and property so that serializing it again is lossless for untouched data.
func Parse(name string, body []byte) (*ical.Calendar, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ParseError{Source: name, Err: errors.New("empty body")}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}

	appLog.Debug("ics parse completed", "name", name, "components", len(cal.Components), "events", len(cal.Events()))
	return cal, nil
}

// CountEvents returns the number of VEVENT components in cal.
func CountEvents(cal *ical.Calendar) int {
	if cal == nil {
		return 0
	}
	return len(cal.Events())
}
