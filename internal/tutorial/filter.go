// Package tutorial decides which auto-generated tutorial entries of a course
// feed belong to the student's assigned tutorial slot.
package tutorial

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"tutcal/internal/model"
)

// DefaultKeyword marks an event summary as a tutorial session.
const DefaultKeyword = "Tutorial"

// ErrFieldExtraction is matched (errors.Is) by every ExtractionError.
//
// Policy: an event whose fields cannot be extracted is always kept. Losing a
// real event is worse than showing a tutorial variant the student does not
// attend.
var ErrFieldExtraction = errors.New("tutorial: field extraction failed")

// ExtractionError describes why an event could not be classified.
type ExtractionError struct {
	UID   string
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tutorial: event %q: cannot read %s", e.UID, e.Field)
	}
	return fmt.Sprintf("tutorial: event %q: cannot read %s: %v", e.UID, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrFieldExtraction }

// Reason records which branch of the keep/discard rule decided an event.
type Reason int

const (
	ReasonNotTutorial Reason = iota
	ReasonIDMatch
	ReasonScheduleMatch
	ReasonExtractionFailed
	ReasonMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonNotTutorial:
		return "not_tutorial"
	case ReasonIDMatch:
		return "id_match"
	case ReasonScheduleMatch:
		return "schedule_match"
	case ReasonExtractionFailed:
		return "extraction_failed"
	case ReasonMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Decision is the outcome for a single event.
type Decision struct {
	Keep   bool
	Reason Reason
}

// Filter applies the tutorial rule against one assigned slot at a time.
type Filter struct {
	// Location is the reference zone for weekday and wall-clock extraction.
	// Nil means time.Local.
	Location *time.Location
	// Keyword marks tutorial candidates. Empty means DefaultKeyword.
	Keyword string
}

// Result summarizes one Apply call.
type Result struct {
	Kept      int
	Discarded int
	// Failures lists events kept because their fields could not be read.
	Failures []*ExtractionError
}

// Apply removes from cal every tutorial event that is not the assigned slot.
// Components other than VEVENT are left alone. cal is modified in place.
func (f Filter) Apply(cal *ical.Calendar, slot model.Slot) Result {
	var res Result
	if cal == nil {
		return res
	}

	kept := cal.Components[:0]
	for _, comp := range cal.Components {
		ev, ok := comp.(*ical.VEvent)
		if !ok {
			kept = append(kept, comp)
			continue
		}

		d, err := f.Decide(ev, slot)
		if err != nil {
			var xerr *ExtractionError
			if errors.As(err, &xerr) {
				res.Failures = append(res.Failures, xerr)
			}
		}
		if !d.Keep {
			res.Discarded++
			continue
		}
		res.Kept++
		kept = append(kept, comp)
	}
	// Drop references held by the tail of the old backing array.
	for i := len(kept); i < len(cal.Components); i++ {
		cal.Components[i] = nil
	}
	cal.Components = kept

	return res
}

// Decide classifies one event. A non-nil error is always an *ExtractionError
// and comes with a keep decision.
func (f Filter) Decide(ev *ical.VEvent, slot model.Slot) (Decision, error) {
	summary, start, err := f.extract(ev)
	if err != nil {
		return Decision{Keep: true, Reason: ReasonExtractionFailed}, err
	}

	if !strings.Contains(summary, f.keyword()) {
		return Decision{Keep: true, Reason: ReasonNotTutorial}, nil
	}
	if slot.HasID() && SummaryMatchesID(summary, slot.ID) {
		return Decision{Keep: true, Reason: ReasonIDMatch}, nil
	}
	if slot.At(start) {
		return Decision{Keep: true, Reason: ReasonScheduleMatch}, nil
	}
	return Decision{Keep: false, Reason: ReasonMismatch}, nil
}

// extract returns the summary and the start instant converted to f.Location.
func (f Filter) extract(ev *ical.VEvent) (string, time.Time, error) {
	if ev == nil {
		return "", time.Time{}, &ExtractionError{Field: "event"}
	}
	uid := eventUID(ev)

	p := ev.GetProperty(ical.ComponentPropertySummary)
	if p == nil {
		return "", time.Time{}, &ExtractionError{UID: uid, Field: "SUMMARY"}
	}
	if strings.TrimSpace(p.Value) == "" {
		return "", time.Time{}, &ExtractionError{UID: uid, Field: "SUMMARY", Err: errors.New("empty")}
	}

	dtstart := ev.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return "", time.Time{}, &ExtractionError{UID: uid, Field: "DTSTART"}
	}
	start, err := ev.GetStartAt()
	if err != nil {
		return "", time.Time{}, &ExtractionError{UID: uid, Field: "DTSTART", Err: err}
	}
	if start.IsZero() {
		return "", time.Time{}, &ExtractionError{UID: uid, Field: "DTSTART", Err: errors.New("zero time")}
	}

	loc := f.location()
	if isFloating(dtstart) {
		// The library reads floating times in time.Local; keep the wall clock
		// and pin it to the reference zone instead.
		start = time.Date(start.Year(), start.Month(), start.Day(),
			start.Hour(), start.Minute(), start.Second(), 0, loc)
	}
	return p.Value, start.In(loc), nil
}

// isFloating reports whether a date-time property has neither a UTC suffix
// nor a TZID parameter.
func isFloating(p *ical.IANAProperty) bool {
	if _, ok := p.ICalParameters[string(ical.ParameterTzid)]; ok {
		return false
	}
	return !strings.HasSuffix(strings.TrimSpace(p.Value), "Z")
}

func eventUID(ev *ical.VEvent) string {
	if p := ev.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return ""
}

func (f Filter) location() *time.Location {
	if f.Location == nil {
		return time.Local
	}
	return f.Location
}

func (f Filter) keyword() string {
	if f.Keyword == "" {
		return DefaultKeyword
	}
	return f.Keyword
}
