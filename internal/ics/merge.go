package ics

import (
	ical "github.com/arran4/golang-ical"
)

// DefaultProductID is written as PRODID of merged calendars.
const DefaultProductID = "-//tutcal//Merged Timetable//EN"

// Merge concatenates the components of cals, in order, into a new calendar.
//
// Nothing is deduplicated or sorted, except that VTIMEZONE definitions are
// carried once per TZID (first wins) ahead of the other components, so that
// TZID references in events stay resolvable.
func Merge(prodID string, cals ...*ical.Calendar) *ical.Calendar {
	if prodID == "" {
		prodID = DefaultProductID
	}
	merged := ical.NewCalendar()
	merged.SetProductId(prodID)

	seenTZ := make(map[string]bool)
	var zones, rest []ical.Component

	for _, cal := range cals {
		if cal == nil {
			continue
		}
		for _, comp := range cal.Components {
			if comp == nil {
				continue
			}
			tz, ok := comp.(*ical.VTimezone)
			if !ok {
				rest = append(rest, comp)
				continue
			}
			id := timezoneID(tz)
			if seenTZ[id] {
				continue
			}
			seenTZ[id] = true
			zones = append(zones, comp)
		}
	}

	merged.Components = append(merged.Components, zones...)
	merged.Components = append(merged.Components, rest...)
	return merged
}

func timezoneID(tz *ical.VTimezone) string {
	if p := tz.GetProperty(ical.ComponentProperty(ical.PropertyTzid)); p != nil {
		return p.Value
	}
	return ""
}
