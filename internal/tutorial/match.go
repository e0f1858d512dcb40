package tutorial

import (
	"regexp"
	"strconv"
	"sync"
)

var idPatterns sync.Map // int -> *regexp.Regexp

// SummaryMatchesID reports whether summary names tutorial id after a colon:
// a colon, any run of non-colon characters, then id as a bare number. The id
// must not be part of a longer number, so id 1 matches "Group A: T1" but not
// "Group A: T10" or "Group A: T21".
func SummaryMatchesID(summary string, id int) bool {
	if id <= 0 {
		return false
	}
	return idPattern(id).MatchString(summary)
}

func idPattern(id int) *regexp.Regexp {
	if re, ok := idPatterns.Load(id); ok {
		return re.(*regexp.Regexp)
	}
	// The optional group must end in a non-digit, so the id either follows the
	// colon directly or follows a non-digit character.
	re := regexp.MustCompile(`:(?:[^:]*[^0-9:])?` + strconv.Itoa(id) + `(?:[^0-9]|$)`)
	actual, _ := idPatterns.LoadOrStore(id, re)
	return actual.(*regexp.Regexp)
}
