package ics

import (
	"context"
	"fmt"
	"os"

	ical "github.com/arran4/golang-ical"
)

// FileSource reads a local .ics file of personal entries that are merged
// into the output as they are.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string {
	return "file:" + s.Path
}

// Calendar reads and parses the file.
func (s FileSource) Calendar(ctx context.Context) (*ical.Calendar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return Parse(s.Name(), body)
}
