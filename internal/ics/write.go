package ics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ical "github.com/arran4/golang-ical"

	"tutcal/internal/atomicfile"
	appLog "tutcal/internal/log"
)

// WriteError reports which step of persisting the calendar failed.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write calendar: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer persists the merged calendar as Dir/Name.
type Writer struct {
	Dir  string
	Name string
	// Perm is applied to the output file. Zero means 0644.
	Perm fs.FileMode
}

// Path returns the output file path.
func (w Writer) Path() string {
	return filepath.Join(w.Dir, w.Name)
}

// Write serializes cal and atomically replaces the output file.
//
// Behavior:
//   - Creates Dir (and parents) if missing; an existing Dir is fine.
//   - Serializes with CRLF line endings.
//   - Writes to a temp file in Dir, fsyncs it, then renames it over Path().
//   - On any error the previous output file is left as it was.
func (w Writer) Write(cal *ical.Calendar) error {
	if cal == nil {
		return &WriteError{Op: "serialize", Path: w.Path(), Err: errors.New("calendar is nil")}
	}
	if w.Dir == "" || w.Name == "" {
		return &WriteError{Op: "config", Path: w.Path(), Err: errors.New("output directory and file name are required")}
	}
	perm := w.Perm
	if perm == 0 {
		perm = 0o644
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return &WriteError{Op: "mkdir", Path: w.Dir, Err: err}
	}

	data := []byte(cal.Serialize(ical.WithNewLineWindows))

	if err := atomicfile.WriteFile(w.Path(), data, perm); err != nil {
		var ae *atomicfile.Error
		if errors.As(err, &ae) {
			return &WriteError{Op: ae.Op, Path: ae.Path, Err: ae.Err}
		}
		return &WriteError{Op: "write", Path: w.Path(), Err: err}
	}

	appLog.Info("calendar written", "path", w.Path(), "bytes", len(data), "events", CountEvents(cal))
	return nil
}
