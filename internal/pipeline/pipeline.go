// Package pipeline runs one full refresh: fetch every registry source, drop
// unassigned tutorials, merge and write the result.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"golang.org/x/sync/semaphore"

	"tutcal/internal/ics"
	appLog "tutcal/internal/log"
	"tutcal/internal/model"
	"tutcal/internal/tutorial"
)

// ErrNoSourcesSucceeded is returned when every registry source failed. The
// previous output file is left in place.
var ErrNoSourcesSucceeded = errors.New("pipeline: no source could be fetched")

// Fetcher downloads a raw feed.
type Fetcher interface {
	Fetch(ctx context.Context, src ics.Source) ([]byte, error)
}

// Writer persists the merged calendar.
type Writer interface {
	Write(cal *ical.Calendar) error
}

// EntrySource contributes extra entries that are merged after all registry
// sources, unfiltered.
type EntrySource interface {
	Name() string
	Calendar(ctx context.Context) (*ical.Calendar, error)
}

// Stage names the step at which a source failed.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
)

// SourceFailure records a skipped source.
type SourceFailure struct {
	Name  string
	Stage Stage
	Err   error
}

// Report summarizes one run.
type Report struct {
	Sources   int
	Succeeded int
	Failed    []SourceFailure
	// Kept and Discarded count VEVENTs seen by the filter.
	Kept               int
	Discarded          int
	ExtractionFailures int
	// Extras counts entry sources merged successfully.
	Extras int
	// Events is the number of VEVENTs in the written calendar.
	Events   int
	Duration time.Duration
}

// Runner wires the components of one run.
type Runner struct {
	Fetcher Fetcher
	Filter  tutorial.Filter
	Writer  Writer
	// Concurrency bounds simultaneous fetches. Values < 1 mean 1.
	Concurrency int
	ProdID      string
	Extras      []EntrySource
}

type sourceResult struct {
	cal     *ical.Calendar
	filter  tutorial.Result
	failure *SourceFailure
}

// Run processes entries and writes the merged calendar once.
//
// Sources are independent: each is fetched, parsed and filtered on its own,
// and a failure only removes that source from the output. The merged
// calendar keeps registry order whatever the completion order was.
func (r *Runner) Run(ctx context.Context, entries []model.Entry) (Report, error) {
	started := time.Now()
	rep := Report{Sources: len(entries)}

	results := r.collect(ctx, entries)

	cals := make([]*ical.Calendar, 0, len(entries)+len(r.Extras))
	for _, res := range results {
		if res.failure != nil {
			rep.Failed = append(rep.Failed, *res.failure)
			continue
		}
		rep.Succeeded++
		rep.Kept += res.filter.Kept
		rep.Discarded += res.filter.Discarded
		rep.ExtractionFailures += len(res.filter.Failures)
		cals = append(cals, res.cal)
	}

	if len(entries) > 0 && rep.Succeeded == 0 {
		rep.Duration = time.Since(started)
		return rep, ErrNoSourcesSucceeded
	}

	for _, extra := range r.Extras {
		cal, err := extra.Calendar(ctx)
		if err != nil {
			appLog.Error("entry source failed; skipping", err, "name", extra.Name())
			continue
		}
		rep.Extras++
		cals = append(cals, cal)
	}

	merged := ics.Merge(r.ProdID, cals...)
	rep.Events = ics.CountEvents(merged)

	if err := r.Writer.Write(merged); err != nil {
		rep.Duration = time.Since(started)
		return rep, err
	}

	rep.Duration = time.Since(started)
	return rep, nil
}

// collect runs fetch+parse+filter for every entry, at most r.Concurrency at a
// time. results[i] always belongs to entries[i].
func (r *Runner) collect(ctx context.Context, entries []model.Entry) []sourceResult {
	results := make([]sourceResult, len(entries))

	n := r.Concurrency
	if n < 1 {
		n = 1
	}
	sem := semaphore.NewWeighted(int64(n))

	var wg sync.WaitGroup
	for i, entry := range entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled: the remaining sources are not started.
			for j := i; j < len(entries); j++ {
				results[j].failure = &SourceFailure{Name: entries[j].Name, Stage: StageFetch, Err: err}
			}
			break
		}
		wg.Add(1)
		go func(i int, entry model.Entry) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = r.process(ctx, entry)
		}(i, entry)
	}
	wg.Wait()

	return results
}

func (r *Runner) process(ctx context.Context, entry model.Entry) sourceResult {
	src := ics.Source{Name: entry.Name, URL: entry.URL}

	body, err := r.Fetcher.Fetch(ctx, src)
	if err != nil {
		appLog.Error("ics fetch failed; skipping source", err, "name", entry.Name, "url", ics.RedactURL(entry.URL))
		return sourceResult{failure: &SourceFailure{Name: entry.Name, Stage: StageFetch, Err: err}}
	}

	cal, err := ics.Parse(entry.Name, body)
	if err != nil {
		appLog.Error("ics parse failed; skipping source", err, "name", entry.Name)
		return sourceResult{failure: &SourceFailure{Name: entry.Name, Stage: StageParse, Err: err}}
	}

	res := r.Filter.Apply(cal, entry.Slot)
	for _, xerr := range res.Failures {
		appLog.Debug("tutorial filter kept unreadable event", "name", entry.Name, "uid", xerr.UID, "field", xerr.Field, "err", xerr.Err)
	}
	appLog.Info("tutorial filter applied",
		"name", entry.Name,
		"slot", entry.Slot.String(),
		"kept", res.Kept,
		"discarded", res.Discarded,
		"unreadable", len(res.Failures),
	)

	return sourceResult{cal: cal, filter: res}
}
