package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"showtime-scraper/models"
)

// Progress is an optional hook callers may pass to observe a run. It is
// invoked after every completed unit of work.
type Progress func(done, total int, unit string)

// ShowtimeSource is what the aggregator fans showtime discovery over.
type ShowtimeSource interface {
	Discover(ctx context.Context, theater models.Theater, date string) ([]models.Showing, error)
}

// PriceSource is what the aggregator fans price harvesting over.
type PriceSource interface {
	FetchPrices(ctx context.Context, showing models.Showing) ([]models.TicketLineItem, models.CapacityState, error)
}

// TheaterResult is one theater's outcome in a showtime run: either its
// Showings or the error that kept them from being collected.
type TheaterResult struct {
	Showings []models.Showing
	Err      error
}

// PriceRun is the outcome of a price harvest over selected showings.
// Failed names showings whose prices could not be collected, so callers
// can re-run just those.
type PriceRun struct {
	LineItems []models.TicketLineItem
	Attempted int
	Failed    []string
}

// Aggregator fans work out across a bounded worker set and merges
// per-unit outcomes. One unit's failure never blocks the others; the
// result set is always partial-success shaped.
type Aggregator struct {
	showtimes ShowtimeSource
	prices    PriceSource
	workers   int
}

func NewAggregator(showtimes ShowtimeSource, prices PriceSource, workers int) *Aggregator {
	if workers <= 0 {
		workers = 4
	}
	return &Aggregator{showtimes: showtimes, prices: prices, workers: workers}
}

// HarvestShowtimes discovers showings for every theater on the date.
// Results are keyed by theater name, not completion order. Cancellation
// is cooperative: units not yet started are marked with the context
// error, already-collected successes stay in the map.
func (a *Aggregator) HarvestShowtimes(ctx context.Context, theaters []models.Theater, date string, progress Progress) map[string]TheaterResult {
	type unit struct {
		theater models.Theater
	}
	type outcome struct {
		name   string
		result TheaterResult
	}

	jobs := make(chan unit)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes <- outcome{
					name:   job.theater.CanonicalName,
					result: a.discoverOne(ctx, job.theater, date),
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range theaters {
			select {
			case jobs <- unit{theater: t}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make(map[string]TheaterResult, len(theaters))
	done := 0
	for o := range outcomes {
		results[o.name] = o.result
		done++
		if progress != nil {
			progress(done, len(theaters), o.name)
		}
	}

	// Units never started due to cancellation still get a named entry so
	// the caller can re-run them selectively.
	for _, t := range theaters {
		if _, ok := results[t.CanonicalName]; !ok {
			results[t.CanonicalName] = TheaterResult{Err: ctx.Err()}
		}
	}
	return results
}

// discoverOne isolates a single theater's discovery: errors and panics
// become that theater's recorded failure, never the batch's.
func (a *Aggregator) discoverOne(ctx context.Context, theater models.Theater, date string) (result TheaterResult) {
	defer func() {
		if r := recover(); r != nil {
			result = TheaterResult{Err: fmt.Errorf("discovery panicked: %v", r)}
		}
	}()

	showings, err := a.showtimes.Discover(ctx, theater, date)
	if err != nil {
		slog.Warn("showtime discovery failed", "theater", theater.CanonicalName, "date", date, "error", err)
		return TheaterResult{Err: err}
	}
	slog.Debug("showtime discovery complete",
		"theater", theater.CanonicalName, "date", date, "showings", len(showings))
	return TheaterResult{Showings: showings}
}

// HarvestPrices collects classified line items for the selected
// showings of one theater. A failed showing produces a skipped line in
// Failed, not an aborted run.
func (a *Aggregator) HarvestPrices(ctx context.Context, theater models.Theater, selections []models.Showing, progress Progress) PriceRun {
	type outcome struct {
		key   string
		items []models.TicketLineItem
		err   error
	}

	jobs := make(chan models.Showing)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for showing := range jobs {
				items, err := a.fetchOne(ctx, showing)
				outcomes <- outcome{key: showingKey(showing), items: items, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, s := range selections {
			select {
			case jobs <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	run := PriceRun{}
	done := 0
	for o := range outcomes {
		run.Attempted++
		done++
		if o.err != nil {
			slog.Warn("price harvest failed",
				"theater", theater.CanonicalName, "showing", o.key, "error", o.err)
			run.Failed = append(run.Failed, o.key)
		} else {
			run.LineItems = append(run.LineItems, o.items...)
		}
		if progress != nil {
			progress(done, len(selections), o.key)
		}
	}
	sort.Strings(run.Failed)
	return run
}

func (a *Aggregator) fetchOne(ctx context.Context, showing models.Showing) (items []models.TicketLineItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("price harvest panicked: %v", r)
		}
	}()
	items, _, err = a.prices.FetchPrices(ctx, showing)
	return items, err
}

// FailedTheaters lists the theaters of a showtime run that recorded an
// error, sorted by name, for user-guided retry.
func FailedTheaters(results map[string]TheaterResult) []string {
	var failed []string
	for name, r := range results {
		if r.Err != nil {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

func showingKey(s models.Showing) string {
	return fmt.Sprintf("%s @ %s (%s)", s.FilmTitle, s.Showtime, s.TheaterID)
}
