package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"showtime-scraper/models"
)

type fakeShowtimeSource struct {
	mu       sync.Mutex
	failures map[string]error
	panics   map[string]bool
}

func (f *fakeShowtimeSource) Discover(_ context.Context, theater models.Theater, date string) ([]models.Showing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics[theater.CanonicalName] {
		panic("selector exploded")
	}
	if err, ok := f.failures[theater.CanonicalName]; ok {
		return nil, err
	}
	return []models.Showing{{
		TheaterID: theater.CanonicalName,
		FilmTitle: "The Heist",
		Showtime:  "7:30pm",
		Daypart:   models.DaypartPrime,
		TicketURL: fmt.Sprintf("https://tickets.example.com/%s/%s", theater.CanonicalName, date),
	}}, nil
}

type fakePriceSource struct {
	mu       sync.Mutex
	failures map[string]error
}

func (f *fakePriceSource) FetchPrices(_ context.Context, showing models.Showing) ([]models.TicketLineItem, models.CapacityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[showing.TicketURL]; ok {
		return nil, models.CapacityUnknown, err
	}
	return []models.TicketLineItem{{
		TheaterID: showing.TheaterID,
		FilmTitle: showing.FilmTitle,
		Showtime:  showing.Showtime,
		BaseType:  "Adult",
		Price:     14.50,
		Capacity:  models.CapacityAvailable,
	}}, models.CapacityAvailable, nil
}

func makeTheaters(n int) []models.Theater {
	out := make([]models.Theater, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Theater{CanonicalName: fmt.Sprintf("Theater %02d", i), Active: true})
	}
	return out
}

func TestHarvestShowtimesIsolatesFailures(t *testing.T) {
	theaters := makeTheaters(10)
	source := &fakeShowtimeSource{
		failures: map[string]error{"Theater 03": errors.New("schedule page timed out")},
	}
	agg := NewAggregator(source, nil, 4)

	results := agg.HarvestShowtimes(context.Background(), theaters, "2025-11-20", nil)

	require.Len(t, results, 10)
	ok := 0
	for name, r := range results {
		if name == "Theater 03" {
			require.Error(t, r.Err)
			continue
		}
		require.NoError(t, r.Err, "theater %s", name)
		require.Len(t, r.Showings, 1)
		ok++
	}
	require.Equal(t, 9, ok)
	require.Equal(t, []string{"Theater 03"}, FailedTheaters(results))
}

func TestHarvestShowtimesIsolatesPanics(t *testing.T) {
	theaters := makeTheaters(4)
	source := &fakeShowtimeSource{panics: map[string]bool{"Theater 01": true}}
	agg := NewAggregator(source, nil, 2)

	results := agg.HarvestShowtimes(context.Background(), theaters, "2025-11-20", nil)

	require.Len(t, results, 4)
	require.Error(t, results["Theater 01"].Err)
	require.NoError(t, results["Theater 00"].Err)
	require.NoError(t, results["Theater 02"].Err)
	require.NoError(t, results["Theater 03"].Err)
}

func TestHarvestShowtimesReportsProgress(t *testing.T) {
	theaters := makeTheaters(5)
	agg := NewAggregator(&fakeShowtimeSource{}, nil, 3)

	var mu sync.Mutex
	var calls int
	agg.HarvestShowtimes(context.Background(), theaters, "2025-11-20", func(done, total int, unit string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		require.Equal(t, 5, total)
		require.NotEmpty(t, unit)
	})
	require.Equal(t, 5, calls)
}

func TestHarvestShowtimesCancellation(t *testing.T) {
	theaters := makeTheaters(6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(&fakeShowtimeSource{}, nil, 2)
	results := agg.HarvestShowtimes(ctx, theaters, "2025-11-20", nil)

	// Every theater still gets a named entry so a retry can target the
	// ones that never ran.
	require.Len(t, results, 6)
}

func TestHarvestPricesSkipsFailedShowings(t *testing.T) {
	theater := models.Theater{CanonicalName: "Cityplex 10", Active: true}
	selections := []models.Showing{
		{TheaterID: "Cityplex 10", FilmTitle: "The Heist", Showtime: "1:15pm", TicketURL: "https://tickets.example.com/a"},
		{TheaterID: "Cityplex 10", FilmTitle: "The Heist", Showtime: "4:45pm", TicketURL: "https://tickets.example.com/b"},
		{TheaterID: "Cityplex 10", FilmTitle: "The Heist", Showtime: "8:00pm", TicketURL: "https://tickets.example.com/c"},
	}
	prices := &fakePriceSource{
		failures: map[string]error{"https://tickets.example.com/b": errors.New("payload missing")},
	}
	agg := NewAggregator(nil, prices, 2)

	run := agg.HarvestPrices(context.Background(), theater, selections, nil)

	require.Equal(t, 3, run.Attempted)
	require.Len(t, run.LineItems, 2)
	require.Equal(t, []string{"The Heist @ 4:45pm (Cityplex 10)"}, run.Failed)
}
