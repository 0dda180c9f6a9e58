package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"showtime-scraper/models"
	"showtime-scraper/taxonomy"
)

func TestDaypartBoundaries(t *testing.T) {
	testCases := []struct {
		clock string
		want  models.Daypart
	}{
		{"12:00am", models.DaypartLateNight},
		{"3:59am", models.DaypartLateNight},
		{"4:00am", models.DaypartMatinee},
		{"3:59pm", models.DaypartMatinee},
		{"4:00pm", models.DaypartTwilight},
		{"5:59pm", models.DaypartTwilight},
		{"6:00pm", models.DaypartPrime},
		{"9:00pm", models.DaypartPrime},
		{"9:01pm", models.DaypartLateNight},
		{"11:59pm", models.DaypartLateNight},
	}
	for _, tc := range testCases {
		minutes, ok := ParseClock(tc.clock)
		require.True(t, ok, "clock %q", tc.clock)
		require.Equal(t, tc.want, DaypartFor(minutes), "clock %q", tc.clock)
	}
}

func TestParseClock(t *testing.T) {
	testCases := []struct {
		token   string
		minutes int
		ok      bool
	}{
		{"1:15pm", 13*60 + 15, true},
		{"7:30 PM", 19*60 + 30, true},
		{"13:15", 13*60 + 15, true},
		{"12:00am", 0, true},
		{"12:30pm", 12*60 + 30, true},
		{"10:05AM", 10*60 + 5, true},
		{"", 0, false},
		{"Sold Out", 0, false},
		{"25:00", 0, false},
		{"13:15pm", 0, false},
		{"7:75pm", 0, false},
	}
	for _, tc := range testCases {
		minutes, ok := ParseClock(tc.token)
		require.Equal(t, tc.ok, ok, "token %q", tc.token)
		if tc.ok {
			require.Equal(t, tc.minutes, minutes, "token %q", tc.token)
		}
	}
}

func TestResolveFormats(t *testing.T) {
	require.Equal(t, []string{"IMAX"}, ResolveFormats([]string{"2D", "IMAX"}))
	require.Equal(t, []string{"2D"}, ResolveFormats([]string{"2D"}))
	require.Equal(t, []string{"2D"}, ResolveFormats([]string{"2D", "2d"}))
	require.Equal(t, []string{"IMAX", "3D"}, ResolveFormats([]string{"IMAX", "3D", "imax", ""}))
	require.Empty(t, ResolveFormats([]string{"", "  "}))
}

func TestBuildShowingDropsInvalidEntries(t *testing.T) {
	h := NewShowtimeHarvester(nil, taxonomy.Default(), nil)
	theater := models.Theater{CanonicalName: "Cityplex 10"}

	_, ok := h.buildShowing(theater, rawShowtime{
		Film: "Dune", Variant: "Dune", Time: "Sold Out",
		TicketURL: "https://tickets.example.com/1",
	})
	require.False(t, ok, "entry without a time token must be dropped")

	_, ok = h.buildShowing(theater, rawShowtime{
		Film: "Dune", Variant: "Dune", Time: "7:30pm",
	})
	require.False(t, ok, "entry without a ticket link must be dropped")
}

func TestBuildShowingMergesFormatContributions(t *testing.T) {
	h := NewShowtimeHarvester(nil, taxonomy.Default(), nil)
	theater := models.Theater{CanonicalName: "Cityplex 10"}

	showing, ok := h.buildShowing(theater, rawShowtime{
		Film:        "Oppenheimer",
		Variant:     "Oppenheimer - IMAX",
		Time:        "7:30pm",
		TicketURL:   "https://tickets.example.com/opp",
		GroupFormat: "IMAX",
		BlockTags:   "2D|Recliner",
		ButtonText:  "7:30pm",
	})
	require.True(t, ok)
	require.Equal(t, []string{"IMAX", "Recliner"}, showing.FormatTags)
	require.True(t, showing.IsPLF)
}

func TestDiscoverySampleDay(t *testing.T) {
	h := NewShowtimeHarvester(nil, taxonomy.Default(), nil)
	theater := models.Theater{CanonicalName: "Cityplex 10"}

	entries := []rawShowtime{
		{Film: "The Heist", Variant: "The Heist", Time: "13:15", TicketURL: "https://tickets.example.com/a", GroupFormat: "Standard"},
		{Film: "The Heist", Variant: "The Heist", Time: "16:45", TicketURL: "https://tickets.example.com/b", GroupFormat: "Standard"},
		{Film: "The Heist", Variant: "The Heist", Time: "20:00", TicketURL: "https://tickets.example.com/c", GroupFormat: "Dolby Cinema"},
	}

	var showings []models.Showing
	for _, e := range entries {
		s, ok := h.buildShowing(theater, e)
		require.True(t, ok)
		showings = append(showings, s)
	}

	require.Len(t, showings, 3)
	require.Equal(t, models.DaypartMatinee, showings[0].Daypart)
	require.Equal(t, models.DaypartTwilight, showings[1].Daypart)
	require.Equal(t, models.DaypartPrime, showings[2].Daypart)
	require.False(t, showings[0].IsPLF)
	require.False(t, showings[1].IsPLF)
	require.True(t, showings[2].IsPLF)
}
