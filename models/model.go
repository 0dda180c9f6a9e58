package models

// Daypart is the coarse time-of-day bucket used for pricing analysis.
type Daypart string

const (
	DaypartMatinee   Daypart = "Matinee"
	DaypartTwilight  Daypart = "Twilight"
	DaypartPrime     Daypart = "Prime"
	DaypartLateNight Daypart = "Late Night"
)

// CapacityState reports whether a showing still sells tickets.
type CapacityState string

const (
	CapacityAvailable CapacityState = "available"
	CapacitySoldOut   CapacityState = "sold_out"
	CapacityUnknown   CapacityState = "unknown"
)

// Theater binds an internally-known theater identity to its live listing.
type Theater struct {
	CanonicalName string `json:"canonical_name"`
	LiveName      string `json:"live_name"`
	URL           string `json:"url"`
	PostalCode    string `json:"postal_code,omitempty"`
	Company       string `json:"company,omitempty"`
	Active        bool   `json:"active"`
	// FailCount tracks consecutive navigation failures; the theater is
	// marked inactive once it crosses the directory's threshold.
	FailCount int `json:"fail_count,omitempty"`
}

// Showing is one film/time/format entry discovered on a schedule page.
// A re-scrape produces new Showings, it never mutates old ones.
type Showing struct {
	TheaterID  string   `json:"theater_id"`
	FilmTitle  string   `json:"film_title"`
	Showtime   string   `json:"showtime"` // local clock, e.g. "7:30pm"
	FormatTags []string `json:"format_tags"`
	IsPLF      bool     `json:"is_plf"`
	Daypart    Daypart  `json:"daypart"`
	TicketURL  string   `json:"ticket_url"`
}

// TicketLineItem is one classified ticket price for a showing.
type TicketLineItem struct {
	TheaterID string        `json:"theater_id"`
	FilmTitle string        `json:"film_title"`
	Showtime  string        `json:"showtime"`
	BaseType  string        `json:"base_type"`
	Amenities []string      `json:"amenities"`
	Price     float64       `json:"price"`
	Capacity  CapacityState `json:"capacity"`
}

// UnclassifiedFragment records ticket text the classifier could not map
// to a known base type. Consumed by a manual curation workflow.
type UnclassifiedFragment struct {
	RawText string `json:"raw_text"`
	Context string `json:"context"`
}

// TheaterMatchCandidate is one scored live listing considered during
// reconciliation. Ephemeral, scoped to a single Reconcile call.
type TheaterMatchCandidate struct {
	QueryName     string
	CandidateName string
	Score         float64
	CandidateURL  string
}
