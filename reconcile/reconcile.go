package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"showtime-scraper/models"
	"showtime-scraper/taxonomy"
)

// Candidate is one live listing returned by a search stage.
type Candidate struct {
	Name string
	URL  string
}

// ListingSearcher queries the ticketing site's live listings.
type ListingSearcher interface {
	// SearchByPostalCode returns listings serving the postal code for a
	// near-future date.
	SearchByPostalCode(ctx context.Context, postalCode, date string) ([]Candidate, error)
	// SearchByName returns listings matching a free-text name query.
	SearchByName(ctx context.Context, name string) ([]Candidate, error)
}

// Match is an accepted reconciliation result.
type Match struct {
	Name  string
	URL   string
	Score float64
}

// ErrNoMatch means no candidate cleared the final threshold. It is an
// expected outcome recorded for manual review, not a failure.
var ErrNoMatch = errors.New("no matching live listing")

const (
	// DefaultAcceptThreshold is the stage-1 score below which the
	// free-text fallback search runs.
	DefaultAcceptThreshold = 75
	// DefaultFinalThreshold is the floor a best candidate must exceed to
	// be accepted. Kept at or below the accept threshold so marginal
	// fallback candidates can still land.
	DefaultFinalThreshold = 70
)

// Reconciler binds registry theaters to their best live listing with a
// two-stage scored search: postal code first (precise), then free-text
// name (broader) when the first stage scores low.
type Reconciler struct {
	searcher        ListingSearcher
	tax             *taxonomy.Taxonomy
	acceptThreshold float64
	finalThreshold  float64
}

func New(searcher ListingSearcher, tax *taxonomy.Taxonomy) *Reconciler {
	return &Reconciler{
		searcher:        searcher,
		tax:             tax,
		acceptThreshold: DefaultAcceptThreshold,
		finalThreshold:  DefaultFinalThreshold,
	}
}

// Reconcile finds the best live counterpart for the theater. A failed
// stage query yields zero candidates for that stage; the other stage
// still runs. ErrNoMatch when nothing clears the final threshold.
func (r *Reconciler) Reconcile(ctx context.Context, theater models.Theater, date string) (Match, error) {
	query := r.Normalize(theater.CanonicalName)

	var best models.TheaterMatchCandidate
	if theater.PostalCode != "" {
		candidates, err := r.searcher.SearchByPostalCode(ctx, theater.PostalCode, date)
		if err != nil {
			slog.Warn("postal-code search failed",
				"theater", theater.CanonicalName, "zip", theater.PostalCode, "error", err)
		}
		best = r.bestOf(query, candidates, best)
	}

	if best.Score < r.acceptThreshold {
		candidates, err := r.searcher.SearchByName(ctx, theater.CanonicalName)
		if err != nil {
			slog.Warn("name search failed", "theater", theater.CanonicalName, "error", err)
		}
		best = r.bestOf(query, candidates, best)
	}

	if best.CandidateName == "" || best.Score <= r.finalThreshold {
		slog.Info("reconciliation produced no match",
			"theater", theater.CanonicalName, "best_score", best.Score, "best", best.CandidateName)
		return Match{}, ErrNoMatch
	}
	return Match{Name: best.CandidateName, URL: best.CandidateURL, Score: best.Score}, nil
}

func (r *Reconciler) bestOf(query string, candidates []Candidate, best models.TheaterMatchCandidate) models.TheaterMatchCandidate {
	for _, c := range candidates {
		score := TokenSimilarity(query, r.Normalize(c.Name))
		if score > best.Score {
			best = models.TheaterMatchCandidate{
				QueryName:     query,
				CandidateName: c.Name,
				Score:         score,
				CandidateURL:  c.URL,
			}
		}
	}
	return best
}

// Normalize strips configured chain/brand/amenity tokens (case
// insensitive, whole word), drops punctuation, and collapses whitespace.
func (r *Reconciler) Normalize(name string) string {
	cleaned := strings.Map(func(c rune) rune {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			return unicode.ToLower(c)
		}
		return ' '
	}, name)

	var kept []string
	for _, token := range strings.Fields(cleaned) {
		if r.isBrandToken(token) {
			continue
		}
		kept = append(kept, token)
	}
	if len(kept) == 0 {
		// Every token was a brand token; fall back to the cleaned name so
		// chains named purely by brand still compare against something.
		return strings.Join(strings.Fields(cleaned), " ")
	}
	return strings.Join(kept, " ")
}

func (r *Reconciler) isBrandToken(token string) bool {
	for _, b := range r.tax.BrandTokens {
		if strings.EqualFold(token, b) {
			return true
		}
	}
	return false
}

// TokenSimilarity scores two normalized names 0-100, insensitive to
// token order: tokens are sorted before a Jaro-Winkler comparison.
func TokenSimilarity(a, b string) float64 {
	at := strings.Fields(a)
	bt := strings.Fields(b)
	sort.Strings(at)
	sort.Strings(bt)
	sa := strings.Join(at, " ")
	sb := strings.Join(bt, " ")
	if sa == "" && sb == "" {
		return 0
	}
	return matchr.JaroWinkler(sa, sb, false) * 100
}
