package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"showtime-scraper/browser"
	"showtime-scraper/diagnostics"
	"showtime-scraper/models"
	"showtime-scraper/taxonomy"
)

// ShowtimeHarvester discovers every film/showtime/format a theater
// offers on a date by driving a pooled browser page over the theater's
// schedule URL.
type ShowtimeHarvester struct {
	pool    *browser.Pool
	tax     *taxonomy.Taxonomy
	diag    *diagnostics.Sink
	formats []formatMatcher
}

// formatMatcher recognizes one known format label inside free text such
// as a variant title ("Oppenheimer - IMAX 70mm").
type formatMatcher struct {
	label string
	re    *regexp.Regexp
}

func NewShowtimeHarvester(pool *browser.Pool, tax *taxonomy.Taxonomy, diag *diagnostics.Sink) *ShowtimeHarvester {
	h := &ShowtimeHarvester{pool: pool, tax: tax, diag: diag}

	labels := append([]string{}, tax.PremiumFormats...)
	for amenity := range tax.Amenities {
		labels = append(labels, amenity)
	}
	sort.Strings(labels)
	for _, label := range labels {
		h.formats = append(h.formats, formatMatcher{
			label: label,
			re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(label) + `\b`),
		})
	}
	return h
}

// rawShowtime is the per-button extraction payload produced by the page
// script before Go-side normalization.
type rawShowtime struct {
	Film        string `json:"film"`
	Variant     string `json:"variant"`
	Time        string `json:"time"`
	TicketURL   string `json:"ticketUrl"`
	GroupFormat string `json:"groupFormat"`
	BlockTags   string `json:"blockTags"`
	ButtonText  string `json:"buttonText"`
}

// showtimeScript handles both schedule layouts the site renders: (a)
// showtimes grouped under one presentation-format heading that applies
// to every film beneath it, and (b) films individually tagged with their
// own format/amenity badges. Each showtime button becomes one entry.
const showtimeScript = `(() => {
	const normalize = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const out = [];

	const groupFormatFor = (node) => {
		const group = node.closest('[data-format-group], .format-group, section[data-format]');
		if (!group) return '';
		const heading = group.querySelector('h2, h3, .format-heading, [data-testid="format-name"]');
		return normalize(heading ? heading.textContent : group.getAttribute('data-format'));
	};

	const films = Array.from(document.querySelectorAll(
		'[data-testid="film-block"], .movie-listing, .film-block, article.movie'));
	for (const film of films) {
		const titleNode = film.querySelector('h2, h3, .movie-title, [data-testid="film-title"]');
		const title = normalize(titleNode ? titleNode.textContent : '');
		if (!title) continue;

		const variantNode = film.querySelector('.variant-title, [data-testid="variant-title"]');
		const variant = normalize(variantNode ? variantNode.textContent : title);

		const tagNodes = Array.from(film.querySelectorAll(
			'.amenity-tag, .format-tag, [data-testid="amenity"], .attribute-badge'));
		const blockTags = tagNodes.map(n => normalize(n.textContent)).filter(Boolean).join('|');

		const buttons = Array.from(film.querySelectorAll(
			'a.showtime, a[data-testid="showtime-button"], .showtimes a, a[href*="ticket"]'));
		for (const btn of buttons) {
			out.push({
				film: title,
				variant: variant,
				time: normalize(btn.getAttribute('data-time') || btn.textContent),
				ticketUrl: normalize(btn.href),
				groupFormat: groupFormatFor(film),
				blockTags: blockTags,
				buttonText: normalize(btn.getAttribute('aria-label') || btn.textContent)
			});
		}
	}
	return out;
})();`

// Discover navigates to the theater's date-parameterized schedule page
// and returns its Showings. A navigation or parse failure is returned to
// the caller as this theater's error; it never aborts a batch. A page
// that loads fine but yields no showings has its markup snapshotted for
// offline debugging.
func (h *ShowtimeHarvester) Discover(ctx context.Context, theater models.Theater, date string) ([]models.Showing, error) {
	pageURL, err := scheduleURL(theater.URL, date)
	if err != nil {
		return nil, err
	}

	var raw []rawShowtime
	var html string
	err = h.pool.WithPage(ctx, func(pageCtx context.Context) error {
		return chromedp.Run(pageCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body"),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(showtimeScript, &raw),
			chromedp.OuterHTML("html", &html),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("navigate schedule %s: %w", pageURL, err)
	}

	showings := make([]models.Showing, 0, len(raw))
	for _, entry := range raw {
		showing, ok := h.buildShowing(theater, entry)
		if !ok {
			continue
		}
		showings = append(showings, showing)
	}

	if len(showings) == 0 {
		h.diag.SaveSnapshot(theater.CanonicalName, date, html)
	}
	return showings, nil
}

// buildShowing normalizes one raw entry. Entries without a parseable
// time token or a resolvable ticket link are dropped.
func (h *ShowtimeHarvester) buildShowing(theater models.Theater, entry rawShowtime) (models.Showing, bool) {
	minutes, ok := ParseClock(entry.Time)
	if !ok {
		return models.Showing{}, false
	}
	if strings.TrimSpace(entry.TicketURL) == "" {
		return models.Showing{}, false
	}

	contributions := h.titleFormats(entry.Variant)
	contributions = append(contributions, strings.Split(entry.BlockTags, "|")...)
	contributions = append(contributions, entry.GroupFormat)
	contributions = append(contributions, h.titleFormats(entry.ButtonText)...)
	tags := ResolveFormats(contributions)

	return models.Showing{
		TheaterID:  theater.CanonicalName,
		FilmTitle:  entry.Film,
		Showtime:   strings.TrimSpace(entry.Time),
		FormatTags: tags,
		IsPLF:      h.anyPremium(tags),
		Daypart:    DaypartFor(minutes),
		TicketURL:  entry.TicketURL,
	}, true
}

// titleFormats extracts known format labels embedded in variant-title or
// button text, e.g. "Oppenheimer - IMAX 70mm" contributes "IMAX 70mm".
func (h *ShowtimeHarvester) titleFormats(text string) []string {
	var out []string
	for _, m := range h.formats {
		if m.re.MatchString(text) {
			out = append(out, m.label)
		}
	}
	return out
}

func (h *ShowtimeHarvester) anyPremium(tags []string) bool {
	for _, tag := range tags {
		if h.tax.IsPremiumFormat(tag) {
			return true
		}
	}
	return false
}

// ResolveFormats de-duplicates format label contributions (case
// insensitive, first spelling wins) and drops the generic "2D" whenever
// any more specific label is present.
func ResolveFormats(contributions []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, c := range contributions {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	if len(out) > 1 {
		filtered := out[:0]
		for _, label := range out {
			if strings.EqualFold(label, "2D") {
				continue
			}
			filtered = append(filtered, label)
		}
		if len(filtered) > 0 {
			out = filtered
		}
	}
	return out
}

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(?i:(am|pm))?$`)

// ParseClock parses a local clock token ("1:15pm", "7:30 PM", "13:15")
// into minutes since midnight.
func ParseClock(token string) (int, bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return 0, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if minute > 59 {
		return 0, false
	}
	meridiem := strings.ToLower(m[3])
	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, false
		}
	}
	return hour*60 + minute, true
}

// DaypartFor buckets minutes-since-midnight into the pricing dayparts.
// Prime runs through 21:00 inclusive with Late Night resuming at 21:01,
// matching observed listing behavior.
func DaypartFor(minutes int) models.Daypart {
	switch {
	case minutes < 4*60:
		return models.DaypartLateNight
	case minutes < 16*60:
		return models.DaypartMatinee
	case minutes < 18*60:
		return models.DaypartTwilight
	case minutes <= 21*60:
		return models.DaypartPrime
	default:
		return models.DaypartLateNight
	}
}

func scheduleURL(base, date string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("theater url %q is not navigable", base)
	}
	q := u.Query()
	q.Set("date", date)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
