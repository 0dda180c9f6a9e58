package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"showtime-scraper/browser"
	"showtime-scraper/models"
	"showtime-scraper/taxonomy"
)

// ErrNoSeatingAreas means the ticket page rendered but its pricing
// payload held no seating areas. Absence of areas is a structural
// error, not an empty result.
var ErrNoSeatingAreas = errors.New("pricing payload has no seating areas")

// PriceHarvester turns a Showing's ticket page into classified
// TicketLineItems by extracting the embedded pricing JSON.
type PriceHarvester struct {
	pool       *browser.Pool
	classifier *taxonomy.Classifier
}

func NewPriceHarvester(pool *browser.Pool, classifier *taxonomy.Classifier) *PriceHarvester {
	return &PriceHarvester{pool: pool, classifier: classifier}
}

// pricingPayload is the embedded seat-pricing schema, validated once at
// the boundary. Only the first seating area (the primary/general
// admission area) is read.
type pricingPayload struct {
	SeatingAreas []seatingArea `json:"seatingAreas"`
}

type seatingArea struct {
	Name    string        `json:"name"`
	SoldOut bool          `json:"soldOut"`
	Tickets []ticketEntry `json:"tickets"`
}

type ticketEntry struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// pricingScript locates the embedded pricing JSON on the ticket page.
// The payload ships either in an application/json script tag or inline
// as a JS assignment; both are tried before giving up.
const pricingScript = `(() => {
	for (const node of document.querySelectorAll('script[type="application/json"]')) {
		const text = node.textContent || '';
		if (text.includes('seatingAreas')) return text;
	}
	for (const node of document.querySelectorAll('script:not([src])')) {
		const text = node.textContent || '';
		const idx = text.indexOf('seatingAreas');
		if (idx < 0) continue;
		const start = text.lastIndexOf('{', idx);
		if (start < 0) continue;
		let depth = 0;
		for (let i = start; i < text.length; i++) {
			if (text[i] === '{') depth++;
			else if (text[i] === '}') {
				depth--;
				if (depth === 0) return text.slice(start, i + 1);
			}
		}
	}
	return '';
})();`

// FetchPrices navigates to the showing's ticket URL and returns one
// line item per ticket record in the first seating area. Any failure to
// locate or decode the payload comes back as this showing's error with
// capacity Unknown; the caller treats it as a per-showing failure.
func (h *PriceHarvester) FetchPrices(ctx context.Context, showing models.Showing) ([]models.TicketLineItem, models.CapacityState, error) {
	if strings.TrimSpace(showing.TicketURL) == "" {
		return nil, models.CapacityUnknown, fmt.Errorf("showing %s %s has no ticket url", showing.FilmTitle, showing.Showtime)
	}

	var rawPayload string
	err := h.pool.WithPage(ctx, func(pageCtx context.Context) error {
		return chromedp.Run(pageCtx,
			chromedp.Navigate(showing.TicketURL),
			chromedp.WaitReady("body"),
			chromedp.Sleep(time.Second),
			chromedp.Evaluate(pricingScript, &rawPayload),
		)
	})
	if err != nil {
		return nil, models.CapacityUnknown, fmt.Errorf("navigate ticket page %s: %w", showing.TicketURL, err)
	}

	area, err := decodePrimaryArea(rawPayload)
	if err != nil {
		return nil, models.CapacityUnknown, err
	}

	capacity := models.CapacityAvailable
	if area.SoldOut {
		capacity = models.CapacitySoldOut
	}

	items := make([]models.TicketLineItem, 0, len(area.Tickets))
	for _, ticket := range area.Tickets {
		baseType, amenities := h.classifier.Parse(ticket.Description)
		items = append(items, models.TicketLineItem{
			TheaterID: showing.TheaterID,
			FilmTitle: showing.FilmTitle,
			Showtime:  showing.Showtime,
			BaseType:  baseType,
			Amenities: amenities,
			Price:     ticket.Price,
			Capacity:  capacity,
		})
	}
	return items, capacity, nil
}

// decodePrimaryArea validates the payload shape once and returns the
// first seating area.
func decodePrimaryArea(raw string) (seatingArea, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return seatingArea{}, errors.New("pricing payload not found on page")
	}
	var payload pricingPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return seatingArea{}, fmt.Errorf("malformed pricing payload: %w", err)
	}
	if len(payload.SeatingAreas) == 0 {
		return seatingArea{}, ErrNoSeatingAreas
	}
	return payload.SeatingAreas[0], nil
}
