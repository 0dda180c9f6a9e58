// Package directory holds the theater directory file: the mapping from
// market name to theater identity records that harvest runs resolve
// against. The file is read by many concurrent harvest tasks but only
// rewritten wholesale by the reconciliation workflow, so no in-file
// locking is needed.
package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"showtime-scraper/models"
)

// inactiveAfter is how many consecutive navigation failures mark a
// theater inactive.
const inactiveAfter = 3

// Directory maps market name -> theater canonical name -> record.
type Directory struct {
	Markets map[string]map[string]models.Theater `json:"markets"`
}

// Load reads the directory file. A missing file yields an empty
// directory rather than an error so first runs can bootstrap it.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Directory{Markets: map[string]map[string]models.Theater{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read theater directory: %w", err)
	}
	var d Directory
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse theater directory: %w", err)
	}
	if d.Markets == nil {
		d.Markets = map[string]map[string]models.Theater{}
	}
	return &d, nil
}

// Save rewrites the directory file wholesale via a temp-file rename.
func (d *Directory) Save(path string) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal theater directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write theater directory: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace theater directory: %w", err)
	}
	return nil
}

// Put stores a theater record under the market, replacing any previous
// record with the same canonical name.
func (d *Directory) Put(market string, theater models.Theater) {
	if d.Markets[market] == nil {
		d.Markets[market] = map[string]models.Theater{}
	}
	d.Markets[market][theater.CanonicalName] = theater
}

// Theaters returns the active theaters of a market, name-sorted so runs
// process them in a stable order.
func (d *Directory) Theaters(market string) []models.Theater {
	byName := d.Markets[market]
	out := make([]models.Theater, 0, len(byName))
	for _, t := range byName {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out
}

// AllTheaters returns every record across markets, market then name
// sorted. Used by the reconciliation rebuild.
func (d *Directory) AllTheaters() []models.Theater {
	var out []models.Theater
	markets := make([]string, 0, len(d.Markets))
	for m := range d.Markets {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	for _, m := range markets {
		byName := d.Markets[m]
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, byName[name])
		}
	}
	return out
}

// RecordFailure bumps the theater's consecutive-failure count, marking
// it inactive once it crosses the threshold. Returns the updated record.
func (d *Directory) RecordFailure(market, canonicalName string) (models.Theater, bool) {
	byName := d.Markets[market]
	t, ok := byName[canonicalName]
	if !ok {
		return models.Theater{}, false
	}
	t.FailCount++
	if t.FailCount >= inactiveAfter {
		t.Active = false
	}
	byName[canonicalName] = t
	return t, true
}

// RecordSuccess clears the theater's failure count after a good run.
func (d *Directory) RecordSuccess(market, canonicalName string) {
	byName := d.Markets[market]
	t, ok := byName[canonicalName]
	if !ok {
		return
	}
	t.FailCount = 0
	byName[canonicalName] = t
}
