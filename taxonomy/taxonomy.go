package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Taxonomy is the ticket-type configuration: canonical base types and
// amenities with their alias keywords, the premium-format set, the
// residual-token ignore list, and the brand tokens stripped during
// theater-name normalization. Reloadable between runs.
type Taxonomy struct {
	BaseTypes      map[string][]string `yaml:"base_types"`
	Amenities      map[string][]string `yaml:"amenities"`
	PremiumFormats []string            `yaml:"premium_formats"`
	IgnoreTokens   []string            `yaml:"ignore_tokens"`
	BrandTokens    []string            `yaml:"brand_tokens"`
}

// Load reads and validates a taxonomy YAML file.
func Load(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(t.BaseTypes) == 0 {
		return nil, fmt.Errorf("taxonomy %s: no base types configured", path)
	}
	return &t, nil
}

// Default returns the built-in taxonomy used when no config file is given.
func Default() *Taxonomy {
	return &Taxonomy{
		BaseTypes: map[string][]string{
			"Adult":    {"adult", "general admission", "general"},
			"Child":    {"child", "children", "kid", "kids"},
			"Senior":   {"senior", "seniors", "62+"},
			"Student":  {"student", "students"},
			"Military": {"military", "veteran"},
			"Matinee":  {"matinee"},
		},
		Amenities: map[string][]string{
			"3D":           {"3d", "real d 3d", "reald 3d"},
			"IMAX":         {"imax"},
			"Dolby Cinema": {"dolby cinema", "dolby"},
			"4DX":          {"4dx"},
			"ScreenX":      {"screenx"},
			"D-BOX":        {"d-box", "dbox"},
			"Recliner":     {"recliner", "luxury lounger"},
			"Open Caption": {"open caption", "open captions"},
		},
		PremiumFormats: []string{
			"IMAX", "Dolby Cinema", "4DX", "ScreenX", "IMAX 70mm", "70mm",
		},
		IgnoreTokens: []string{
			"ticket", "tickets", "admission", "price", "each", "online", "fee",
		},
		BrandTokens: []string{
			"amc", "regal", "cinemark", "marcus", "harkins", "cmx",
			"cinema", "cinemas", "theatre", "theatres", "theater", "theaters",
			"movie", "movies", "luxury", "dine-in", "imax", "dolby", "grand",
		},
	}
}

// IsPremiumFormat reports whether label is in the premium-format set.
func (t *Taxonomy) IsPremiumFormat(label string) bool {
	for _, p := range t.PremiumFormats {
		if strings.EqualFold(strings.TrimSpace(label), p) {
			return true
		}
	}
	return false
}

// aliasRule is one keyword bound to its canonical name, kept in
// longest-keyword-first order so specific phrases win over substrings.
type aliasRule struct {
	canonical string
	keyword   string
}

func flattenRules(m map[string][]string) []aliasRule {
	var rules []aliasRule
	for canonical, aliases := range m {
		for _, a := range aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			rules = append(rules, aliasRule{canonical: canonical, keyword: a})
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].keyword) != len(rules[j].keyword) {
			return len(rules[i].keyword) > len(rules[j].keyword)
		}
		if rules[i].keyword != rules[j].keyword {
			return rules[i].keyword < rules[j].keyword
		}
		return rules[i].canonical < rules[j].canonical
	})
	return rules
}

func (t *Taxonomy) ignores(token string) bool {
	for _, ig := range t.IgnoreTokens {
		if strings.EqualFold(token, ig) {
			return true
		}
	}
	return false
}
