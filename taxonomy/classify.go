package taxonomy

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"showtime-scraper/models"
)

// FragmentLogger receives descriptions the classifier could not map to a
// configured base type. Best effort: a panicking or failing logger never
// aborts classification.
type FragmentLogger func(models.UnclassifiedFragment)

// Classifier maps raw ticket descriptions to a canonical base type and a
// set of amenities via a three-pass, order-sensitive reduction.
type Classifier struct {
	tax          *Taxonomy
	amenityRules []compiledRule
	baseRules    []compiledRule
	logFragment  FragmentLogger
}

type compiledRule struct {
	canonical string
	re        *regexp.Regexp
}

var priceTokenRe = regexp.MustCompile(`^\$?\d[\d,]*(?:\.\d{1,2})?$`)

// NewClassifier compiles the taxonomy's alias keywords. Amenity and base
// type keywords are matched as whole-word, case-insensitive substrings,
// longer phrases before shorter ones.
func NewClassifier(t *Taxonomy, logFragment FragmentLogger) *Classifier {
	c := &Classifier{tax: t, logFragment: logFragment}
	for _, r := range flattenRules(t.Amenities) {
		c.amenityRules = append(c.amenityRules, compiledRule{r.canonical, wholeWordPattern(r.keyword)})
	}
	for _, r := range flattenRules(t.BaseTypes) {
		c.baseRules = append(c.baseRules, compiledRule{r.canonical, wholeWordPattern(r.keyword)})
	}
	return c
}

// Parse reduces description to (baseType, amenities). Amenities are
// matched independently and stripped first; then the first matching base
// type; then the residue is tokenized: with no base type found, the first
// residual token becomes an ad-hoc title-cased base type and is logged as
// unclassified (price-shaped tokens exempt), and every other residual
// token becomes an ad-hoc amenity unless it is on the ignore list.
// Empty input yields ("Unknown", nil) and is logged too.
func (c *Classifier) Parse(description string) (string, []string) {
	working := strings.TrimSpace(description)
	if working == "" {
		c.record(description, "empty description")
		return "Unknown", nil
	}

	amenitySet := map[string]struct{}{}
	for _, rule := range c.amenityRules {
		if rule.re.MatchString(working) {
			amenitySet[rule.canonical] = struct{}{}
			working = rule.re.ReplaceAllString(working, " ")
		}
	}

	baseType := ""
	for _, rule := range c.baseRules {
		if rule.re.MatchString(working) {
			baseType = rule.canonical
			working = rule.re.ReplaceAllString(working, " ")
			break
		}
	}

	for _, token := range residueTokens(working) {
		if baseType == "" {
			if priceTokenRe.MatchString(token) {
				continue
			}
			baseType = titleCase(token)
			c.record(description, "ad-hoc base type "+baseType)
			continue
		}
		if c.tax.ignores(token) || priceTokenRe.MatchString(token) {
			continue
		}
		amenitySet[titleCase(token)] = struct{}{}
	}

	if baseType == "" {
		baseType = "Unknown"
	}

	amenities := make([]string, 0, len(amenitySet))
	for a := range amenitySet {
		amenities = append(amenities, a)
	}
	sort.Strings(amenities)
	if len(amenities) == 0 {
		return baseType, nil
	}
	return baseType, amenities
}

func (c *Classifier) record(raw, context string) {
	if c.logFragment == nil {
		return
	}
	defer func() {
		// A broken diagnostics sink must not take classification down.
		_ = recover()
	}()
	c.logFragment(models.UnclassifiedFragment{RawText: raw, Context: context})
}

// wholeWordPattern builds a case-insensitive whole-word matcher for kw.
// Keywords that start or end with a non-word rune (e.g. "62+", "d-box")
// skip the boundary assertion on that side, since \b would never match.
func wholeWordPattern(kw string) *regexp.Regexp {
	q := regexp.QuoteMeta(kw)
	pre, post := `\b`, `\b`
	runes := []rune(kw)
	if !isWordRune(runes[0]) {
		pre = ``
	}
	if !isWordRune(runes[len(runes)-1]) {
		post = ``
	}
	return regexp.MustCompile(`(?i)` + pre + q + post)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// residueTokens trims punctuation and brackets from the remaining text
// and splits it into candidate tokens.
func residueTokens(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '[', ']', '{', '}', ',', ';', ':', '/', '&', '*', '-':
			return ' '
		}
		return r
	}, s)
	return strings.Fields(cleaned)
}

func titleCase(token string) string {
	runes := []rune(strings.ToLower(token))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
