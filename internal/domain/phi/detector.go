package phi

import (
	"regexp"
	"strings"
)

// Categories used by the built-in detector. The policy treats the
// sensitive set as configuration; these are only the labels the regex
// detector can produce.
const (
	CategoryIdentifier = "identifier"
	CategoryName       = "name"
	CategoryMRN        = "mrn"
	CategorySSN        = "ssn"
	CategoryDOB        = "dob"
	CategoryDose       = "dose"
	CategoryContact    = "contact"
)

type detectRule struct {
	pattern  *regexp.Regexp
	category string
}

// detectRules run in order; the first match claims its span of text.
var detectRules = []detectRule{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), CategorySSN},
	{regexp.MustCompile(`(?i)\bMRN[:\s#]*\d{5,10}\b`), CategoryMRN},
	{regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])[/-](?:19|20)\d{2}\b`), CategoryDOB},
	{regexp.MustCompile(`(?i)\b(?:date of birth|born on)\b[^.,;]*`), CategoryDOB},
	{regexp.MustCompile(`(?i)\b(?:patient name|name is)\b[^.,;]*`), CategoryName},
	{regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:mg|mcg|ml|units?)\b`), CategoryDose},
	{regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), CategoryContact},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), CategoryContact},
}

// Detect splits text into content spans, marking the stretches that
// match an identifier shape. Adjacent clean text collapses into a
// single non-PHI span so the placeholder substitution stays readable.
func Detect(text string) []ContentSpan {
	type hit struct {
		start, end int
		category   string
	}

	var hits []hit
	claimed := make([]bool, len(text))
	for _, rule := range detectRules {
		for _, loc := range rule.pattern.FindAllStringIndex(text, -1) {
			overlap := false
			for i := loc[0]; i < loc[1]; i++ {
				if claimed[i] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				claimed[i] = true
			}
			hits = append(hits, hit{start: loc[0], end: loc[1], category: rule.category})
		}
	}

	if len(hits) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []ContentSpan{{Text: text}}
	}

	// order hits by position, then weave spans
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].start < hits[j-1].start; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	var spans []ContentSpan
	cursor := 0
	for _, h := range hits {
		if h.start > cursor {
			if chunk := text[cursor:h.start]; strings.TrimSpace(chunk) != "" {
				spans = append(spans, ContentSpan{Text: chunk})
			}
		}
		spans = append(spans, ContentSpan{
			Text:     text[h.start:h.end],
			IsPHI:    true,
			Category: h.category,
		})
		cursor = h.end
	}
	if cursor < len(text) {
		if chunk := text[cursor:]; strings.TrimSpace(chunk) != "" {
			spans = append(spans, ContentSpan{Text: chunk})
		}
	}
	return spans
}
