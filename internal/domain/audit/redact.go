package audit

import "regexp"

// Redaction patterns for identifiers that must never land in an audit
// record verbatim. Order matters: the more specific patterns run
// before the generic numeric ones.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{regexp.MustCompile(`(?i)\bMRN[:\s#]*\d{5,10}\b`), "[MRN]"},
	{regexp.MustCompile(`(?i)\bDEA[:\s#]*[A-Z]{2}\d{7}\b`), "[DEA]"},
	{regexp.MustCompile(`(?i)\bNPI[:\s#]*\d{10}\b`), "[NPI]"},
	{regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])[/-](?:19|20)\d{2}\b`), "[DOB]"},
	{regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
	{regexp.MustCompile(`(?i)\b(?:member|policy|subscriber)[\s#:]*[A-Z0-9]{6,12}\b`), "[INSURANCE_ID]"},
	{regexp.MustCompile(`(?i)\b\d{1,5}\s+\w+(?:\s\w+)?\s+(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way)\b`), "[ADDRESS]"},
}

// Redact replaces known identifier shapes in s with category tags.
func Redact(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// RedactPayload returns a copy of payload with every string value
// redacted. Non-string values pass through untouched; callers are
// responsible for not packing identifiers into numbers.
func RedactPayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = Redact(val)
		case []string:
			rs := make([]string, len(val))
			for i, s := range val {
				rs[i] = Redact(s)
			}
			out[k] = rs
		default:
			out[k] = v
		}
	}
	return out
}
