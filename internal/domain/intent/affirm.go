package intent

import (
	"regexp"
	"strings"
)

// Yes/no classification for confirmation replies. The confirmation
// manager itself never sees the text; it only consumes the boolean
// produced here.

var (
	affirmativeWords = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "confirm": true,
		"confirmed": true, "correct": true, "affirmative": true,
		"sure": true, "ok": true, "okay": true, "proceed": true,
	}
	negativeWords = map[string]bool{
		"no": true, "nope": true, "cancel": true, "deny": true,
		"denied": true, "stop": true, "negative": true, "never": true,
		"don't": true, "dont": true, "abort": true,
	}
	affirmativePhrases = regexp.MustCompile(`(?i)^(go ahead|do it|please do|that's right|that is right|sounds good)\b`)
	negativePhrases    = regexp.MustCompile(`(?i)^(no thanks|not now|hold off|never mind|nevermind)\b`)
)

// IsAffirmative reports whether the utterance reads as a yes. A
// mixed or empty utterance is neither affirmative nor negative and
// leaves the confirmation pending.
func IsAffirmative(text string) bool {
	normalized := normalize(text)
	if normalized == "" {
		return false
	}
	if affirmativePhrases.MatchString(normalized) {
		return true
	}
	fields := tokens(normalized)
	for _, f := range fields {
		if negativeWords[f] {
			return false
		}
	}
	for _, f := range fields {
		if affirmativeWords[f] {
			return true
		}
	}
	return false
}

// IsNegative reports whether the utterance reads as a no.
func IsNegative(text string) bool {
	normalized := normalize(text)
	if normalized == "" {
		return false
	}
	if negativePhrases.MatchString(normalized) {
		return true
	}
	for _, f := range tokens(normalized) {
		if negativeWords[f] {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	return strings.Trim(lower, ".,!? ")
}

func tokens(normalized string) []string {
	fields := strings.Fields(normalized)
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".,!?;:")
	}
	return fields
}
