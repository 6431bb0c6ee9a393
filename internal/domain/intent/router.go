package intent

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

type rulePattern struct {
	re   *regexp.Regexp
	base float64
}

// RuleRouter is the default classifier: regex tables over the clinical
// vocabulary, no network dependency. Confidence is the pattern's base
// weight nudged up when the match sits near the start of the
// utterance.
type RuleRouter struct {
	patterns map[string][]rulePattern
	labNames map[string]string
}

func NewRuleRouter() *RuleRouter {
	return &RuleRouter{
		patterns: buildPatterns(),
		labNames: buildLabLexicon(),
	}
}

func buildPatterns() map[string][]rulePattern {
	return map[string][]rulePattern{
		IntentAddToNote: {
			{regexp.MustCompile(`(?i)add to (hpi|history|ros|review|exam|assessment|plan|consent)`), 0.9},
			{regexp.MustCompile(`(?i)document (that|the)`), 0.7},
			{regexp.MustCompile(`(?i)note that`), 0.6},
			{regexp.MustCompile(`(?i)record verbal consent`), 0.9},
		},
		IntentOrderLabs: {
			{regexp.MustCompile(`(?i)order (a |an )?(\w+)`), 0.8},
			{regexp.MustCompile(`(?i)\b(cbc|bmp|cmp|tsh|a1c|lipid|ua)\b`), 0.9},
			{regexp.MustCompile(`(?i)(stat|routine|urgent) (lab|labs)`), 0.85},
		},
		IntentCheckAllergies: {
			{regexp.MustCompile(`(?i)(any |check )?(drug |medication )?allerg`), 0.95},
			{regexp.MustCompile(`(?i)allergic to`), 0.9},
			{regexp.MustCompile(`(?i)adverse reaction`), 0.8},
		},
		IntentRetrieveLabs: {
			{regexp.MustCompile(`(?i)(show|pull|get|retrieve) (the )?(last|recent|latest)`), 0.85},
			{regexp.MustCompile(`(?i)\b(potassium|sodium|glucose|creatinine|hemoglobin)\b`), 0.8},
			{regexp.MustCompile(`(?i)lab (result|value|trend)`), 0.9},
		},
		IntentCreateSOAPNote: {
			{regexp.MustCompile(`(?i)(create|generate|write|summarize).*(note|soap|apso|encounter)`), 0.95},
			{regexp.MustCompile(`(?i)summarize (today|this|the) (visit|encounter)`), 0.9},
			{regexp.MustCompile(`(?i)soap note`), 0.95},
			{regexp.MustCompile(`(?i)read back the patient`), 0.9},
		},
		IntentNavigateChart: {
			{regexp.MustCompile(`(?i)(pull|show|open|navigate).*(echo|ekg|xray|ct|mri|imaging)`), 0.9},
			{regexp.MustCompile(`(?i)(go to|open) (the )?(chart|notes|labs|meds)`), 0.85},
			{regexp.MustCompile(`(?i)previous (note|visit|encounter)`), 0.8},
		},
		IntentRefillMedication: {
			{regexp.MustCompile(`(?i)refill (\w+)`), 0.95},
			{regexp.MustCompile(`(?i)renew (\w+)`), 0.9},
			{regexp.MustCompile(`(?i)(30|60|90) day supply`), 0.8},
		},
		IntentGenerateAVS: {
			{regexp.MustCompile(`(?i)(create|generate).*(avs|after.?visit|summary|instructions)`), 0.95},
			{regexp.MustCompile(`(?i)patient (instructions|education|handout)`), 0.85},
			{regexp.MustCompile(`(?i)discharge (summary|instructions)`), 0.9},
		},
		IntentCalculateMDM: {
			{regexp.MustCompile(`(?i)(calculate|determine).*(mdm|e&m|em level|billing)`), 0.95},
			{regexp.MustCompile(`(?i)complexity level`), 0.85},
			{regexp.MustCompile(`(?i)billing code`), 0.8},
		},
		IntentAudioOverride: {
			{regexp.MustCompile(`(?i)read (the )?phi (out loud|aloud)`), 0.98},
			{regexp.MustCompile(`(?i)read (it|that|them) (out loud|aloud)`), 0.9},
		},
		IntentSwitchToProvider: {
			{regexp.MustCompile(`(?i)switch to provider mode`), 0.98},
			{regexp.MustCompile(`(?i)provider mode`), 0.85},
		},
		IntentSwitchToPatient: {
			{regexp.MustCompile(`(?i)switch to patient mode`), 0.98},
			{regexp.MustCompile(`(?i)back to patient mode`), 0.9},
		},
	}
}

func buildLabLexicon() map[string]string {
	labs := map[string]string{
		"hba1c": "A1C", "urinalysis": "UA", "alk phos": "ALP", "d-dimer": "DDIMER",
	}
	for _, name := range []string{
		"cbc", "bmp", "cmp", "tsh", "a1c", "lipid", "ua", "pt", "ptt", "inr",
		"lfts", "ast", "alt", "bilirubin", "creatinine", "bun", "glucose",
		"potassium", "sodium", "chloride", "co2", "calcium", "magnesium",
		"phosphorus", "albumin", "protein", "hemoglobin", "hematocrit",
		"platelets", "wbc", "troponin", "bnp", "esr", "crp", "b12", "folate",
		"iron", "ferritin",
	} {
		labs[name] = strings.ToUpper(name)
	}
	return labs
}

// controlledSubstances require confirmation on any refill regardless
// of other entities.
var controlledSubstances = []string{
	"oxycodone", "hydrocodone", "alprazolam", "lorazepam",
	"adderall", "ritalin", "tramadol", "morphine",
}

func (r *RuleRouter) Classify(ctx context.Context, text string) (Result, error) {
	best := Result{Intent: IntentUnknown, Entities: map[string]string{}}

	for intentName, patterns := range r.patterns {
		for _, p := range patterns {
			loc := p.re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			conf := p.base * (1.0 - float64(loc[0])/float64(max(len(text), 1))*0.2)
			if conf > best.Confidence {
				best.Intent = intentName
				best.Confidence = conf
			}
		}
	}

	if best.Intent == IntentUnknown {
		return best, nil
	}

	best.Entities = r.extractEntities(text, best.Intent)
	best.RequiresConfirmation = r.needsConfirmation(best.Intent, best.Entities)
	return best, nil
}

func (r *RuleRouter) extractEntities(text, intentName string) map[string]string {
	entities := map[string]string{}
	lower := strings.ToLower(text)

	switch intentName {
	case IntentAddToNote:
		if m := regexp.MustCompile(`(?i)\b(hpi|history|ros|review|exam|assessment|plan|consent)\b`).FindStringSubmatch(text); m != nil {
			entities["section"] = strings.ToUpper(m[1])
		}
		if m := regexp.MustCompile(`(?i)[:,]\s*(.+)$|that\s+(.+)$`).FindStringSubmatch(text); m != nil {
			content := m[1]
			if content == "" {
				content = m[2]
			}
			entities["content"] = strings.TrimSpace(content)
		}

	case IntentOrderLabs:
		var found []string
		for name, canonical := range r.labNames {
			if containsWord(lower, name) {
				found = append(found, canonical)
			}
		}
		sort.Strings(found)
		if len(found) > 0 {
			entities["test_names"] = strings.Join(found, ",")
		}
		entities["priority"] = "routine"
		if m := regexp.MustCompile(`(?i)\b(stat|urgent)\b`).FindString(text); m != "" {
			entities["priority"] = strings.ToLower(m)
		}

	case IntentRetrieveLabs:
		for _, lab := range []string{"potassium", "sodium", "glucose", "creatinine", "hemoglobin"} {
			if strings.Contains(lower, lab) {
				entities["lab_name"] = lab
				break
			}
		}
		if m := regexp.MustCompile(`(?i)(last|recent|latest)\s*(\d+)?`).FindStringSubmatch(text); m != nil {
			if m[2] != "" {
				entities["timeframe"] = "last " + m[2] + " results"
			} else {
				entities["timeframe"] = "latest"
			}
		}

	case IntentRefillMedication:
		if m := regexp.MustCompile(`(?i)(?:refill|renew)\s+(\w+)`).FindStringSubmatch(text); m != nil {
			entities["medication"] = strings.ToLower(m[1])
		}
		if m := regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml)`).FindStringSubmatch(text); m != nil {
			entities["dose"] = m[1] + " " + strings.ToLower(m[2])
		}
		if m := regexp.MustCompile(`(?i)\b(bid|tid|qid|daily|twice)\b`).FindString(text); m != "" {
			entities["frequency"] = strings.ToUpper(m)
		}
		if m := regexp.MustCompile(`(?i)(\d+)\s*day\s*supply`).FindStringSubmatch(text); m != nil {
			entities["quantity"] = m[1]
		}
		if m := regexp.MustCompile(`(?i)(\d+)\s*refill`).FindStringSubmatch(text); m != nil {
			entities["refills"] = m[1]
		}
		for _, cs := range controlledSubstances {
			if strings.Contains(entities["medication"], cs) {
				entities["controlled_substance"] = "true"
				break
			}
		}

	case IntentCreateSOAPNote:
		if m := regexp.MustCompile(`(?i)\b(soap|apso)\b`).FindString(text); m != "" {
			entities["note_template"] = strings.ToUpper(m)
		}

	case IntentGenerateAVS:
		if m := regexp.MustCompile(`(?i)\b(spanish|english|chinese)\b`).FindString(text); m != "" {
			entities["language"] = strings.ToLower(m)[:2]
		}
		if m := regexp.MustCompile(`(?i)(\d+)(?:st|nd|rd|th)?\s*grade`).FindStringSubmatch(text); m != nil {
			entities["reading_level"] = m[1] + "th grade"
		}

	case IntentCalculateMDM:
		entities["problems"] = "per note"
		entities["data_reviewed"] = "per note"
	}

	return entities
}

func (r *RuleRouter) needsConfirmation(intentName string, entities map[string]string) bool {
	switch intentName {
	case IntentOrderLabs, IntentRefillMedication:
		return true
	case IntentAudioOverride, IntentSwitchToProvider:
		return true
	}
	return false
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(text[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
