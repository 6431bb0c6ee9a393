package audit

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ssn", "SSN is 123-45-6789", "SSN is [SSN]"},
		{"mrn", "chart MRN: 4281933", "chart [MRN]"},
		{"dea", "prescriber DEA AB1234567", "prescriber [DEA]"},
		{"npi", "billing NPI 1234567890", "billing [NPI]"},
		{"dob slash", "born 03/14/1962", "born [DOB]"},
		{"dob dash", "dob 3-4-1988 noted", "dob [DOB] noted"},
		{"phone", "call 555-867-5309 after", "call [PHONE] after"},
		{"email", "send to pat.doe@example.org today", "send to [EMAIL] today"},
		{"address", "lives at 42 Maple Street apt 3", "lives at [ADDRESS] apt 3"},
		{"clean", "potassium is 4.1", "potassium is 4.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.in); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactPayloadStringSlices(t *testing.T) {
	out := RedactPayload(map[string]interface{}{
		"spans": []string{"MRN 123456", "no phi here"},
	})
	spans := out["spans"].([]string)
	if strings.Contains(spans[0], "123456") {
		t.Errorf("slice value not redacted: %q", spans[0])
	}
	if spans[1] != "no phi here" {
		t.Errorf("clean value altered: %q", spans[1])
	}
}
