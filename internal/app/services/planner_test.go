package services

import (
	"context"
	"strings"
	"testing"

	"clinivoice-server-go/internal/domain/intent"
	"clinivoice-server-go/internal/domain/phi"
)

func joinSpanText(spans []phi.ContentSpan) string {
	var parts []string
	for _, s := range spans {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

func TestPlannerAllergies(t *testing.T) {
	p := NewClinicalPlanner(nil)

	candidate, err := p.Plan(context.Background(), intent.Result{Intent: intent.IntentCheckAllergies})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	text := joinSpanText(candidate.Spans)
	if !strings.Contains(text, "penicillin") {
		t.Errorf("allergy reply = %q", text)
	}
}

func TestPlannerLabResult(t *testing.T) {
	p := NewClinicalPlanner(nil)

	candidate, err := p.Plan(context.Background(), intent.Result{
		Intent:   intent.IntentRetrieveLabs,
		Entities: map[string]string{"lab_name": "potassium"},
	})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !strings.Contains(joinSpanText(candidate.Spans), "4.1") {
		t.Errorf("lab reply = %q", joinSpanText(candidate.Spans))
	}
}

func TestPlannerReadbackTagsPHI(t *testing.T) {
	p := NewClinicalPlanner(nil)

	candidate, err := p.Plan(context.Background(), intent.Result{Intent: intent.IntentCreateSOAPNote})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	var phiSpans int
	for _, span := range candidate.Spans {
		if span.IsPHI {
			phiSpans++
		}
	}
	if phiSpans < 2 {
		t.Fatalf("expected name and MRN tagged, got %d PHI spans in %+v", phiSpans, candidate.Spans)
	}
}
