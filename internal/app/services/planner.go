package services

import (
	"context"
	"fmt"
	"strings"

	"clinivoice-server-go/internal/domain/intent"
	"clinivoice-server-go/internal/domain/phi"
)

// Chart is the read side of the patient record the planner answers
// from. The EHR integration behind it is out of scope; the default
// implementation serves demo data.
type Chart interface {
	PatientName() string
	MRN() string
	Allergies() []string
	LatestLab(name string) (value string, ok bool)
	Medications() []string
}

// StaticChart backs the no-EHR profile.
type StaticChart struct {
	Name string
	MRNo string
	Algs []string
	Labs map[string]string
	Meds []string
}

func DemoChart() *StaticChart {
	return &StaticChart{
		Name: "John Smith",
		MRNo: "4281933",
		Algs: []string{"penicillin"},
		Labs: map[string]string{
			"potassium":  "4.1 mEq/L",
			"sodium":     "139 mEq/L",
			"glucose":    "104 mg/dL",
			"creatinine": "0.9 mg/dL",
			"hemoglobin": "13.8 g/dL",
		},
		Meds: []string{"lisinopril 10 mg daily", "metformin 500 mg BID"},
	}
}

func (c *StaticChart) PatientName() string { return c.Name }
func (c *StaticChart) MRN() string         { return c.MRNo }
func (c *StaticChart) Allergies() []string { return c.Algs }
func (c *StaticChart) Medications() []string {
	return c.Meds
}
func (c *StaticChart) LatestLab(name string) (string, bool) {
	v, ok := c.Labs[strings.ToLower(name)]
	return v, ok
}

// ClinicalPlanner composes the reply for a classified utterance and
// tags its PHI spans. It proposes; the policy disposes.
type ClinicalPlanner struct {
	chart Chart
}

func NewClinicalPlanner(chart Chart) *ClinicalPlanner {
	if chart == nil {
		chart = DemoChart()
	}
	return &ClinicalPlanner{chart: chart}
}

func (p *ClinicalPlanner) Plan(ctx context.Context, res intent.Result) (phi.ResponseCandidate, error) {
	switch res.Intent {
	case intent.IntentCheckAllergies:
		allergies := p.chart.Allergies()
		if len(allergies) == 0 {
			return candidate("No known drug allergies on file."), nil
		}
		return candidate("The chart lists an allergy to " + strings.Join(allergies, " and ") + "."), nil

	case intent.IntentRetrieveLabs:
		lab := res.Entities["lab_name"]
		if lab == "" {
			return candidate("Which lab result would you like?"), nil
		}
		value, ok := p.chart.LatestLab(lab)
		if !ok {
			return candidate(fmt.Sprintf("I don't see a recent %s result.", lab)), nil
		}
		return candidate(fmt.Sprintf("The latest %s is %s.", lab, value)), nil

	case intent.IntentCreateSOAPNote:
		// readback-style summaries carry identifiers by construction
		return phi.ResponseCandidate{Spans: []phi.ContentSpan{
			{Text: "Here's the summary for"},
			{Text: p.chart.PatientName(), IsPHI: true, Category: phi.CategoryName},
			{Text: "MRN " + p.chart.MRN(), IsPHI: true, Category: phi.CategoryMRN},
			{Text: ". The full note is in the encounter record."},
		}}, nil

	case intent.IntentAddToNote:
		section := res.Entities["section"]
		if section == "" {
			section = "the note"
		}
		return candidate("Added to " + section + "."), nil

	case intent.IntentNavigateChart:
		return candidate("Opening that part of the chart now."), nil

	case intent.IntentGenerateAVS:
		return candidate("The after-visit summary is ready on screen."), nil

	case intent.IntentCalculateMDM:
		return candidate("Based on the documented problems and data reviewed, this encounter supports a moderate complexity level."), nil

	default:
		return candidate("All set."), nil
	}
}

// candidate runs the detector over composed text so identifier shapes
// in free text are still tagged.
func candidate(text string) phi.ResponseCandidate {
	return phi.ResponseCandidate{Spans: phi.Detect(text)}
}
