package persona

import (
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
)

const validDoc = `
name: Jordan Avery
role: Marketing Coordinator
worker_id: jordan
work_schedule:
  start: "09:00"
  end: "17:00"
  lunch:
    start: "12:00"
    end: "13:00"
  coffee_breaks: ["10:30", "15:00"]
applications: [outlook, edge, word]
sites: [linkedin.com, canva.com]
document_tasks: [meeting notes, campaign brief]
activities:
  - kind: check_email
    weight: 18
    targets: [outlook]
  - kind: browse_web
    weight: 10
    targets: [linkedin.com, canva.com]
    windows:
      - start: "10:00"
        end: "16:00"
  - kind: create_document
    weight: 18
    targets: [document]
    min_duration_minutes: 5
    max_duration_minutes: 12
`

func TestParse_Valid(t *testing.T) {
	p, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Name != "Jordan Avery" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Schedule.WorkStart != 9*time.Hour {
		t.Errorf("WorkStart = %v, want 9h", p.Schedule.WorkStart)
	}
	if p.Schedule.Lunch.End != 13*time.Hour {
		t.Errorf("Lunch.End = %v, want 13h", p.Schedule.Lunch.End)
	}
	if len(p.Schedule.CoffeeBreaks) != 2 {
		t.Fatalf("CoffeeBreaks = %d, want 2", len(p.Schedule.CoffeeBreaks))
	}
	if p.Schedule.CoffeeBreaks[0].End != 10*time.Hour+45*time.Minute {
		t.Errorf("coffee break end = %v, want 10:45", p.Schedule.CoffeeBreaks[0].End)
	}
	if len(p.Activities) != 3 {
		t.Fatalf("Activities = %d, want 3", len(p.Activities))
	}
	if p.Activities[1].Kind != domain.KindBrowse {
		t.Errorf("activity kind = %s, want browse_web", p.Activities[1].Kind)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{"unknown kind", func(s string) string { return strings.Replace(s, "check_email", "send_fax", 1) }, "unknown action kind"},
		{"negative weight", func(s string) string { return strings.Replace(s, "weight: 18", "weight: -3", 1) }, "negative weight"},
		{"missing name", func(s string) string { return strings.Replace(s, "name: Jordan Avery", "", 1) }, "name is required"},
		{"inverted schedule", func(s string) string {
			s = strings.Replace(s, `start: "09:00"`, `start: "18:00"`, 1)
			return s
		}, "before work end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(validDoc)))
			if err == nil {
				t.Fatal("Parse accepted invalid persona, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_AllZeroWeights(t *testing.T) {
	doc := strings.ReplaceAll(validDoc, "weight: 18", "weight: 0")
	doc = strings.Replace(doc, "weight: 10", "weight: 0", 1)
	if _, err := Parse([]byte(doc)); err == nil {
		t.Error("accepted catalog with no positive weight, want error")
	}
}

func TestActivity_EligibleAt(t *testing.T) {
	p, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	browse := p.Activities[1]

	at := func(hhmm string) time.Time {
		base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		tod, _ := time.Parse("15:04", hhmm)
		return base.Add(time.Duration(tod.Hour())*time.Hour + time.Duration(tod.Minute())*time.Minute)
	}

	if browse.EligibleAt(at("09:30")) {
		t.Error("browse eligible at 09:30, want excluded by window")
	}
	if !browse.EligibleAt(at("11:00")) {
		t.Error("browse not eligible at 11:00, want eligible")
	}

	// No windows means always eligible
	email := p.Activities[0]
	if !email.EligibleAt(at("09:30")) {
		t.Error("windowless activity not eligible, want always eligible")
	}
}

func TestAllowedKinds(t *testing.T) {
	p, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	kinds := p.AllowedKinds()
	if !kinds[domain.KindIdle] {
		t.Error("idle not allowed, want always allowed")
	}
	if !kinds[domain.KindEmailCheck] {
		t.Error("check_email not allowed")
	}
	if kinds[domain.KindDownload] {
		t.Error("download_file allowed, not in catalog")
	}
}
