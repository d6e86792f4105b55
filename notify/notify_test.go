package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func sampleAlert() Alert {
	return Alert{
		RecipientEmail:  "ops@acme.test",
		GuidanceEnabled: true,

		SourceName: "Grant portal",
		SourceURL:  "https://grants.example.gov/portal",

		SeverityLevel: "HIGH",
		SeverityScore: 70,
		Explanation:   []string{"deadline or date expression modified"},
		Deadlines: []Deadline{{
			Date:  time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
			Label: "Deadline",
		}},

		ActionGuidance:   "Update your records and downstream material.",
		ActionConfidence: "MEDIUM",
	}
}

func TestBuildAlert(t *testing.T) {
	msg := BuildAlert(sampleAlert())

	if msg.To != "ops@acme.test" {
		t.Errorf("to = %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "HIGH") || !strings.Contains(msg.Subject, "Grant portal") {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, want := range []string{
		"Severity: HIGH (70/100)",
		"March 3, 2025",
		"Deadline found (Deadline)",
		"Recommended action (MEDIUM confidence)",
		"verify the change against the official source",
	} {
		if !strings.Contains(msg.PlainText, want) {
			t.Errorf("plain text missing %q:\n%s", want, msg.PlainText)
		}
	}
	if !strings.Contains(msg.HTMLBody, "<h2>") {
		t.Errorf("html body not rendered: %q", msg.HTMLBody)
	}
}

func TestBuildAlert_GuidanceSuppressed(t *testing.T) {
	// WHAT: tenants without guidance features get the facts but not the
	// recommendation.
	a := sampleAlert()
	a.GuidanceEnabled = false
	msg := BuildAlert(a)
	if strings.Contains(msg.PlainText, "Recommended action") {
		t.Errorf("guidance leaked into alert:\n%s", msg.PlainText)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	n := NewLogNotifier(log)

	err := n.Send(context.Background(), Message{To: "ops@acme.test", Subject: "test"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "ops@acme.test") {
		t.Errorf("log output missing recipient: %q", buf.String())
	}
}
