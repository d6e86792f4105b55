// Package notify delivers change alerts. Delivery is best-effort: failures
// are logged by callers and never affect source state.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
)

// Message is one outbound alert.
type Message struct {
	To        string
	Subject   string
	PlainText string
	HTMLBody  string
}

// Alert carries everything the renderer needs for one change event. Callers
// map their own records into it; this package has no view of storage.
type Alert struct {
	RecipientEmail  string
	GuidanceEnabled bool

	SourceName string
	SourceURL  string

	SeverityLevel string
	SeverityScore int
	Explanation   []string
	Deadlines     []Deadline

	ActionGuidance   string
	ActionConfidence string
}

// Deadline is one extracted date shown in the alert body.
type Deadline struct {
	Date  time.Time
	Label string
}

// Notifier sends an alert to a recipient address.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes alerts to the structured log instead of a delivery
// channel. It is the default sink for development and tests.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.log.Info("alert",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.PlainText)))
	return nil
}

const disclaimer = "This is an automated monitoring alert. Always verify the change against the official source before acting on it."

// BuildAlert renders the alert for one change event. Guidance text is only
// included when the tenant has guidance features enabled.
func BuildAlert(a Alert) Message {
	subject := fmt.Sprintf("[%s] Change detected on %s", a.SeverityLevel, a.SourceName)

	var b strings.Builder
	fmt.Fprintf(&b, "A change was detected on %s (%s).\n\n", a.SourceName, a.SourceURL)
	fmt.Fprintf(&b, "Severity: %s (%d/100)\n", a.SeverityLevel, a.SeverityScore)
	if len(a.Explanation) > 0 {
		b.WriteString("\nWhat changed:\n")
		for _, line := range a.Explanation {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}
	for _, d := range a.Deadlines {
		date := d.Date.UTC().Format("January 2, 2006")
		if d.Label != "" {
			fmt.Fprintf(&b, "\nDeadline found (%s): %s\n", d.Label, date)
		} else {
			fmt.Fprintf(&b, "\nDeadline found: %s\n", date)
		}
	}
	if a.GuidanceEnabled && a.ActionGuidance != "" {
		fmt.Fprintf(&b, "\nRecommended action (%s confidence): %s\n", a.ActionConfidence, a.ActionGuidance)
	}
	fmt.Fprintf(&b, "\n%s\n", disclaimer)

	plain := b.String()
	return Message{
		To:        a.RecipientEmail,
		Subject:   subject,
		PlainText: plain,
		HTMLBody:  htmlBody(subject, plain),
	}
}

func htmlBody(subject, plain string) string {
	var b strings.Builder
	b.WriteString("<h2>")
	b.WriteString(html.EscapeString(subject))
	b.WriteString("</h2>\n")
	for _, para := range strings.Split(plain, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>\n")
	}
	return b.String()
}
