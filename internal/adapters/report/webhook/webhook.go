// Package webhook posts tick summaries to a Slack compatible incoming
// webhook
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backscroll/internal/modkit"
	"backscroll/internal/platform/config"
	perr "backscroll/internal/platform/errors"
	"backscroll/internal/services/ingest/domain"
)

const defaultTimeout = 10 * time.Second

// Options configures the Reporter
type Options struct {
	// URL is the incoming webhook; empty disables reporting
	URL     string
	Timeout time.Duration
}

// Reporter implements domain.ReporterPort over an incoming webhook
type Reporter struct {
	opts Options
	http *http.Client
}

var _ domain.ReporterPort = (*Reporter)(nil)

// Message is the webhook payload
type Message struct {
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is one colored block in a Message
type Attachment struct {
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Footer    string  `json:"footer,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
}

// Field is one labelled value in an Attachment
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// New constructs the reporter from config under REPORT_WEBHOOK_
func New(deps modkit.Deps) *Reporter {
	return NewReporter(FromConfig(deps.Cfg))
}

// FromConfig reads the reporter options with REPORT_WEBHOOK_ prefix
func FromConfig(cfg config.Conf) Options {
	wh := cfg.Prefix("REPORT_WEBHOOK_")
	return Options{
		URL:     wh.MayString("URL", ""),
		Timeout: wh.MayDuration("TIMEOUT", defaultTimeout),
	}
}

// NewReporter creates a Reporter with sane defaults
func NewReporter(o Options) *Reporter {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Reporter{opts: o, http: &http.Client{Timeout: o.Timeout}}
}

// Enabled reports whether a webhook URL is configured
func (r *Reporter) Enabled() bool { return r.opts.URL != "" }

// Report posts one tick summary. The caller owns the failure policy
func (r *Reporter) Report(ctx context.Context, sum domain.TickSummary) error {
	if !r.Enabled() {
		return nil
	}

	payload, err := json.Marshal(message(sum))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "webhook: marshal summary")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.URL, bytes.NewReader(payload))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "webhook: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "webhook: post summary")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return perr.Unavailablef("webhook: status %d", resp.StatusCode)
	}
	return nil
}

func message(sum domain.TickSummary) Message {
	color, emoji := "#36a64f", ":white_check_mark:"
	switch sum.Status {
	case domain.TickFailed:
		color, emoji = "#dc3545", ":x:"
	case domain.TickDegraded:
		color, emoji = "#ffc107", ":warning:"
	}

	fields := []Field{
		{Title: "Run ID", Value: sum.RunID, Short: true},
		{Title: "Mode", Value: sum.Mode, Short: true},
		{Title: "Sources", Value: fmt.Sprintf("%d", sum.SourcesChecked), Short: true},
		{Title: "Embedded", Value: fmt.Sprintf("%d", sum.MessagesEmbedded), Short: true},
		{Title: "Duration", Value: sum.Duration.Round(time.Millisecond).String(), Short: true},
		{Title: "Started", Value: sum.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"), Short: true},
	}
	if len(sum.Errors) > 0 {
		fields = append(fields, Field{Title: "Errors", Value: errSummary(sum.Errors), Short: false})
	}

	return Message{
		Username:  "backscroll",
		IconEmoji: emoji,
		Text:      fmt.Sprintf("Ingest tick %s: %d embedded across %d sources", sum.Status, sum.MessagesEmbedded, sum.SourcesChecked),
		Attachments: []Attachment{
			{
				Color:     color,
				Title:     "Tick " + sum.Status,
				Fields:    fields,
				Footer:    "backscroll",
				Timestamp: sum.StartedAt.Unix(),
			},
		},
	}
}

// errSummary keeps the attachment readable when a tick degrades hard
func errSummary(errs []string) string {
	shown := errs
	more := 0
	if len(errs) > 3 {
		shown, more = errs[:3], len(errs)-3
	}
	s := strings.Join(shown, "; ")
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	if more > 0 {
		s += fmt.Sprintf(" and %d more", more)
	}
	return s
}
