// Package slack adapts the Slack conversations API to the ingest source port
package slack

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"backscroll/internal/modkit"
	"backscroll/internal/platform/config"
	perr "backscroll/internal/platform/errors"
	"backscroll/internal/platform/logger"
	"backscroll/internal/services/ingest/domain"
)

const (
	defaultTimeout = 15 * time.Second
	// pageSize per history call; Slack recommends staying at or under 200
	pageSize = 200
)

// Options configures the Source
type Options struct {
	Token string

	// APIURL overrides the Slack endpoint, tests mostly
	APIURL string

	Timeout time.Duration
}

// Source implements domain.SourcePort over the Slack Web API.
// Retry policy lives in the coordinator; this adapter only maps transport
// and API failures onto coded errors
type Source struct {
	client *slack.Client
	log    logger.Logger
}

var _ domain.SourcePort = (*Source)(nil)

// New constructs the source from config under SOURCE_SLACK_
func New(deps modkit.Deps) *Source {
	return NewClient(FromConfig(deps.Cfg))
}

// FromConfig reads the slack options with SOURCE_SLACK_ prefix
func FromConfig(cfg config.Conf) Options {
	sl := cfg.Prefix("SOURCE_SLACK_")
	return Options{
		Token:   sl.MustString("TOKEN"),
		APIURL:  sl.MayString("API_URL", ""),
		Timeout: sl.MayDuration("HTTP_TIMEOUT", defaultTimeout),
	}
}

// NewClient creates a Source with sane defaults
func NewClient(o Options) *Source {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	opts := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: o.Timeout}),
	}
	if o.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(o.APIURL))
	}
	return &Source{
		client: slack.New(o.Token, opts...),
		log:    *logger.Named("slack"),
	}
}

// Fetch returns up to w.Limit messages newer than w.Oldest in ascending
// order. Slack anchors the selection at the oldest bound, so a capped fetch
// returns the oldest qualifying page and the caller's watermark resumes
// exactly where this window ended
func (s *Source) Fetch(ctx context.Context, w domain.FetchWindow) ([]domain.Message, error) {
	limit := w.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []domain.Message
	cursor := ""
	for len(out) < limit {
		params := &slack.GetConversationHistoryParameters{
			ChannelID: w.SourceID,
			Cursor:    cursor,
			Inclusive: w.Inclusive,
			Limit:     min(pageSize, limit-len(out)),
		}
		if !w.Oldest.IsZero() {
			params.Oldest = slackTS(w.Oldest)
		}

		resp, err := s.client.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, mapErr(err, w.SourceID)
		}

		for i := range resp.Messages {
			m, ok := s.toMessage(w.SourceID, resp.Messages[i].Msg)
			if !ok {
				continue
			}
			out = append(out, m)
		}

		s.log.Debug().
			Str("channel_id", w.SourceID).
			Int("page", len(resp.Messages)).
			Int("total", len(out)).
			Bool("has_more", resp.HasMore).
			Msg("slack history page")

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		cursor = resp.ResponseMetaData.NextCursor
	}

	// pages arrive newest first; the coordinator wants ascending
	slices.SortStableFunc(out, func(a, b domain.Message) int {
		return a.SentAt.Compare(b.SentAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Probe verifies the token and reachability
func (s *Source) Probe(ctx context.Context) error {
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return mapErr(err, "")
	}
	return nil
}

func (s *Source) toMessage(sourceID string, m slack.Msg) (domain.Message, bool) {
	at, err := parseTS(m.Timestamp)
	if err != nil {
		s.log.Warn().Str("channel_id", sourceID).Str("ts", m.Timestamp).Msg("slack ts unparsable, skipping")
		return domain.Message{}, false
	}
	return domain.Message{
		SourceID: sourceID,
		Author:   m.User,
		Text:     m.Text,
		RawTS:    m.Timestamp,
		SentAt:   at,
		Bot:      m.BotID != "" || m.SubType == "bot_message",
		Subtype:  m.SubType,
	}, true
}

// mapErr converts slack client failures into coded errors the coordinator
// can act on
func mapErr(err error, sourceID string) error {
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return perr.WithRetryAfter(perr.RateLimitedf("slack: rate limited on %s", sourceID), rle.RetryAfter)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "channel_not_found"):
		return perr.NotFoundf("slack: channel %s not found", sourceID)
	case strings.Contains(msg, "not_in_channel"),
		strings.Contains(msg, "access_denied"),
		strings.Contains(msg, "missing_scope"),
		strings.Contains(msg, "invalid_auth"),
		strings.Contains(msg, "account_inactive"),
		strings.Contains(msg, "token_revoked"):
		return perr.Wrapf(err, perr.ErrorCodeForbidden, "slack: access denied on %s", sourceID)
	case strings.Contains(msg, "ratelimited"):
		return perr.Wrapf(err, perr.ErrorCodeTooManyRequests, "slack: rate limited on %s", sourceID)
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "slack: transport failure on %s", sourceID)
	}
	return perr.Wrapf(err, perr.ErrorCodeUnknown, "slack: history failed on %s", sourceID)
}

// slackTS renders t as a slack "seconds.micros" timestamp
func slackTS(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10) + "." + pad6(t.Nanosecond()/1000)
}

func pad6(us int) string {
	s := strconv.Itoa(us)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

// parseTS converts a slack ts into UTC time, tolerating short or long
// fractional parts
func parseTS(ts string) (time.Time, error) {
	sec, frac, hasFrac := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var us int64
	if hasFrac && frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		for len(frac) < 6 {
			frac += "0"
		}
		us, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(s, us*1000).UTC(), nil
}
