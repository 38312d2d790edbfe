package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// DefaultSlackAPI is the Slack Web API base URL.
const DefaultSlackAPI = "https://slack.com/api"

const (
	slackHistoryPages = 50
	slackThreadPages  = 5
)

// SlackConfig configures a channel-history fetch.
type SlackConfig struct {
	// Token is a bot (xoxb-) or user (xoxp-) OAuth token with channels:history.
	Token    string
	Channels []string

	// DaysBack bounds the fetch when no since time is given. Default 30, max 365.
	DaysBack int

	// IncludeThreads fetches thread replies. Default true.
	IncludeThreads *bool

	// BaseURL overrides DefaultSlackAPI.
	BaseURL string
}

func (c SlackConfig) daysBack() int {
	if c.DaysBack <= 0 {
		return 30
	}
	if c.DaysBack > 365 {
		return 365
	}
	return c.DaysBack
}

func (c SlackConfig) includeThreads() bool {
	return c.IncludeThreads == nil || *c.IncludeThreads
}

// Validate checks the token shape and channel list.
func (c SlackConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("slack token is required (xoxb-... or xoxp-...)")
	}
	if !strings.HasPrefix(c.Token, "xoxb-") && !strings.HasPrefix(c.Token, "xoxp-") {
		return fmt.Errorf("slack token should start with xoxb- (bot) or xoxp- (user)")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one slack channel ID is required")
	}
	for _, ch := range c.Channels {
		if strings.TrimSpace(ch) == "" {
			return fmt.Errorf("slack channel ID cannot be empty")
		}
	}
	return nil
}

// SlackSource reads message events straight from Slack channel history.
type SlackSource struct {
	cfg    SlackConfig
	client *http.Client
}

// NewSlackSource validates cfg and returns a source.
func NewSlackSource(cfg SlackConfig) (*SlackSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSlackAPI
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SlackSource{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}, nil
}

// Fetch returns the messages of every configured channel posted after since
// (or within DaysBack when since is nil), thread replies included, in
// timestamp order. Join and bot subtypes are kept so the extraction filter
// sees them. API failures wrap ErrSourceUnavailable.
func (s *SlackSource) Fetch(ctx context.Context, since *time.Time) ([]record.MessageEvent, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.daysBack())
	if since != nil {
		cutoff = *since
	}
	oldest := fmt.Sprintf("%d.000000", cutoff.Unix())

	var events []record.MessageEvent
	for _, ch := range s.cfg.Channels {
		evs, err := s.fetchChannel(ctx, ch, oldest)
		if err != nil {
			return nil, fmt.Errorf("%w: slack channel %s: %v", ErrSourceUnavailable, ch, err)
		}
		events = append(events, evs...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Time, events[j].Time
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return events, nil
}

func (s *SlackSource) fetchChannel(ctx context.Context, channel, oldest string) ([]record.MessageEvent, error) {
	var events []record.MessageEvent
	cursor := ""
	for page := 0; page < slackHistoryPages; page++ {
		params := url.Values{}
		params.Set("channel", channel)
		params.Set("limit", "200")
		params.Set("oldest", oldest)
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		msgs, next, err := s.call(ctx, "conversations.history", params)
		if err != nil {
			return nil, err
		}

		for _, msg := range msgs {
			events = append(events, msg.event())
			if s.cfg.includeThreads() && msg.ReplyCount > 0 {
				replies, err := s.fetchThread(ctx, channel, msg.TS)
				if err != nil {
					// A broken thread does not lose the channel.
					continue
				}
				events = append(events, replies...)
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}
	return events, nil
}

func (s *SlackSource) fetchThread(ctx context.Context, channel, threadTS string) ([]record.MessageEvent, error) {
	var events []record.MessageEvent
	cursor := ""
	for page := 0; page < slackThreadPages; page++ {
		params := url.Values{}
		params.Set("channel", channel)
		params.Set("ts", threadTS)
		params.Set("limit", "200")
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		msgs, next, err := s.call(ctx, "conversations.replies", params)
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			if msg.TS == threadTS {
				continue // parent, already captured
			}
			events = append(events, msg.event())
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return events, nil
}

type slackMessage struct {
	Type       string `json:"type"`
	SubType    string `json:"subtype"`
	User       string `json:"user"`
	Text       string `json:"text"`
	TS         string `json:"ts"`
	ReplyCount int    `json:"reply_count"`
	ThreadTS   string `json:"thread_ts"`
}

func (m slackMessage) event() record.MessageEvent {
	kind := m.Type
	if kind == "" {
		kind = "message"
	}
	return record.MessageEvent{
		Timestamp: m.TS,
		Time:      record.ParseTimestamp(m.TS),
		Author:    m.User,
		Text:      m.Text,
		Kind:      kind,
		Subkind:   m.SubType,
		ThreadTS:  m.ThreadTS,
	}
}

type slackResponse struct {
	OK               bool           `json:"ok"`
	Error            string         `json:"error"`
	Messages         []slackMessage `json:"messages"`
	HasMore          bool           `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// call performs one Web API request and returns its messages and the next
// page cursor, empty on the last page.
func (s *SlackSource) call(ctx context.Context, method string, params url.Values) ([]slackMessage, string, error) {
	apiURL := fmt.Sprintf("%s/%s?%s", s.cfg.BaseURL, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", fmt.Errorf("slack rate limited (429), retry after %s s", resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("slack %s returned status %d", method, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading slack response: %w", err)
	}
	var out slackResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, "", fmt.Errorf("parsing slack response: %w", err)
	}
	if !out.OK {
		return nil, "", fmt.Errorf("slack API error: %s", out.Error)
	}

	next := ""
	if out.HasMore {
		next = out.ResponseMetadata.NextCursor
	}
	return out.Messages, next, nil
}
