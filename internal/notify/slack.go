package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

const (
	// maxSectionText is Slack's limit on a section block's text.
	maxSectionText = 3000
	// maxBlocks is Slack's limit on blocks per message.
	maxBlocks = 50

	defaultUsername  = "dashcheck"
	defaultIconEmoji = ":bar_chart:"
)

// SlackMessage is an incoming-webhook payload.
type SlackMessage struct {
	Channel   string       `json:"channel,omitempty"`
	Username  string       `json:"username,omitempty"`
	IconEmoji string       `json:"icon_emoji,omitempty"`
	Text      string       `json:"text"`
	Blocks    []SlackBlock `json:"blocks,omitempty"`
}

type SlackBlock struct {
	Type string     `json:"type"`
	Text *SlackText `json:"text,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackSink posts reports to a Slack incoming webhook.
type SlackSink struct {
	client     *http.Client
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
}

// SlackOption configures a SlackSink.
type SlackOption func(*SlackSink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackSink) { s.client = c }
}

// NewSlackSink builds a sink from the notification settings. The webhook
// URL is required.
func NewSlackSink(cfg models.Notification, opts ...SlackOption) (*SlackSink, error) {
	if cfg.SlackWebhookURL == "" {
		return nil, apperrors.ConfigError("slack webhook URL is required", "notification.slack_webhook_url")
	}

	s := &SlackSink{
		client:     &http.Client{Timeout: 30 * time.Second},
		webhookURL: cfg.SlackWebhookURL,
		channel:    cfg.Channel,
		username:   cfg.Username,
		iconEmoji:  cfg.IconEmoji,
	}
	if s.username == "" {
		s.username = defaultUsername
	}
	if s.iconEmoji == "" {
		s.iconEmoji = defaultIconEmoji
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send posts text as one or more messages of mrkdwn sections.
func (s *SlackSink) Send(ctx context.Context, text string) error {
	chunks := splitText(text, maxSectionText)
	for start := 0; start < len(chunks); start += maxBlocks {
		end := start + maxBlocks
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.post(ctx, s.message(chunks[start:end])); err != nil {
			return err
		}
	}
	return nil
}

func (s *SlackSink) message(chunks []string) SlackMessage {
	msg := SlackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Text:      summaryLine(chunks[0]),
	}
	for _, c := range chunks {
		msg.Blocks = append(msg.Blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: c},
		})
	}
	return msg
}

func (s *SlackSink) post(ctx context.Context, message SlackMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNotificationFailed, "failed to marshal Slack message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNotificationFailed, "failed to create Slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeNotificationFailed, "failed to send Slack message").
			AsRecoverable()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.New(apperrors.ErrCodeNotificationFailed,
			fmt.Sprintf("Slack returned status %d", resp.StatusCode)).
			WithContext("status", resp.StatusCode).
			WithContext("body", strings.TrimSpace(string(body))).
			WithSuggestions("Check that the webhook URL is still active")
	}
	return nil
}

// splitText cuts text into pieces of at most limit bytes, preferring line
// boundaries. Lines longer than limit are cut hard.
func splitText(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return chunks
}

func summaryLine(chunk string) string {
	for _, line := range strings.Split(chunk, "\n") {
		if line = strings.Trim(line, "- "); line != "" {
			return line
		}
	}
	return "dashcheck report"
}
