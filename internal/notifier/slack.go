package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends match alerts to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	matchURL   string // prefix for a "View match" link, optional
	httpClient *http.Client
	logger     *slog.Logger
	spacing    time.Duration
}

// NewSlackNotifier returns a notifier that posts each match to Slack via
// webhook. When matchURL is set, each message links to matchURL + match ID.
func NewSlackNotifier(webhookURL, matchURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		matchURL:   matchURL,
		httpClient: httpClient,
		logger:     logger,
		spacing:    500 * time.Millisecond,
	}
}

// Notify sends each match as a separate Slack message using Block Kit.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) Notify(records []model.MatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	failures := 0
	for i, r := range records {
		if i > 0 && s.spacing > 0 {
			time.Sleep(s.spacing)
		}

		if err := s.sendMessage(r); err != nil {
			s.logger.Error("slack notification failed", "company", r.Company, "title", r.Title, "error", err)
			failures++
		}
	}

	sent := len(records) - failures
	if failures == len(records) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", sent, "failed", failures)
	return nil
}

func (s *SlackNotifier) sendMessage(r model.MatchRecord) error {
	body, err := json.Marshal(s.buildPayload(r))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		if secs <= 0 {
			secs = 1
		}
		s.logger.Warn("slack rate limited, retrying", "retry_after_secs", secs)
		time.Sleep(time.Duration(secs) * time.Second)

		resp2, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", resp2.StatusCode)
		}
		s.logger.Info("slack message sent", "company", r.Company, "title", r.Title, "retried", true)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	s.logger.Info("slack message sent", "company", r.Company, "title", r.Title)
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackElement is a button in an actions block (Text is a *slackText) or a
// mrkdwn element in a context block (Text is a string).
type slackElement struct {
	Type  string `json:"type"`
	Text  any    `json:"text"`
	URL   string `json:"url,omitempty"`
	Style string `json:"style,omitempty"`
}

// SendTestMessage sends a dummy match notification to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now().UTC()
	return n.Notify([]model.MatchRecord{{
		ID:           "test-001",
		UserID:       "test",
		IdentityKey:  model.IdentityKey("Test Notification", "jobsieve"),
		Title:        "Test Notification",
		Company:      "jobsieve",
		Location:     "Everywhere",
		Requirements: []string{model.GeneralExperience},
		PostedAt:     now,
		Source:       model.SourceGeneric,
		Score:        100,
		DiscoveredAt: now,
	}})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (s *SlackNotifier) buildPayload(r model.MatchRecord) slackPayload {
	postedText := "Just detected"
	if !r.PostedAt.IsZero() {
		postedText = r.PostedAt.UTC().Format("Mon, 02 Jan 2006")
	}
	salary := r.SalaryRange
	if salary == "" {
		salary = "Not listed"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("🎯 %s: %s (%d)", r.Company, r.Title, r.Score)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + r.Company},
				{Type: "mrkdwn", Text: "*Location:*\n" + r.Location},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Salary:*\n" + salary},
				{Type: "mrkdwn", Text: "*Posted:*\n" + postedText},
				{Type: "mrkdwn", Text: "*Source:*\n" + capitalize(string(r.Source))},
				{Type: "mrkdwn", Text: "*Score:*\n" + strconv.Itoa(r.Score)},
			},
		},
	}

	if len(r.Requirements) > 0 {
		blocks = append(blocks, slackBlock{
			Type: "context",
			Elements: []slackElement{
				{Type: "mrkdwn", Text: "*Skills:* " + strings.Join(r.Requirements, ", ")},
			},
		})
	}

	if s.matchURL != "" {
		blocks = append(blocks, slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  &slackText{Type: "plain_text", Text: "View Match"},
					URL:   s.matchURL + r.ID,
					Style: "primary",
				},
			},
		})
	}

	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}
