package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts notifications to a single Slack channel.
type Slack struct {
	client    slackClient
	channelID string
}

// NewSlack creates a Slack notifier from a bot token and channel ID.
func NewSlack(botToken, channelID string) *Slack {
	return &Slack{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}
}

// Notify implements Notifier.
func (s *Slack) Notify(_ context.Context, title, body string) error {
	text := fmt.Sprintf("*%s*\n%s", title, body)
	_, _, err := s.client.PostMessage(s.channelID,
		slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify: slack post to %s: %w", s.channelID, err)
	}
	return nil
}
