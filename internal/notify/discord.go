package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts notifications to a single Discord channel.
type Discord struct {
	sess      discordSession
	channelID string
}

// NewDiscord creates a Discord notifier from a bot token and channel ID.
func NewDiscord(botToken, channelID string) (*Discord, error) {
	sess, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	return &Discord{sess: sess, channelID: channelID}, nil
}

// Notify implements Notifier.
func (d *Discord) Notify(_ context.Context, title, body string) error {
	content := fmt.Sprintf("**%s**\n%s", title, body)
	if _, err := d.sess.ChannelMessageSend(d.channelID, content); err != nil {
		return fmt.Errorf("notify: discord send to %s: %w", d.channelID, err)
	}
	return nil
}
