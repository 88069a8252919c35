package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
)

type mockSlackClient struct {
	calls   int
	channel string
	err     error
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	return "", "", m.err
}

type mockDiscordSession struct {
	calls   int
	channel string
	content string
	err     error
}

func (m *mockDiscordSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.calls++
	m.channel = channelID
	m.content = content
	if m.err != nil {
		return nil, m.err
	}
	return &discordgo.Message{}, nil
}

func TestSlack_PostsToChannel(t *testing.T) {
	client := &mockSlackClient{}
	s := &Slack{client: client, channelID: "C123"}

	if err := s.Notify(context.Background(), "Automation dispatched", "details"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if client.calls != 1 || client.channel != "C123" {
		t.Errorf("calls = %d, channel = %q", client.calls, client.channel)
	}
}

func TestSlack_WrapsError(t *testing.T) {
	client := &mockSlackClient{err: errors.New("channel_not_found")}
	s := &Slack{client: client, channelID: "C123"}

	err := s.Notify(context.Background(), "t", "b")
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("error = %v", err)
	}
}

func TestDiscord_SendsFormattedMessage(t *testing.T) {
	sess := &mockDiscordSession{}
	d := &Discord{sess: sess, channelID: "D456"}

	if err := d.Notify(context.Background(), "Dispatch failed", "queued"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sess.channel != "D456" {
		t.Errorf("channel = %q", sess.channel)
	}
	if !strings.Contains(sess.content, "Dispatch failed") || !strings.Contains(sess.content, "queued") {
		t.Errorf("content = %q", sess.content)
	}
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, string, string) error {
	r.calls++
	return r.err
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	working := &recordingNotifier{}
	m := Multi{failing, working}

	if err := m.Notify(context.Background(), "t", "b"); err != nil {
		t.Fatalf("Multi.Notify should never fail, got %v", err)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("calls = %d/%d, want both notified", failing.calls, working.calls)
	}
}
