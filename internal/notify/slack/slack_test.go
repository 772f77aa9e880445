package slack

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openaddresses/batch-sub000/internal/notify"
	slackapi "github.com/slack-go/slack"
)

type mockSlackClient struct {
	mu      sync.Mutex
	posted  []string
	errs    []error
	options [][]slackapi.MsgOption
}

func (m *mockSlackClient) PostMessageContext(_ context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", "", err
		}
	}
	m.posted = append(m.posted, channelID)
	m.options = append(m.options, options)
	return channelID, "1234567890.123456", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "C1"}); err == nil || !strings.Contains(err.Error(), "bot token") {
		t.Errorf("missing token err = %v", err)
	}
	if _, err := New(Opts{BotToken: "xoxb"}); err == nil || !strings.Contains(err.Error(), "channel") {
		t.Errorf("missing channel err = %v", err)
	}
}

func TestNotify_Posts(t *testing.T) {
	client := &mockSlackClient{}
	n, err := New(Opts{ChannelID: "C_ALERTS", Client: client})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg := notify.Message{Title: "t", Body: "b", Severity: "warning",
		Fields: []notify.Field{{Name: "Job", Value: "1", Short: true}}}
	if err := n.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(client.posted) != 1 || client.posted[0] != "C_ALERTS" {
		t.Errorf("posted = %v", client.posted)
	}
	if len(client.options[0]) != 2 {
		t.Errorf("options = %d, want text and attachments", len(client.options[0]))
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	client := &mockSlackClient{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	n, _ := New(Opts{ChannelID: "C", Client: client})

	if err := n.Notify(context.Background(), notify.Message{Title: "t"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(client.posted) != 1 {
		t.Errorf("posted %d times, want 1 after retry", len(client.posted))
	}
}

func TestNotify_NonRetryableError(t *testing.T) {
	client := &mockSlackClient{errs: []error{errors.New("channel_not_found")}}
	n, _ := New(Opts{ChannelID: "C", Client: client})

	err := n.Notify(context.Background(), notify.Message{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "slack: post message: channel_not_found") {
		t.Errorf("err = %v", err)
	}
}

func TestRetryOnRateLimit_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryOnRateLimit(ctx, func() error {
		return &slackapi.RateLimitedError{RetryAfter: time.Hour}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBuildMessageOptions_DefaultsColor(t *testing.T) {
	opts := buildMessageOptions(notify.Message{Title: "t", Severity: "error"})
	if len(opts) != 2 {
		t.Fatalf("options = %d", len(opts))
	}
}
