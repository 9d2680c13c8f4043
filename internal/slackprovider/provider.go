// Package slackprovider backs chatadapter.Provider with a real Slack
// connection. Grounded on beads' internal/slackbot: the same
// narrow-interface-over-slack.Client pattern (api below mirrors
// slackbot.SlackAPI) so tests substitute a fake instead of dialing Slack,
// and the same Block Kit construction beads' bot.go uses for button-bearing
// messages.
//
// Kept out of internal/chatadapter itself: that package's Provider
// interface is backend-agnostic, and wiring a concrete Slack client into it
// would make every chatadapter test depend on slack-go. The concrete
// backend is instead assembled at the cmd/primed composition root.
package slackprovider

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/chatadapter"
)

// api is the subset of slack.Client this package drives, narrowed the same
// way slackbot.SlackAPI narrows it, so a fake can stand in for tests.
type api interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	DeleteMessage(channelID, timestamp string) (string, string, error)
	UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Provider implements chatadapter.Provider over a Slack bot token.
type Provider struct {
	log    *zap.Logger
	client api
}

// New wraps a slack.Client (or a fake satisfying api, in tests) as a
// chatadapter.Provider.
func New(client api, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{log: log, client: client}
}

var _ chatadapter.Provider = (*Provider)(nil)

// SendMessage posts text to chatID (a Slack channel or user ID). markdown
// is a no-op here: Slack's PostMessage already renders mrkdwn by default,
// unlike Telegram's explicit parse-mode switch the interface was modeled on.
func (p *Provider) SendMessage(ctx context.Context, chatID, text string, markdown bool) (string, error) {
	_, ts, err := p.client.PostMessage(chatID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", wrapErr(err)
	}
	return ts, nil
}

// SendFile uploads the file at path to chatID. kind only affects beads-style
// classification upstream; Slack's upload API doesn't distinguish media
// kinds, so it is accepted but unused here.
func (p *Provider) SendFile(ctx context.Context, chatID, path string, kind chatadapter.FileKind) (string, error) {
	summary, err := p.client.UploadFileV2(slack.UploadFileV2Parameters{
		Channel:  chatID,
		File:     path,
		Filename: filepath.Base(path),
	})
	if err != nil {
		return "", wrapErr(err)
	}
	return summary.ID, nil
}

// SendConfirmation posts prompt with two buttons. The pressed button
// arrives back through the ordinary inbound interaction flow, not as a
// return value here.
func (p *Provider) SendConfirmation(ctx context.Context, chatID, prompt, confirmLabel, cancelLabel string) (string, error) {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", prompt, false, false), nil, nil),
		slack.NewActionBlock("",
			slack.NewButtonBlockElement("confirm", "confirm",
				slack.NewTextBlockObject("plain_text", confirmLabel, false, false)),
			slack.NewButtonBlockElement("cancel", "cancel",
				slack.NewTextBlockObject("plain_text", cancelLabel, false, false)),
		),
	}
	_, ts, err := p.client.PostMessage(chatID, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return "", wrapErr(err)
	}
	return ts, nil
}

// EditMessage updates the text of a previously sent message. messageID is
// the Slack timestamp SendMessage/SendConfirmation returned.
func (p *Provider) EditMessage(ctx context.Context, chatID, messageID, text string) error {
	_, _, _, err := p.client.UpdateMessage(chatID, messageID, slack.MsgOptionText(text, false))
	return wrapErr(err)
}

// SetTyping is a no-op: Slack's Web API has no typing-indicator endpoint
// for bot tokens (it exists only over the legacy RTM connection, which this
// provider doesn't use).
func (p *Provider) SetTyping(ctx context.Context, chatID string, typing bool) error {
	return nil
}

// SetWebhook always errors: Slack's inbound Events API request URL is
// configured in the app's dashboard, not set dynamically through an API
// call the way Telegram's setWebhook works.
func (p *Provider) SetWebhook(ctx context.Context, url string) error {
	return errors.New("slackprovider: webhook URL is configured in the Slack app dashboard, not set dynamically")
}

// GetWebhookInfo always errors, for the same reason as SetWebhook.
func (p *Provider) GetWebhookInfo(ctx context.Context) (string, error) {
	return "", errors.New("slackprovider: webhook URL is configured in the Slack app dashboard, not queryable via API")
}

// wrapErr classifies a slack-go error into a chatadapter.ProviderError so
// Outbound's retry-once-without-markdown policy can tell a rejected request
// from a transient failure.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	status := 500
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		status = 429
	}
	return &chatadapter.ProviderError{StatusCode: status, Err: fmt.Errorf("slackprovider: %w", err)}
}
