package chatadapter

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Outbound wraps a Provider with the retry-once-without-markdown policy:
// on a 4xx from the provider when markdown was requested, retry a single
// time with markdown stripped, then surface whatever the retry returns.
// Grounded on beads' cenkalti/backoff/v4 dependency, used here for a single
// bounded attempt (backoff.WithMaxRetries(..., 0)) rather than its usual
// multi-attempt exponential policy.
type Outbound struct {
	log      *zap.Logger
	provider Provider
}

// NewOutbound wraps provider for send operations.
func NewOutbound(provider Provider, log *zap.Logger) *Outbound {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbound{log: log, provider: provider}
}

// SendMessage sends text, retrying once with markdown disabled if the
// provider rejects a markdown-formatted send with a 4xx.
func (o *Outbound) SendMessage(ctx context.Context, chatID, text string, markdown bool) (string, error) {
	var messageID string
	attempt := func() error {
		id, err := o.provider.SendMessage(ctx, chatID, text, markdown)
		messageID = id
		return err
	}

	err := attempt()
	if err != nil && markdown && isClientError(err) {
		o.log.Warn("chatadapter: markdown send rejected, retrying without markdown", zap.String("chat_id", chatID), zap.Error(err))
		markdown = false
		err = o.retryOnce(attempt)
	}
	return messageID, err
}

func (o *Outbound) SendFile(ctx context.Context, chatID, path string, kind FileKind) (string, error) {
	return o.provider.SendFile(ctx, chatID, path, kind)
}

func (o *Outbound) SendConfirmation(ctx context.Context, chatID, prompt, confirmLabel, cancelLabel string) (string, error) {
	return o.provider.SendConfirmation(ctx, chatID, prompt, confirmLabel, cancelLabel)
}

func (o *Outbound) EditMessage(ctx context.Context, chatID, messageID, text string) error {
	return o.provider.EditMessage(ctx, chatID, messageID, text)
}

func (o *Outbound) SetTyping(ctx context.Context, chatID string, typing bool) error {
	return o.provider.SetTyping(ctx, chatID, typing)
}

func (o *Outbound) SetWebhook(ctx context.Context, url string) error {
	return o.provider.SetWebhook(ctx, url)
}

func (o *Outbound) GetWebhookInfo(ctx context.Context) (string, error) {
	return o.provider.GetWebhookInfo(ctx)
}

// retryOnce runs fn exactly one additional time via backoff's retry
// machinery, matching the spec's "retry once, then surface the failure"
// contract rather than backoff's usual repeated-attempt behavior.
func (o *Outbound) retryOnce(fn func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 0)
	return backoff.Retry(fn, policy)
}
