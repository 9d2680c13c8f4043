// Package chatadapter ingests inbound chat messages (push webhook or pull
// long-poll) into events and exposes outbound send operations, grounded on
// beads' internal/slackbot narrow-interface-over-a-concrete-client pattern
// (SlackAPI) generalized from beads' own Slack-only bot to a provider-shaped
// interface any chat backend can implement.
package chatadapter

import "context"

// Provider is the narrow surface chatadapter drives against a concrete chat
// backend. A real deployment backs it with github.com/slack-go/slack; tests
// substitute a fake.
type Provider interface {
	SendMessage(ctx context.Context, chatID, text string, markdown bool) (messageID string, err error)
	SendFile(ctx context.Context, chatID, path string, kind FileKind) (messageID string, err error)
	SendConfirmation(ctx context.Context, chatID, prompt, confirmLabel, cancelLabel string) (messageID string, err error)
	EditMessage(ctx context.Context, chatID, messageID, text string) error
	SetTyping(ctx context.Context, chatID string, typing bool) error
	SetWebhook(ctx context.Context, url string) error
	GetWebhookInfo(ctx context.Context) (url string, err error)
}

// ProviderError carries the HTTP-equivalent status the provider returned, so
// the outbound retry policy can tell a 4xx (retry without markdown) from
// anything else (surface immediately).
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string { return e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

func isClientError(err error) bool {
	pe, ok := err.(*ProviderError)
	return ok && pe.StatusCode >= 400 && pe.StatusCode < 500
}
