package slackprovider

import (
	"context"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/chatadapter"
)

// SocketFetcher adapts slack-go's Socket Mode event stream to
// chatadapter.Fetcher's poll-shaped interface. Grounded on
// internal/slackbot/bot.go's Run/handleEvent dispatch (the
// EventTypeEventsAPI case unwraps a slackevents.EventsAPIEvent and acks
// it), generalized from beads' decision-routing dispatch to
// chatadapter.Inbound construction. Socket Mode is also why
// Provider.SetWebhook/GetWebhookInfo have no real implementation: a
// Socket-Mode connection needs no public callback URL at all.
//
// Socket Mode pushes events over a managed WebSocket; it has no resumable
// cursor, so cursor is accepted only to satisfy the Fetcher signature and
// is always ignored, and FetchUpdates always returns "" as nextCursor.
type SocketFetcher struct {
	log       *zap.Logger
	client    *socketmode.Client
	botUserID string
	started   bool
}

// NewSocketFetcher wraps client. botUserID (from an AuthTest call at
// startup) is used to drop the bot's own messages from the inbound stream.
func NewSocketFetcher(client *socketmode.Client, botUserID string, log *zap.Logger) *SocketFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocketFetcher{log: log, client: client, botUserID: botUserID}
}

var _ chatadapter.Fetcher = (*SocketFetcher)(nil)

// FetchUpdates starts the Socket Mode connection on its first call, then
// blocks until at least one inbound message event arrives (or ctx ends),
// draining any further events already queued before returning.
func (f *SocketFetcher) FetchUpdates(ctx context.Context, cursor string) ([]chatadapter.Inbound, string, error) {
	if !f.started {
		f.started = true
		go func() {
			if err := f.client.RunContext(ctx); err != nil && ctx.Err() == nil {
				f.log.Error("slackprovider: socket mode connection exited", zap.Error(err))
			}
		}()
	}

	var msgs []chatadapter.Inbound
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case evt := <-f.client.Events:
		if m, ok := f.convert(evt); ok {
			msgs = append(msgs, m)
		}
	}

drain:
	for {
		select {
		case evt := <-f.client.Events:
			if m, ok := f.convert(evt); ok {
				msgs = append(msgs, m)
			}
		default:
			break drain
		}
	}

	return msgs, "", nil
}

// convert maps one Socket Mode event to an Inbound, acking events that
// require it. Returns ok=false for anything that isn't a plain inbound
// channel message (slash commands, interactive callbacks, connection
// lifecycle events, bot's-own-message echoes).
func (f *SocketFetcher) convert(evt socketmode.Event) (chatadapter.Inbound, bool) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return chatadapter.Inbound{}, false
	}
	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return chatadapter.Inbound{}, false
	}
	if evt.Request != nil {
		f.client.Ack(*evt.Request)
	}
	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return chatadapter.Inbound{}, false
	}
	msgEvent, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || msgEvent.SubType != "" || msgEvent.User == f.botUserID {
		return chatadapter.Inbound{}, false
	}
	return chatadapter.Inbound{
		ChatID:    msgEvent.Channel,
		UserID:    msgEvent.User,
		MessageID: msgEvent.TimeStamp,
		Text:      msgEvent.Text,
	}, true
}
