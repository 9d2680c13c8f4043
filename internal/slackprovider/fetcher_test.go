package slackprovider

import (
	"testing"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/stretchr/testify/require"
)

func TestConvertExtractsInboundMessage(t *testing.T) {
	f := NewSocketFetcher(nil, "BOT1", nil)
	evt := socketmode.Event{
		Type: socketmode.EventTypeEventsAPI,
		Data: slackevents.EventsAPIEvent{
			Type: slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Data: &slackevents.MessageEvent{
					Channel:   "C0TEST",
					User:      "U0HUMAN",
					TimeStamp: "1700000000.000100",
					Text:      "hello prime",
				},
			},
		},
	}
	msg, ok := f.convert(evt)
	require.True(t, ok)
	require.Equal(t, "C0TEST", msg.ChatID)
	require.Equal(t, "U0HUMAN", msg.UserID)
	require.Equal(t, "hello prime", msg.Text)
}

func TestConvertIgnoresBotsOwnMessages(t *testing.T) {
	f := NewSocketFetcher(nil, "BOT1", nil)
	evt := socketmode.Event{
		Type: socketmode.EventTypeEventsAPI,
		Data: slackevents.EventsAPIEvent{
			Type: slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Data: &slackevents.MessageEvent{
					Channel: "C0TEST",
					User:    "BOT1",
					Text:    "i am the bot",
				},
			},
		},
	}
	_, ok := f.convert(evt)
	require.False(t, ok)
}

func TestConvertIgnoresNonMessageEvents(t *testing.T) {
	f := NewSocketFetcher(nil, "BOT1", nil)
	_, ok := f.convert(socketmode.Event{Type: socketmode.EventTypeConnected})
	require.False(t, ok)
}

func TestConvertIgnoresMessageSubtypes(t *testing.T) {
	f := NewSocketFetcher(nil, "BOT1", nil)
	evt := socketmode.Event{
		Type: socketmode.EventTypeEventsAPI,
		Data: slackevents.EventsAPIEvent{
			Type: slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Data: &slackevents.MessageEvent{
					Channel: "C0TEST",
					User:    "U0HUMAN",
					SubType: "message_changed",
					Text:    "edited",
				},
			},
		},
	}
	_, ok := f.convert(evt)
	require.False(t, ok)
}
