package slackprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/0xcha05/prime/internal/chatadapter"
)

type fakeAPI struct {
	postErr   error
	updateErr error
	uploadErr error

	lastChannel    string
	lastNumOptions int
}

func (f *fakeAPI) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.lastChannel = channelID
	f.lastNumOptions = len(options)
	if f.postErr != nil {
		return "", "", f.postErr
	}
	return channelID, "1700000000.000100", nil
}

func (f *fakeAPI) UpdateMessage(channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	if f.updateErr != nil {
		return "", "", "", f.updateErr
	}
	return channelID, timestamp, "edited text", nil
}

func (f *fakeAPI) DeleteMessage(channelID, timestamp string) (string, string, error) {
	return channelID, timestamp, nil
}

func (f *fakeAPI) UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &slack.FileSummary{ID: "F0123456"}, nil
}

func TestSendMessageReturnsTimestampAsMessageID(t *testing.T) {
	f := &fakeAPI{}
	p := New(f, nil)
	id, err := p.SendMessage(context.Background(), "C0TEST", "hello", true)
	require.NoError(t, err)
	require.Equal(t, "1700000000.000100", id)
	require.Equal(t, "C0TEST", f.lastChannel)
}

func TestSendMessageWrapsProviderError(t *testing.T) {
	f := &fakeAPI{postErr: errors.New("channel_not_found")}
	p := New(f, nil)
	_, err := p.SendMessage(context.Background(), "C0TEST", "hello", false)
	require.Error(t, err)
	var pe *chatadapter.ProviderError
	require.ErrorAs(t, err, &pe)
}

func TestSendConfirmationPostsTwoButtons(t *testing.T) {
	f := &fakeAPI{}
	p := New(f, nil)
	id, err := p.SendConfirmation(context.Background(), "C0TEST", "proceed?", "Yes", "No")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, 1, f.lastNumOptions)
}

func TestSendFileReturnsFileID(t *testing.T) {
	f := &fakeAPI{}
	p := New(f, nil)
	id, err := p.SendFile(context.Background(), "C0TEST", "/tmp/report.pdf", chatadapter.FileKindDocument)
	require.NoError(t, err)
	require.Equal(t, "F0123456", id)
}

func TestEditMessageDelegatesToUpdateMessage(t *testing.T) {
	f := &fakeAPI{}
	p := New(f, nil)
	err := p.EditMessage(context.Background(), "C0TEST", "1700000000.000100", "updated")
	require.NoError(t, err)
}

func TestSetTypingIsNoop(t *testing.T) {
	p := New(&fakeAPI{}, nil)
	require.NoError(t, p.SetTyping(context.Background(), "C0TEST", true))
}

func TestSetWebhookAndGetWebhookInfoAreUnsupported(t *testing.T) {
	p := New(&fakeAPI{}, nil)
	require.Error(t, p.SetWebhook(context.Background(), "https://example.com/hook"))
	_, err := p.GetWebhookInfo(context.Background())
	require.Error(t, err)
}

func TestRateLimitedErrorMapsTo429(t *testing.T) {
	f := &fakeAPI{postErr: &slack.RateLimitedError{}}
	p := New(f, nil)
	_, err := p.SendMessage(context.Background(), "C0TEST", "hi", false)
	var pe *chatadapter.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 429, pe.StatusCode)
}
