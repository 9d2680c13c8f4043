package chatadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/eventbus"
	"github.com/0xcha05/prime/internal/types"
)

// EventSource is the event bus source token inbound chat messages publish
// under.
const EventSource = "chat"

// MessageEvent is the event type published for an inbound chat message.
const MessageEvent = "message"

// Inbound is one raw inbound message, as decoded from either the push
// webhook body or a pull-mode update.
type Inbound struct {
	ChatID    string        `json:"chat_id"`
	UserID    string        `json:"user_id"`
	MessageID string        `json:"message_id"`
	Text      string        `json:"text"`
	Media     *InboundMedia `json:"media,omitempty"`
}

// InboundMedia describes a non-text attachment that must be downloaded
// before the event can be published.
type InboundMedia struct {
	Kind     string `json:"kind"` // provider-reported kind: "video", "photo", "audio", "document"
	URL      string `json:"url"`
	FileName string `json:"file_name"`
}

// Adapter validates inbound senders against an allow-list, downloads media
// attachments, and publishes resulting events onto the bus. Grounded on
// beads' internal/slackbot's single dispatch point for inbound Slack events
// (handleEventsAPI), generalized from Slack's event shape to a
// provider-agnostic Inbound struct.
type Adapter struct {
	log       *zap.Logger
	bus       *eventbus.Bus
	allowList map[string]bool
	mediaDir  string
	http      *http.Client
}

// New returns an Adapter that publishes to bus, accepting senders in
// allowedUsers and downloading media into mediaDir.
func New(bus *eventbus.Bus, allowedUsers []string, mediaDir string, log *zap.Logger) (*Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(mediaDir, 0o750); err != nil {
		return nil, fmt.Errorf("chatadapter: create media dir: %w", err)
	}
	allow := make(map[string]bool, len(allowedUsers))
	for _, u := range allowedUsers {
		allow[u] = true
	}
	return &Adapter{
		log:       log,
		bus:       bus,
		allowList: allow,
		mediaDir:  mediaDir,
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Ingest validates msg's sender against the allow-list, resolves its text
// (downloading media and substituting a textual reference if present), and
// publishes the resulting event. Senders outside the allow-list are
// silently dropped, per the provider adapter's inbound contract.
func (a *Adapter) Ingest(ctx context.Context, msg Inbound) error {
	if !a.allowList[msg.UserID] {
		a.log.Debug("chatadapter: dropping message from unlisted sender", zap.String("user_id", msg.UserID))
		return nil
	}

	text := msg.Text
	if msg.Media != nil {
		path, err := a.downloadMedia(ctx, *msg.Media)
		if err != nil {
			return fmt.Errorf("chatadapter: download media: %w", err)
		}
		text = fmt.Sprintf("[User sent %s. Downloaded to %s]", msg.Media.Kind, path)
	}

	a.bus.Publish(types.Event{
		ID:     uuid.NewString(),
		Source: EventSource,
		Type:   MessageEvent,
		Context: types.EventContext{
			ChatID:    msg.ChatID,
			UserID:    msg.UserID,
			MessageID: msg.MessageID,
		},
		Payload:   mustMarshal(map[string]string{"text": text}),
		Timestamp: time.Now(),
	})
	return nil
}

func (a *Adapter) downloadMedia(ctx context.Context, media InboundMedia) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, media.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("media download failed: status %d", resp.StatusCode)
	}

	name := media.FileName
	if name == "" {
		name = uuid.NewString()
	}
	dst := filepath.Join(a.mediaDir, sanitizeFileName(name))
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return dst, nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(name)
	return strings.ReplaceAll(name, "..", "_")
}

func mustMarshal(v map[string]string) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
