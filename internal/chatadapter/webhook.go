package chatadapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// SigningHeader is the header carrying the request's HMAC-SHA256 signature,
// in "sha256=<hex>" form — the same scheme Slack's Events API uses.
const SigningHeader = "X-Prime-Signature"

// WebhookHandler implements push-mode ingestion: an inbound HTTP handler
// that verifies the request signature before handing the decoded body to
// Adapter.Ingest. Requests whose signature does not match are rejected with
// 403, per the adapter's push-mode contract.
type WebhookHandler struct {
	log          *zap.Logger
	adapter      *Adapter
	signingToken string
	decode       func([]byte) (Inbound, error)
}

// NewWebhookHandler returns a WebhookHandler that verifies requests against
// signingToken and decodes bodies with decode.
func NewWebhookHandler(adapter *Adapter, signingToken string, decode func([]byte) (Inbound, error), log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{log: log, adapter: adapter, signingToken: signingToken, decode: decode}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !h.verify(r.Header.Get(SigningHeader), body) {
		h.log.Warn("chatadapter: rejected webhook with invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	msg, err := h.decode(body)
	if err != nil {
		h.log.Warn("chatadapter: failed to decode webhook body", zap.Error(err))
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.adapter.Ingest(r.Context(), msg); err != nil {
		h.log.Error("chatadapter: ingest failed", zap.Error(err))
		http.Error(w, "ingest failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) verify(header string, body []byte) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.signingToken))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.TrimPrefix(header, prefix)), []byte(expected))
}

// DecodeJSONInbound is the default decode function for providers that send
// a flat JSON body matching Inbound's fields.
func DecodeJSONInbound(body []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(body, &msg); err != nil {
		return Inbound{}, err
	}
	return msg, nil
}
