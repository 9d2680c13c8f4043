package brain

import (
	"context"
	"encoding/json"
)

// rememberInput/recallInput key the brain's scratch-pad cache
// (internal/storage), namespaced per chat so one user's notes never leak
// into another's.
type rememberInput struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

func (s *Services) dispatchRemember(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	if s.Cache == nil {
		return errOutput("remember: no cache backend configured")
	}
	var in rememberInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	if err := s.Cache.Set(ctx, cacheKey(chatID, in.Key), []byte(in.Value), in.TTLSeconds); err != nil {
		return errOutput("remember: %v", err)
	}
	return jsonOutput(map[string]string{"status": "stored"})
}

type recallInput struct {
	Key string `json:"key"`
}

func (s *Services) dispatchRecall(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	if s.Cache == nil {
		return errOutput("recall: no cache backend configured")
	}
	var in recallInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	value, found, err := s.Cache.Get(ctx, cacheKey(chatID, in.Key))
	if err != nil {
		return errOutput("recall: %v", err)
	}
	if !found {
		return jsonOutput(map[string]any{"found": false})
	}
	return jsonOutput(map[string]any{"found": true, "value": string(value)})
}

func cacheKey(chatID, key string) string {
	return chatID + ":" + key
}
