package eventbus

import (
	"context"

	"github.com/0xcha05/prime/internal/types"
)

// Handler reacts to events matching a subscription's pattern.
type Handler func(ctx context.Context, event types.Event)

type subscription struct {
	id      string
	pattern string
	handler Handler
}
