package schema

import "context"

// MessageHandler processes one inbound message. Listen calls it sequentially:
// the next message is not handed over until the previous call returns.
type MessageHandler func(ctx context.Context, msg InboundMessage)

// Directory resolves a symbolic chat name such as "@channel" to its ID.
type Directory interface {
	Lookup(ctx context.Context, name string) (ResolvedID, error)
}

// Sender performs outbound sends. Implementations report backpressure with
// *RateLimitError and missing rights with *PermissionError.
type Sender interface {
	// SendText sends text to dest; markup enables HTML parse mode.
	SendText(ctx context.Context, dest ResolvedID, text string, markup bool) error
	// SendMedia re-sends media to dest with the given caption.
	SendMedia(ctx context.Context, dest ResolvedID, media MediaRef, caption string) error
}

// MessagingClient is the contract the mirroring core needs from the chat platform.
type MessagingClient interface {
	Directory
	Sender

	// Connect establishes (or re-establishes) the platform session.
	Connect(ctx context.Context) error
	// Disconnect releases the session; safe to call when not connected.
	Disconnect()
	// Listen delivers messages from the given sources to handler until the
	// connection drops or ctx is cancelled.
	Listen(ctx context.Context, sources []ResolvedID, handler MessageHandler) error
}
