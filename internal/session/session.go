package session

import "context"

// Target is one fully addressed outbound message.
type Target struct {
	Phone   string
	Message string
	URL     string
}

// Session is an authenticated connection to the messaging channel.
type Session interface {
	// Send submits target and returns once the channel accepted it. The
	// caller bounds the wait through ctx.
	Send(ctx context.Context, target Target) error
	Close() error
}

// Launcher opens a new session and blocks until it is authenticated or ctx
// ends. A failed launch must not leave anything running.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
