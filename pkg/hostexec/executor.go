package hostexec

import (
	"context"
	"encoding/json"
)

// Executor is the host capability that actually creates and continues
// agent sessions. The gateway invokes it and never looks inside the
// payloads it returns.
type Executor interface {
	// StartNewSession asks the host to discard any currently active
	// session, create a new one from description, and return its
	// generated identifier. An empty identifier is a valid outcome
	// (the host had no active surface to attach the session to).
	StartNewSession(ctx context.Context, description string, images []json.RawMessage) (string, error)

	// ContinueSession asks the host to load the session with the given
	// identifier and inject message as if the user had typed it in the
	// live interface. The returned payload is opaque to callers.
	ContinueSession(ctx context.Context, sessionID, message string, images []json.RawMessage) (json.RawMessage, error)
}
