package gateway

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/tiancaiamao/agentgate/pkg/hostexec"
	"github.com/tiancaiamao/agentgate/pkg/registry"
)

// Gateway translates external task requests into host commands. It owns
// no session state of its own beyond the alias registry it is given.
type Gateway struct {
	executor hostexec.Executor
	registry *registry.Registry
	logger   *slog.Logger
}

// New creates a gateway backed by the given executor and registry.
func New(executor hostexec.Executor, reg *registry.Registry, logger *slog.Logger) *Gateway {
	return &Gateway{
		executor: executor,
		registry: reg,
		logger:   logger,
	}
}

// CreateSessionRequest carries the inputs of a create-session operation.
type CreateSessionRequest struct {
	Description string
	Images      []json.RawMessage
	Alias       string
}

// CreateSessionResult is the outcome of a successful create-session
// operation. SessionID is empty when the host had no active surface.
type CreateSessionResult struct {
	SessionID string
	Alias     string
}

// ContinueSessionRequest carries the inputs of a continue-session
// operation. SessionID, when set, wins over Alias.
type ContinueSessionRequest struct {
	SessionID string
	Alias     string
	Message   string
	Images    []json.RawMessage
}

// CreateSession asks the host to start a new session and, when an alias
// was supplied and the host returned an identifier, records the binding.
func (g *Gateway) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	if req.Description == "" {
		return nil, &ValidationError{msg: "description is required"}
	}

	images := req.Images
	if images == nil {
		images = []json.RawMessage{}
	}

	sessionID, err := g.executor.StartNewSession(ctx, req.Description, images)
	if err != nil {
		return nil, &HostError{cause: err}
	}

	if req.Alias != "" && sessionID != "" {
		g.registry.Bind(req.Alias, sessionID)
		g.logger.Info("alias bound", "alias", req.Alias, "sessionId", sessionID)
	}

	return &CreateSessionResult{SessionID: sessionID, Alias: req.Alias}, nil
}

// ContinueSession resolves the target session and injects the message
// into it, returning the host's result payload opaquely.
func (g *Gateway) ContinueSession(ctx context.Context, req ContinueSessionRequest) (json.RawMessage, error) {
	if req.Message == "" {
		return nil, &ValidationError{msg: "message is required"}
	}

	// An explicit session identifier wins outright, even when the alias
	// is bound to a different one.
	sessionID := req.SessionID
	if sessionID == "" && req.Alias != "" {
		if id, ok := g.registry.Resolve(req.Alias); ok {
			sessionID = id
		}
	}
	if sessionID == "" {
		return nil, &ValidationError{msg: "Valid taskId or customId is required"}
	}

	images := req.Images
	if images == nil {
		images = []json.RawMessage{}
	}

	result, err := g.executor.ContinueSession(ctx, sessionID, req.Message, images)
	if err != nil {
		return nil, &HostError{cause: err}
	}
	return result, nil
}
