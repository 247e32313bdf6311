package hostexec

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"log/slog"
)

// Command type constants understood by the agent's RPC mode.
const (
	commandNewSession    = "new_session"
	commandSwitchSession = "switch_session"
	commandPrompt        = "prompt"
)

// command is one line sent to the agent's stdin.
type command struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// response is one line read from the agent's stdout. Lines whose type
// is not "response" are streaming agent events and carry no command ID.
type response struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Command string          `json:"command"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client drives an agent subprocess running in RPC mode, speaking its
// line-delimited JSON command protocol over stdin/stdout. It implements
// Executor. Calls have no timeout of their own; cancel via ctx.
type Client struct {
	cmdPath string
	cmdArgs []string
	logger  *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc

	writeMu sync.Mutex
	stdin   io.Writer
	stdout  io.Reader

	seq       atomic.Int64
	pendingMu sync.Mutex
	pending   map[string]chan response
	closed    bool
}

// NewClient creates a client for the agent binary at cmdPath. Extra
// arguments are appended after the RPC mode flag.
func NewClient(cmdPath string, cmdArgs []string, logger *slog.Logger) *Client {
	return &Client{
		cmdPath: cmdPath,
		cmdArgs: cmdArgs,
		logger:  logger,
		pending: make(map[string]chan response),
	}
}

// Start spawns the agent subprocess and begins reading its output.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("agent already started")
	}

	childCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	args := append([]string{"--mode", "rpc"}, c.cmdArgs...)
	cmd := exec.Command(c.cmdPath, args...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		cancel()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		cancel()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		cancel()
		return fmt.Errorf("start agent: %w", err)
	}

	c.cmd = cmd
	c.attach(stdin, stdout)

	c.logger.Info("agent started", "path", c.cmdPath, "pid", cmd.Process.Pid)

	go c.readLoop(childCtx)
	go c.drainStderr(childCtx, stderr)
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

// Stop terminates the agent subprocess. It is a no-op if not started.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill agent: %w", err)
		}
	}
	c.cmd = nil

	return nil
}

// attach wires the transport and resets call state, so a client that
// was stopped (or whose agent died) works again after the next Start.
// Split out from Start so the protocol can be tested against
// in-process pipes.
func (c *Client) attach(stdin io.Writer, stdout io.Reader) {
	c.writeMu.Lock()
	c.stdin = stdin
	c.stdout = stdout
	c.writeMu.Unlock()

	c.pendingMu.Lock()
	c.closed = false
	c.pending = make(map[string]chan response)
	c.pendingMu.Unlock()
}

// StartNewSession sends a new_session command and returns the generated
// session identifier from the response. The description rides in the
// session title; hosts without image support ignore the images field.
func (c *Client) StartNewSession(ctx context.Context, description string, images []json.RawMessage) (string, error) {
	data, err := c.call(ctx, commandNewSession, "", map[string]any{
		"title":  description,
		"images": images,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		SessionID string `json:"sessionId"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return "", fmt.Errorf("decode new_session response: %w", err)
		}
	}
	return result.SessionID, nil
}

// ContinueSession switches the agent to the given session, then injects
// message as a prompt. The prompt response payload is returned opaquely.
func (c *Client) ContinueSession(ctx context.Context, sessionID, message string, images []json.RawMessage) (json.RawMessage, error) {
	if _, err := c.call(ctx, commandSwitchSession, "", map[string]any{"id": sessionID}); err != nil {
		return nil, err
	}
	return c.call(ctx, commandPrompt, message, map[string]any{"images": images})
}

// call sends one command line and waits for the matching response.
func (c *Client) call(ctx context.Context, cmdType, message string, data any) (json.RawMessage, error) {
	id := strconv.FormatInt(c.seq.Add(1), 10)

	ch := make(chan response, 1)
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, errors.New("agent process exited")
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.send(command{ID: id, Type: cmdType, Message: message, Data: data}); err != nil {
		c.unregister(id)
		return nil, err
	}

	select {
	case resp := <-ch:
		if !resp.Success {
			return nil, errors.New(resp.Error)
		}
		return resp.Data, nil
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	}
}

func (c *Client) send(cmd command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.stdin == nil {
		return errors.New("agent stdin not available")
	}
	if _, err := c.stdin.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

func (c *Client) unregister(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop reads stdout lines, dispatching responses to their waiters.
// Non-response lines are streaming agent events and are skipped.
func (c *Client) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Debug("unparseable agent output", "line", string(line))
			continue
		}
		if resp.Type != "response" || resp.ID == "" {
			c.logger.Debug("agent event", "type", resp.Type)
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.logger.Debug("response for unknown command", "id", resp.ID, "command", resp.Command)
			continue
		}
		ch <- resp
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("agent stdout read error", "error", err)
	}
	c.failPending()
}

// failPending wakes every in-flight call after the agent goes away.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- response{ID: id, Type: "response", Success: false, Error: "agent process exited"}
	}
}

func (c *Client) drainStderr(ctx context.Context, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		c.logger.Debug("agent stderr", "line", scanner.Text())
	}
}
