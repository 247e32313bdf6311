package hostexec

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/require"
)

// scriptedAgent wires a fresh Client to an in-process stand-in for the
// agent subprocess. handle receives each decoded command; returning nil
// sends no response.
func scriptedAgent(t *testing.T, handle func(cmd command) *response) (*Client, *io.PipeWriter) {
	t.Helper()

	c := NewClient("", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, attachScripted(t, c, handle)
}

// attachScripted attaches a scripted transport to an existing client,
// standing in for one Start of the agent subprocess.
func attachScripted(t *testing.T, c *Client, handle func(cmd command) *response) *io.PipeWriter {
	t.Helper()

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	c.attach(stdinW, stdoutR)
	go c.readLoop(context.Background())

	go func() {
		scanner := bufio.NewScanner(stdinR)
		enc := json.NewEncoder(stdoutW)
		for scanner.Scan() {
			var cmd command
			if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
				continue
			}
			if resp := handle(cmd); resp != nil {
				_ = enc.Encode(resp)
			}
		}
	}()

	t.Cleanup(func() {
		stdinW.Close()
		stdoutW.Close()
	})

	return stdoutW
}

func dataField(t *testing.T, cmd command, key string) any {
	t.Helper()
	data, ok := cmd.Data.(map[string]any)
	require.True(t, ok, "command %s should carry a data object", cmd.Type)
	return data[key]
}

func TestStartNewSession(t *testing.T) {
	var got command
	c, _ := scriptedAgent(t, func(cmd command) *response {
		got = cmd
		return &response{
			ID:      cmd.ID,
			Type:    "response",
			Command: cmd.Type,
			Success: true,
			Data:    json.RawMessage(`{"sessionId":"sess-1","cancelled":false}`),
		}
	})

	id, err := c.StartNewSession(context.Background(), "fix bug", nil)
	require.NoError(t, err)
	require.Equal(t, "sess-1", id)
	require.Equal(t, commandNewSession, got.Type)
	require.Equal(t, "fix bug", dataField(t, got, "title"))
}

func TestStartNewSessionNoSurface(t *testing.T) {
	c, _ := scriptedAgent(t, func(cmd command) *response {
		return &response{ID: cmd.ID, Type: "response", Command: cmd.Type, Success: true}
	})

	id, err := c.StartNewSession(context.Background(), "fix bug", nil)
	require.NoError(t, err)
	require.Empty(t, id, "missing sessionId in the response should map to an empty identifier")
}

func TestContinueSessionSwitchesThenPrompts(t *testing.T) {
	var order []string
	var switchCmd, promptCmd command
	c, _ := scriptedAgent(t, func(cmd command) *response {
		order = append(order, cmd.Type)
		resp := &response{ID: cmd.ID, Type: "response", Command: cmd.Type, Success: true}
		switch cmd.Type {
		case commandSwitchSession:
			switchCmd = cmd
			resp.Data = json.RawMessage(`{"switched":true}`)
		case commandPrompt:
			promptCmd = cmd
			resp.Data = json.RawMessage(`{"status":"queued"}`)
		}
		return resp
	})

	result, err := c.ContinueSession(context.Background(), "sess-9", "also fix typo", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"queued"}`, string(result))
	require.Equal(t, []string{commandSwitchSession, commandPrompt}, order)
	require.Equal(t, "sess-9", dataField(t, switchCmd, "id"))
	require.Equal(t, "also fix typo", promptCmd.Message)
}

func TestHostErrorSurfacesMessage(t *testing.T) {
	c, _ := scriptedAgent(t, func(cmd command) *response {
		return &response{ID: cmd.ID, Type: "response", Command: cmd.Type, Success: false, Error: "no active window"}
	})

	_, err := c.StartNewSession(context.Background(), "fix bug", nil)
	require.EqualError(t, err, "no active window")
}

func TestEventLinesSkipped(t *testing.T) {
	var stdoutW *io.PipeWriter
	c, stdoutW := scriptedAgent(t, func(cmd command) *response {
		// Emit a streaming event before the real response.
		enc := json.NewEncoder(stdoutW)
		_ = enc.Encode(map[string]any{"type": "message_update", "delta": "thinking..."})
		return &response{
			ID:      cmd.ID,
			Type:    "response",
			Command: cmd.Type,
			Success: true,
			Data:    json.RawMessage(`{"sessionId":"sess-2"}`),
		}
	})

	id, err := c.StartNewSession(context.Background(), "fix bug", nil)
	require.NoError(t, err)
	require.Equal(t, "sess-2", id)
}

func TestProcessExitFailsPendingCalls(t *testing.T) {
	var stdoutW *io.PipeWriter
	c, stdoutW := scriptedAgent(t, func(cmd command) *response {
		// Never respond; simulate the agent dying mid-call.
		go func() {
			time.Sleep(10 * time.Millisecond)
			stdoutW.Close()
		}()
		return nil
	})

	_, err := c.StartNewSession(context.Background(), "fix bug", nil)
	require.EqualError(t, err, "agent process exited")

	// Subsequent calls fail fast once the process is gone.
	_, err = c.StartNewSession(context.Background(), "again", nil)
	require.EqualError(t, err, "agent process exited")
}

func TestReattachAfterProcessExit(t *testing.T) {
	c := NewClient("", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// First agent incarnation dies before responding.
	stdoutW := attachScripted(t, c, func(cmd command) *response { return nil })
	stdoutW.Close()

	_, err := c.StartNewSession(context.Background(), "fix bug", nil)
	require.EqualError(t, err, "agent process exited")

	// A fresh transport, as wired by a subsequent Start, must work.
	attachScripted(t, c, func(cmd command) *response {
		return &response{
			ID:      cmd.ID,
			Type:    "response",
			Command: cmd.Type,
			Success: true,
			Data:    json.RawMessage(`{"sessionId":"sess-3"}`),
		}
	})

	id, err := c.StartNewSession(context.Background(), "fix bug", nil)
	require.NoError(t, err)
	require.Equal(t, "sess-3", id)
}

func TestCallContextCancel(t *testing.T) {
	c, _ := scriptedAgent(t, func(cmd command) *response {
		return nil // never respond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.StartNewSession(ctx, "fix bug", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
