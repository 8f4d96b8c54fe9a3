package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/term"
)

// Client talks to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fserrors.TransportError("failed to connect to daemon", err).
			WithSuggestion("Start it with 'fsindex daemon start'")
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	return c.call(ctx, MethodPing, nil, &res, true)
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status, true); err != nil {
		return nil, err
	}
	return &status, nil
}

// Register asks the daemon to index the given paths. Directory walks can
// take long, so only ctx bounds the exchange.
func (c *Client) Register(ctx context.Context, paths ...string) ([]PathResult, error) {
	params := PathsParams{Paths: paths}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var out []PathResult
	if err := c.call(ctx, MethodRegister, params, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

// Unregister asks the daemon to stop indexing the given paths.
func (c *Client) Unregister(ctx context.Context, paths ...string) ([]PathResult, error) {
	params := PathsParams{Paths: paths}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var out []PathResult
	if err := c.call(ctx, MethodUnregister, params, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

// Search returns the files containing t, best first.
func (c *Client) Search(ctx context.Context, t term.Term) ([]string, error) {
	params := SearchParams{Kind: t.Kind.String(), Text: t.Text}
	if _, err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res SearchResult
	if err := c.call(ctx, MethodSearch, params, &res, true); err != nil {
		return nil, err
	}
	return res.Paths, nil
}

// Cancel requests cancellation of an in-flight or future directory walk.
func (c *Client) Cancel(ctx context.Context, path string) (*PathResult, error) {
	params := CancelParams{Path: path}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res PathResult
	if err := c.call(ctx, MethodCancel, params, &res, true); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reset drops all daemon state.
func (c *Client) Reset(ctx context.Context) error {
	var res AckResult
	return c.call(ctx, MethodReset, nil, &res, true)
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	var res AckResult
	return c.call(ctx, MethodShutdown, nil, &res, true)
}

// call performs one request/response exchange. When bounded is set the
// client timeout caps the exchange in addition to any ctx deadline.
func (c *Client) call(ctx context.Context, method string, params any, out any, bounded bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	var deadline time.Time
	if bounded {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock the exchange when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := c.send(conn, req); err != nil {
		return err
	}

	resp, err := c.receive(conn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fserrors.New(fserrors.ErrCodeDaemonTimeout, method+" timed out", err)
		}
		return err
	}

	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s (code: %d)", method, resp.Error.Message, resp.Error.Code)
	}

	resultData, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultData, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// send encodes and writes a request to the connection.
func (c *Client) send(conn net.Conn, req Request) error {
	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// receive reads and decodes a response from the connection.
func (c *Client) receive(conn net.Conn) (*Response, error) {
	decoder := json.NewDecoder(conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
