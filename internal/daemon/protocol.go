package daemon

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/fsindex/internal/engine"
	"github.com/Aman-CERP/fsindex/internal/term"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing       = "ping"
	MethodStatus     = "status"
	MethodRegister   = "register"
	MethodUnregister = "unregister"
	MethodSearch     = "search"
	MethodCancel     = "cancel"
	MethodReset      = "reset"
	MethodShutdown   = "shutdown"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	ErrCodeSearchFailed = -32002
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// PathsParams are the parameters for register and unregister.
type PathsParams struct {
	Paths []string `json:"paths"`
}

// Validate checks that at least one non-blank path is present.
func (p *PathsParams) Validate() error {
	if len(p.Paths) == 0 {
		return fmt.Errorf("paths is required")
	}
	for _, path := range p.Paths {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("paths must not contain blank entries")
		}
	}
	return nil
}

// CancelParams are the parameters for cancel.
type CancelParams struct {
	Path string `json:"path"`
}

// Validate checks that the path is present.
func (p *CancelParams) Validate() error {
	if strings.TrimSpace(p.Path) == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	// Kind is "word" or "sentence".
	Kind string `json:"kind"`

	// Text is the exact term to look up.
	Text string `json:"text"`
}

// Validate checks the kind and text and returns the parsed term.
func (p *SearchParams) Validate() (term.Term, error) {
	kind, err := term.ParseKind(p.Kind)
	if err != nil {
		return term.Term{}, err
	}
	t, err := term.New(kind, p.Text)
	if err != nil {
		return term.Term{}, err
	}
	return t, nil
}

// PathResult is the outcome of one path in a register, unregister or
// cancel call.
type PathResult struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// SearchResult lists matching files, best first.
type SearchResult struct {
	Paths []string `json:"paths"`
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running bool          `json:"running"`
	PID     int           `json:"pid"`
	Uptime  string        `json:"uptime"`
	Engine  engine.Status `json:"engine"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}

// AckResult acknowledges reset and shutdown.
type AckResult struct {
	Message string `json:"message"`
}
