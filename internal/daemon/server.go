package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/fsindex/internal/engine"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/internal/term"
)

// requestReadTimeout bounds how long a client may take to send its request.
// Handling itself is unbounded: a registration walks whole trees.
const requestReadTimeout = 30 * time.Second

// RequestHandler handles incoming RPC requests.
type RequestHandler interface {
	HandleRegister(ctx context.Context, paths []string) []PathResult
	HandleUnregister(ctx context.Context, paths []string) []PathResult
	HandleSearch(ctx context.Context, t term.Term) ([]string, error)
	HandleCancel(path string) PathResult
	HandleReset()
	EngineStatus() engine.Status
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    RequestHandler
	onShutdown func()
	logger     *slog.Logger
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		socketPath: socketPath,
		logger:     logging.Component(logger, "server"),
	}, nil
}

// SetHandler sets the request handler.
func (s *Server) SetHandler(h RequestHandler) {
	s.handler = h
}

// SetShutdownFunc sets the callback run by the shutdown method.
func (s *Server) SetShutdownFunc(fn func()) {
	s.onShutdown = fn
}

// ListenAndServe starts the server and blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("server listening", slog.String("socket", s.socketPath))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	// Wait for active connections to finish
	s.wg.Wait()

	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(requestReadTimeout)); err != nil {
		s.logger.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		resp := NewErrorResponse("", ErrCodeParseError, "failed to parse request")
		_ = encoder.Encode(resp)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	resp := s.handleRequest(ctx, req)
	if err := encoder.Encode(resp); err != nil {
		s.logger.Debug("failed to write response",
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
	}
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.getStatus())

	case MethodShutdown:
		if s.onShutdown != nil {
			// The callback only cancels; this response is still written.
			defer s.onShutdown()
		}
		return NewSuccessResponse(req.ID, AckResult{Message: "shutting down"})
	}

	if s.handler == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no handler configured")
	}

	switch req.Method {
	case MethodRegister, MethodUnregister:
		var params PathsParams
		if err := decodeParams(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if err := params.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if req.Method == MethodRegister {
			return NewSuccessResponse(req.ID, s.handler.HandleRegister(ctx, params.Paths))
		}
		return NewSuccessResponse(req.ID, s.handler.HandleUnregister(ctx, params.Paths))

	case MethodSearch:
		return s.handleSearch(ctx, req)

	case MethodCancel:
		var params CancelParams
		if err := decodeParams(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if err := params.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		return NewSuccessResponse(req.ID, s.handler.HandleCancel(params.Path))

	case MethodReset:
		s.handler.HandleReset()
		return NewSuccessResponse(req.ID, AckResult{Message: "state reset"})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if err := decodeParams(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	t, err := params.Validate()
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	paths, err := s.handler.HandleSearch(ctx, t)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeSearchFailed, err.Error())
	}
	if paths == nil {
		paths = []string{}
	}
	return NewSuccessResponse(req.ID, SearchResult{Paths: paths})
}

// decodeParams re-decodes the generic params value into out.
func decodeParams(params any, out any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode params")
	}
	return nil
}

// getStatus returns the current server status.
func (s *Server) getStatus() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
	}
	if s.handler != nil {
		status.Engine = s.handler.EngineStatus()
	}
	return status
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
