package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"motorctl/internal/motor"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "request_name", "data": {...}}
//   - Server responds: {"status": "ok", "data": {...}} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
	Data   any    `json:"data,omitempty"`
}

func okResponse(data any) IPCResponse { return IPCResponse{Status: "ok", Data: data} }

func errorResponse(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}

// ipcHandler executes requests against the running daemon.
type ipcHandler struct {
	input    *OverrideInput
	requests chan<- StatusRequest
	timeout  time.Duration
	logger   *slog.Logger
}

func (h ipcHandler) handle(ctx context.Context, req Request) IPCResponse {
	switch r := req.(type) {
	case GetStatus:
		s, err := requestStatus(ctx, h.requests, h.timeout)
		if err != nil {
			return errorResponse(fmt.Errorf("status: %w", err))
		}
		return okResponse(s)

	case SetInput:
		if r.Raw < 0 || r.Raw > motor.RawMax {
			return errorResponse(fmt.Errorf("raw must be between 0 and %d", motor.RawMax))
		}
		h.input.Set(r.Raw)
		h.logger.Info("input override set", "raw", r.Raw)
		return okResponse(nil)

	case ClearInput:
		h.input.Clear()
		h.logger.Info("input override cleared")
		return okResponse(nil)

	default:
		return errorResponse(fmt.Errorf("unhandled request %T", req))
	}
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, h ipcHandler, logger *slog.Logger) error {
	// Remove a stale socket left by a previous run
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Make socket accessible to unprivileged control tools
	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, h, logger)
	}
}

// handleIPCConnection serves one client until it disconnects.
func handleIPCConnection(ctx context.Context, conn net.Conn, h ipcHandler, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		var response IPCResponse
		req, err := UnmarshalRequest([]byte(line))
		if err != nil {
			response = errorResponse(fmt.Errorf("parse request: %w", err))
		} else {
			response = h.handle(ctx, req)
		}

		if encErr := encoder.Encode(response); encErr != nil {
			logger.Error("IPC failed to send response", "error", encErr)
			return
		}
	}

	logger.Debug("IPC connection closed")
}
