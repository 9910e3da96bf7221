package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// motor-ctl - Command-line IPC Client
// ============================================================================
// Sends one request to the motord daemon and prints the result.
//
// Usage:
//   motor-ctl status
//   motor-ctl set 700
//   motor-ctl clear
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/motorctl.sock)
// ============================================================================

const (
	defaultSocketPath = "/tmp/motorctl.sock"
	rawMax            = 1023
	dialTimeout       = 2 * time.Second
)

var errUsage = errors.New("usage")

// RequestEnvelope wraps a request for JSON (mirrors the daemon's wire format)
type RequestEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func main() {
	socketPath, args, err := parseArgs(os.Args[1:])
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		printUsage()
		os.Exit(1)
	}

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return
	}

	env, err := buildRequest(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := printResponse(os.Stdout, resp); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs strips the optional leading -socket flag.
func parseArgs(args []string) (socketPath string, rest []string, err error) {
	socketPath = defaultSocketPath

	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			return "", nil, errors.New("-socket requires an argument")
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		return "", nil, errUsage
	}
	return socketPath, args, nil
}

// buildRequest turns a command line into a request envelope.
func buildRequest(args []string) (RequestEnvelope, error) {
	switch args[0] {
	case "status", "get":
		return RequestEnvelope{Type: "get_status"}, nil

	case "set":
		if len(args) < 2 {
			return RequestEnvelope{}, errors.New("set requires a raw value (0..1023)")
		}
		raw, err := strconv.Atoi(args[1])
		if err != nil {
			return RequestEnvelope{}, fmt.Errorf("invalid raw value: %w", err)
		}
		if raw < 0 || raw > rawMax {
			return RequestEnvelope{}, fmt.Errorf("raw value must be between 0 and %d", rawMax)
		}
		data, err := json.Marshal(struct {
			Raw int `json:"raw"`
		}{raw})
		if err != nil {
			return RequestEnvelope{}, fmt.Errorf("marshal set_input: %w", err)
		}
		return RequestEnvelope{Type: "set_input", Data: data}, nil

	case "clear", "release":
		return RequestEnvelope{Type: "clear_input"}, nil

	default:
		return RequestEnvelope{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func send(socketPath string, env RequestEnvelope) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(dialTimeout))

	data, err := json.Marshal(env)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

// printResponse prints "ok", or the indented data payload when there is one.
func printResponse(w io.Writer, resp IPCResponse) error {
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}

	var v any
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", pretty)
	return err
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `motor-ctl - Control the motord daemon via IPC

Usage:
  motor-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  status, get             Print the controller status as JSON
  set <raw>               Pin the potentiometer sample (0..1023)
  clear, release          Return to the real potentiometer
  help, -h, --help        Show this help message

Examples:
  motor-ctl status
  motor-ctl set 1023
  motor-ctl -socket /run/motorctl.sock clear
`, defaultSocketPath)
}
