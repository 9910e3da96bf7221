package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	sock, rest, err := parseArgs([]string{"-socket", "/run/m.sock", "status"})
	if err != nil || sock != "/run/m.sock" || len(rest) != 1 || rest[0] != "status" {
		t.Errorf("parseArgs = (%q, %v, %v)", sock, rest, err)
	}

	sock, _, err = parseArgs([]string{"clear"})
	if err != nil || sock != defaultSocketPath {
		t.Errorf("default socket = (%q, %v)", sock, err)
	}

	if _, _, err := parseArgs([]string{"-socket"}); err == nil {
		t.Error("expected error for -socket without value")
	}
	if _, _, err := parseArgs(nil); err != errUsage {
		t.Errorf("expected errUsage, got %v", err)
	}
}

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		args     []string
		wantType string
		wantData string
		wantErr  bool
	}{
		{[]string{"status"}, "get_status", "", false},
		{[]string{"set", "700"}, "set_input", `{"raw":700}`, false},
		{[]string{"set", "0"}, "set_input", `{"raw":0}`, false},
		{[]string{"clear"}, "clear_input", "", false},
		{[]string{"set"}, "", "", true},
		{[]string{"set", "abc"}, "", "", true},
		{[]string{"set", "1024"}, "", "", true},
		{[]string{"set", "-1"}, "", "", true},
		{[]string{"spin"}, "", "", true},
	}

	for _, tt := range tests {
		env, err := buildRequest(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("buildRequest(%v): expected error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("buildRequest(%v): %v", tt.args, err)
			continue
		}
		if env.Type != tt.wantType || string(env.Data) != tt.wantData {
			t.Errorf("buildRequest(%v) = {%s %s}, want {%s %s}", tt.args, env.Type, env.Data, tt.wantType, tt.wantData)
		}
	}
}

func TestPrintResponse(t *testing.T) {
	var buf bytes.Buffer
	if err := printResponse(&buf, IPCResponse{Status: "ok"}); err != nil || buf.String() != "ok\n" {
		t.Errorf("no data: %q %v", buf.String(), err)
	}

	buf.Reset()
	if err := printResponse(&buf, IPCResponse{Status: "ok", Data: json.RawMessage(`{"raw":700}`)}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"raw\": 700\n}\n" {
		t.Errorf("data: %q", buf.String())
	}
}

func TestSend_RoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "mctl")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	sock := filepath.Join(dir, "c.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- strings.TrimSpace(line)
		conn.Write([]byte(`{"status":"error","error":"raw must be between 0 and 1023"}` + "\n"))
	}()

	env, _ := buildRequest([]string{"set", "5"})
	_, err = send(sock, env)
	if err == nil || !strings.Contains(err.Error(), "raw must be between") {
		t.Errorf("expected daemon error, got %v", err)
	}
	if line := <-got; line != `{"type":"set_input","data":{"raw":5}}` {
		t.Errorf("request line = %s", line)
	}
}
