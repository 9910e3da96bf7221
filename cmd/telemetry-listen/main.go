package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// telemetry-listen prints frames from the motord telemetry websocket.

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws/telemetry", "motord telemetry websocket URL")
		raw   = flag.Bool("raw", false, "Print frames as received instead of formatting them")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Protects concurrent writes (pings vs close)
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// The daemon pings us too; answering it also extends our deadline.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}

			switch messageType {
			case websocket.TextMessage:
				if *raw {
					fmt.Printf("%s\n", message)
				} else {
					fmt.Println(formatFrame(message))
				}
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// frame mirrors the daemon's {type, ts, data} envelope.
type frame struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type telemetryData struct {
	Raw         int     `json:"raw"`
	Direction   string  `json:"direction"`
	Magnitude   int     `json:"magnitude"`
	RateRPM     float64 `json:"rate_rpm"`
	SmoothedRPM float64 `json:"smoothed_rpm"`
	Overridden  bool    `json:"input_overridden"`
}

type directionData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// formatFrame renders one text frame for the terminal.
func formatFrame(message []byte) string {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil || f.Type == "" {
		return fmt.Sprintf("[TEXT] %s", message)
	}

	ts := f.Ts.Local().Format("15:04:05.000")

	switch f.Type {
	case "telemetry":
		var d telemetryData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		line := fmt.Sprintf("%s [TELEMETRY] Pot: %d | PWM: %d | Dir: %s | RPM: %.1f", ts, d.Raw, d.Magnitude, d.Direction, d.SmoothedRPM)
		if d.Overridden {
			line += " (override)"
		}
		return line

	case "direction_changed":
		var d directionData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			break
		}
		return fmt.Sprintf("%s [DIRECTION] %s -> %s", ts, d.From, d.To)
	}

	pretty, err := json.MarshalIndent(f.Data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s [%s] %s", ts, f.Type, f.Data)
	}
	return fmt.Sprintf("%s [%s]\n%s", ts, f.Type, pretty)
}
