package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
)

// Connects, sends a heartbeat, expects a pong envelope back, then reads the
// welcome traffic and prints every envelope until the timeout.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "smoke", "client name query parameter")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := fmt.Sprintf("%s?name=%s", *addr, *name)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	sawPong := false
	for {
		_, data, readErr := conn.Read(ctx)
		if readErr != nil {
			if sawPong {
				return nil
			}
			return fmt.Errorf("read: %w", readErr)
		}

		var envelope map[string]any
		if err := json.Unmarshal(data, &envelope); err != nil {
			fmt.Printf("<- (raw) %s\n", data)
			continue
		}
		fmt.Printf("<- %s\n", data)

		if t, _ := envelope["type"].(string); t == "pong" {
			sawPong = true
		}
	}
}
