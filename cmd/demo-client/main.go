// Command demo-client connects to a demo-server, sends a chat line, and
// prints whatever it receives back, driven by an external tick loop the way
// spec.md §5 describes — grounded on the teacher's examples/echo/client.go.
package main

import (
	"log"
	"os"
	"time"

	"github.com/appnet-org/naia/client"
	"github.com/appnet-org/naia/pkg/config"
	"github.com/appnet-org/naia/pkg/demo"
	"github.com/appnet-org/naia/pkg/manifest"
)

func main() {
	serverAddr := "127.0.0.1:9001"
	if len(os.Args) > 1 {
		serverAddr = os.Args[1]
	}

	m := manifest.New()
	if err := demo.Register(m); err != nil {
		log.Fatalf("registering demo types: %v", err)
	}

	now := time.Now()
	cfg := client.Config{
		SendHandshakeInterval: config.DefaultSendHandshakeInterval,
		Config:                config.DefaultConnectionConfig(),
		TickInterval:          config.DefaultTickInterval,
	}

	cli, err := client.New("0.0.0.0:0", serverAddr, cfg, m, uint64(now.UnixNano()), nil)
	if err != nil {
		log.Fatalf("creating client: %v", err)
	}
	defer cli.Close()

	sentGreeting := false
	ticker := time.NewTicker(config.DefaultTickInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		if err := cli.Receive(now); err != nil {
			log.Printf("receive: %v", err)
			continue
		}
		if cli.Disconnected {
			log.Printf("disconnected from server")
			continue
		}
		if cli.Connected() && !sentGreeting {
			cli.QueueEvent(&demo.ChatEvent{From: "demo-client", Body: "hello from naia"})
			sentGreeting = true
		}
		for _, e := range cli.Incoming {
			if chat, ok := e.(*demo.ChatEvent); ok {
				log.Printf("chat: %s: %s", chat.From, chat.Body)
			}
		}
		for _, msg := range cli.EntityEvents {
			log.Printf("entity event: kind=%v key=%v", msg.Kind, msg.Key)
		}
	}
}
