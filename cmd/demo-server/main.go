// Command demo-server runs a naia server hosting pkg/demo's Chat/Input/Auth
// events and PlayerEntity, driven by an external tick loop the way
// spec.md §5 describes — grounded on the teacher's examples/echo/server.go
// (bind, register, loop) but replacing its RPC dispatch with Server.Receive.
package main

import (
	"log"
	"time"

	"github.com/appnet-org/naia/pkg/config"
	"github.com/appnet-org/naia/pkg/demo"
	"github.com/appnet-org/naia/pkg/handshake"
	"github.com/appnet-org/naia/pkg/manifest"
	"github.com/appnet-org/naia/server"
)

func main() {
	m := manifest.New()
	if err := demo.Register(m); err != nil {
		log.Fatalf("registering demo types: %v", err)
	}

	validator, err := handshake.NewValidator(nil)
	if err != nil {
		log.Fatalf("creating handshake validator: %v", err)
	}

	now := time.Now()
	cfg := server.Config{
		Config:       config.DefaultConnectionConfig(),
		TickInterval: config.DefaultTickInterval,
	}

	srv, err := server.New("0.0.0.0:9001", cfg, m, validator, now)
	if err != nil {
		log.Fatalf("binding server: %v", err)
	}
	defer srv.Close()

	log.Printf("demo-server listening on %s", srv.LocalAddr())

	ticker := time.NewTicker(config.DefaultTickInterval)
	defer ticker.Stop()

	var players = map[string]*demo.PlayerEntity{}

	for range ticker.C {
		now := time.Now()
		if err := srv.Receive(now); err != nil {
			log.Printf("receive: %v", err)
			continue
		}

		for _, addr := range srv.Connected {
			log.Printf("client connected: %s", addr)
			p := &demo.PlayerEntity{Name: addr}
			players[addr] = p
			srv.AddEntityToClientScope(addr, p)
		}
		for _, addr := range srv.Disconnected {
			log.Printf("client disconnected: %s", addr)
			delete(players, addr)
		}
		for _, rec := range srv.Events {
			if chat, ok := rec.Event.(*demo.ChatEvent); ok {
				log.Printf("chat from %s: %s: %s", rec.Addr, chat.From, chat.Body)
				srv.Broadcast(chat)
			}
		}

		srv.AdvanceTick(now)
	}
}
