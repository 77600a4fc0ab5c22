// Transcript Viewer - live copilot session display
// Consumes the transcript, enrichment and signal topics from Kafka and pushes
// them to browsers over WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

//go:embed static/*
var staticFiles embed.FS

// Envelope is what the browser receives: the source topic plus the event
// exactly as published.
type Envelope struct {
	Topic     string          `json:"topic"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"`
}

// eventHeader is the subset of fields common to every published event.
type eventHeader struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Envelope
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Envelope, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			log.Printf("Client connected. Total: %d", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			log.Printf("Client disconnected. Total: %d", len(h.clients))

		case env := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(env); err != nil {
					log.Printf("Write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		hub.register <- conn

		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}
}

// decode wraps a raw Kafka value for the browser.
func decode(topic string, value []byte) (Envelope, error) {
	var h eventHeader
	if err := json.Unmarshal(value, &h); err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Topic:     topic,
		EventType: h.EventType,
		SessionID: h.SessionID,
		Event:     json.RawMessage(value),
	}, nil
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string) {
	// Partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	reader.SetOffsetAt(ctx, time.Now().Add(-1*time.Hour))

	log.Printf("Consuming from Kafka topic: %s partition 0 (last hour)", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		env, err := decode(topic, msg.Value)
		if err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}

		log.Printf("Received %s (session: %s)", env.EventType, env.SessionID)
		hub.broadcast <- env
	}
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicTranscript := flag.String("topic-transcript", "copilot.transcript.final", "Transcript topic")
	topicEnrichment := flag.String("topic-enrichment", "copilot.enrichment.updated", "Enrichment topic")
	topicSignal := flag.String("topic-signal", "copilot.session.signal", "Signal topic")
	flag.Parse()

	hub := newHub()
	go hub.run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, topic := range []string{*topicTranscript, *topicEnrichment, *topicSignal} {
		go consumeKafka(ctx, hub, *brokers, topic)
	}

	staticFS, _ := fs.Sub(staticFiles, "static")
	http.Handle("/", http.FileServer(http.FS(staticFS)))
	http.HandleFunc("/ws", wsHandler(hub))

	log.Printf("Transcript Viewer starting on http://localhost:%s", *port)
	log.Printf("   Kafka brokers: %s", *brokers)
	log.Printf("   Topics: %s, %s, %s", *topicTranscript, *topicEnrichment, *topicSignal)

	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
