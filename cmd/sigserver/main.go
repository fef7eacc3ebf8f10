// cmd/sigserver — Demo WebSocket sample server.
// Broadcasts generated signal samples for testing `driftwatch live --follow`
// without a real feed.
//
// Sample JSON shape is identical to model.Sample:
//
//	{"series":"walk","index":42,"value":9.81,"ts":"..."}
//
// Indices restart at 0 on every process start; a fresh sigserver means a
// fresh stream for each series.
//
// Config (env vars):
//
//	SIG_SERVER_ADDR  — listen address  (default: ":9001")
//	SIG_SERIES       — comma-separated series names (default: "walk")
//	SIG_INTERVAL_MS  — broadcast interval milliseconds (default: "100")
//	SIG_SEED         — base generator seed, offset per series (default: "42")
//	SIG_SPIKE_PROB   — per-sample spike probability (default: "0.01")
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"driftwatch/internal/signal"
)

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop sample
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[sigserver] upgrade error: %v", err)
			return
		}
		log.Printf("[sigserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[sigserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends sample JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Sample generator ─────────────────────────────────────────────────────────

func runGenerator(h *hub, sources []*signal.Source, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for _, src := range sources {
			s, ok := src.Next()
			if !ok {
				continue
			}
			h.broadcast(s.JSON())
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[sigserver] starting demo sample server...")

	// Config
	addr := envOrDefault("SIG_SERVER_ADDR", ":9001")
	seriesEnv := envOrDefault("SIG_SERIES", "walk")
	intervalMs := envIntOrDefault("SIG_INTERVAL_MS", 100)
	seed := int64(envIntOrDefault("SIG_SEED", 42))
	spikeProb := envFloatOrDefault("SIG_SPIKE_PROB", 0.01)

	names := parseSeries(seriesEnv)
	if len(names) == 0 {
		log.Fatalf("[sigserver] no series configured via SIG_SERIES")
	}

	// One unbounded source per series, seeds offset so streams differ.
	sources := make([]*signal.Source, len(names))
	for i, name := range names {
		sources[i] = signal.NewSource(name, signal.Config{
			Seed:      seed + int64(i),
			SpikeProb: spikeProb,
		}).Unbounded()
	}
	log.Printf("[sigserver] series: %v", names)
	log.Printf("[sigserver] broadcast interval: %dms", intervalMs)

	h := newHub()

	// Start sample generator
	go runGenerator(h, sources, intervalMs)

	// HTTP routes
	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"sigserver"}`)
	})

	log.Printf("[sigserver] ✅ listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[sigserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseSeries(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		result = append(result, part)
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
