// Package live serves a detection to browsers: frames revealed one by one
// over WebSocket with seq-numbered envelopes, replay catch-up for late
// subscribers, and REST control of the playback. In follow mode the same
// hub broadcasts streaming engine output as it arrives.
package live

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Broadcast channels. Clients may narrow their subscription to a subset;
// an empty subscription receives everything.
const (
	ChannelFrames    = "frames"
	ChannelAnomalies = "anomalies"
	ChannelStatus    = "status"
)

// latestEntry caches the most recent payload per channel for initial state.
type latestEntry struct {
	Data []byte
	TS   time.Time
	Seq  int64
}

// Hub manages WebSocket clients and envelope fan-out. It is fed directly by
// the presenter (or the follow loop); there is no external message broker in
// the serving path.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64

	// Replay buffer of recent envelopes for last_seq catch-up.
	replay *ReplayBuffer

	// Broadcast-to-delivery latency tracker.
	Latency *LatencyTracker

	Broadcaster *Broadcaster

	// Optional hooks for metrics wiring.
	OnEnvelope    func(channel string)
	OnClientCount func(n int)
	OnSlowClient  func()
}

// NewHub creates a Hub with a 512-envelope replay buffer.
func NewHub() *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replay:      NewReplayBuffer(512),
		Latency:     NewLatencyTracker(8192),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// HandleWS registers an upgraded connection and starts its pumps.
// lastSeq < 0 means the client did not ask for catch-up; it receives the
// latest entry per channel instead.
func (h *Hub) HandleWS(conn *websocket.Conn, lastSeq int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[live] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	if lastSeq >= 0 {
		go client.sendCatchUp(lastSeq)
	} else {
		go client.sendInitialState()
	}
	go client.writePump()
	go client.readPump()
}

// RemoveClient drops a client from the hub. Called once, from readPump.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the current global sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ChannelSeq returns the per-channel sequence number.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// LatestAll returns a copy of the most recent payload per channel.
func (h *Hub) LatestAll() map[string][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string][]byte, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}
