package live

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Client messages are small (subscribe lists, ping probes).
	maxMessageSize = 1024
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Channel subscriptions. Empty means receive everything.
	subMu sync.RWMutex
	subs  map[string]bool
}

// wants reports whether the client subscribed to the channel.
func (c *Client) wants(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	return c.subs[channel]
}

// sendCatchUp replays buffered envelopes after lastSeq, then the client
// continues live. Entries evicted from the replay buffer are simply gone;
// the client detects remaining gaps from seq numbers.
func (c *Client) sendCatchUp(lastSeq int64) {
	entries := c.hub.replay.Since(lastSeq)
	for _, data := range entries {
		select {
		case c.send <- data:
		default:
			log.Println("[live] catch-up overflow, client left behind")
			return
		}
	}
	if len(entries) > 0 {
		log.Printf("[live] replayed %d envelopes after seq %d", len(entries), lastSeq)
	}
}

// sendInitialState pushes the latest payload per channel so a fresh client
// renders current state before the next live envelope.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"seq":     entry.Seq,
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: batch queued messages into a single
			// WebSocket frame with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[live] ws client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Channels []string `json:"channels"`
			Ping     int64    `json:"ping"`
		}
		if json.Unmarshal(msg, &req) != nil {
			continue
		}

		// Latency probe: echo the client's stamp with server time.
		if req.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      req.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.send <- pong:
			default:
			}
			continue
		}

		if req.Channels != nil {
			c.setSubscriptions(req.Channels)
		}
	}
}

// setSubscriptions replaces the client's channel filter. An empty list
// restores receive-everything.
func (c *Client) setSubscriptions(channels []string) {
	subs := make(map[string]bool, len(channels))
	for _, ch := range channels {
		switch ch {
		case ChannelFrames, ChannelAnomalies, ChannelStatus:
			subs[ch] = true
		default:
			log.Printf("[live] ignoring unknown channel %q in subscribe", ch)
		}
	}
	c.subMu.Lock()
	c.subs = subs
	c.subMu.Unlock()
	log.Printf("[live] client subscribed to %v", channels)
}
