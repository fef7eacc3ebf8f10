// Package feed provides a WebSocket ingest client that connects to a sample
// server (e.g. cmd/sigserver) and streams samples into the watch pipeline.
//
// The expected JSON message format on the wire is identical to model.Sample:
//
//	{"series":"demo","index":42,"value":9.75,"ts":"..."}
//
// Incoming messages land in a single-producer single-consumer ring buffer so
// a slow downstream stage never blocks the socket reader. When the ring fills
// the newest samples are dropped and counted.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"driftwatch/internal/model"
	"driftwatch/internal/ringbuf"

	"github.com/gorilla/websocket"
)

// pollInterval is how often the pump re-checks an empty ring.
const pollInterval = time.Millisecond

// Config holds configuration for the WebSocket sample feed.
type Config struct {
	// URL of the sample WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// Buffer is the ring buffer capacity (rounded up to a power of two).
	// Defaults to 1024 if zero.
	Buffer int
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.Buffer == 0 {
		c.Buffer = 1024
	}
}

// Ingest connects to a plain-JSON WebSocket sample server and pushes
// model.Sample values into an output channel via an SPSC ring buffer.
type Ingest struct {
	cfg  Config
	ring *ringbuf.Ring

	// Optional hook, called after each successful connection.
	OnConnect func()

	// Optional hook, called each time a reconnection happens.
	OnReconnect func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg, ring: ringbuf.New(cfg.Buffer)}, nil
}

// Dropped returns the number of samples discarded because the ring was full.
func (ing *Ingest) Dropped() uint64 {
	return ing.ring.Overflow()
}

// Start connects to the WebSocket server and streams samples into out.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, out chan<- model.Sample) error {
	go ing.pump(ctx, out)

	delay := ing.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
// The socket reader is the ring's only producer; reconnect attempts run serially
// so the SPSC contract holds across connections.
func (ing *Ingest) runOnce(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", ing.cfg.URL)
	if ing.OnConnect != nil {
		ing.OnConnect()
	}

	// Async context watcher, closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Check if it's a context cancellation
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var s model.Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if s.Series == "" {
			log.Printf("[feed] skipping sample with empty series")
			continue
		}

		if !ing.ring.Push(s) {
			log.Println("[feed] ring full, dropping sample")
		}
	}
}

// pump drains the ring into out. It is the ring's only consumer.
func (ing *Ingest) pump(ctx context.Context, out chan<- model.Sample) {
	for {
		s, ok := ing.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		select {
		case out <- s:
		case <-ctx.Done():
			return
		}
	}
}
