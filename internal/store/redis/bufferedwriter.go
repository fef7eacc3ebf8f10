package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"driftwatch/internal/model"
)

// pendingEvent is an engine event held back while the circuit is open.
type pendingEvent struct {
	Kind string // "point" or "anomaly"
	Data []byte // JSON-encoded payload
}

// BufferedPublisher wraps a Publisher with a circuit breaker. While the
// circuit is open, events are buffered in memory and replayed once Redis
// recovers, so a short outage costs latency instead of data. The buffer is
// bounded; when full the oldest events are dropped first.
type BufferedPublisher struct {
	pub *Publisher
	cb  *CircuitBreaker

	mu     sync.Mutex
	buffer []pendingEvent
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()          // called when an event is buffered (for metrics)
	OnFlush  func(count int) // called after replaying buffered events
	OnError  func()          // called when a publish fails outright
}

// NewBufferedPublisher wraps pub with outage buffering.
func NewBufferedPublisher(pub *Publisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		buffer: make([]pendingEvent, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Replay the backlog as soon as the circuit closes again.
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}

	return bp
}

// PublishPoint sends an engine point through the circuit breaker. Failures
// are logged and counted, never returned to the pipeline.
func (bp *BufferedPublisher) PublishPoint(ctx context.Context, pt model.Point) {
	err := bp.cb.Execute(func() error {
		return bp.pub.writePoint(ctx, &pt)
	})
	if err == ErrCircuitOpen {
		bp.bufferEvent("point", &pt)
		return
	}
	if err != nil {
		log.Printf("[redis] point publish error for %s[%d]: %v", pt.Series, pt.Index, err)
		if bp.OnError != nil {
			bp.OnError()
		}
	}
}

// PublishAnomaly sends a flagged anomaly through the circuit breaker.
func (bp *BufferedPublisher) PublishAnomaly(ctx context.Context, a model.Anomaly) {
	err := bp.cb.Execute(func() error {
		return bp.pub.writeAnomaly(ctx, &a)
	})
	if err == ErrCircuitOpen {
		bp.bufferEvent("anomaly", &a)
		return
	}
	if err != nil {
		log.Printf("[redis] anomaly publish error for %s[%d]: %v", a.Series, a.Index, err)
		if bp.OnError != nil {
			bp.OnError()
		}
	}
}

func (bp *BufferedPublisher) bufferEvent(kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[redis] buffer marshal error: %v", err)
		return
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// Buffer full: drop oldest
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, pendingEvent{Kind: kind, Data: data})

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays buffered events in arrival order.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]pendingEvent, 0, 256)
	bp.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	flushed := 0
	for _, ev := range toFlush {
		switch ev.Kind {
		case "point":
			var pt model.Point
			if json.Unmarshal(ev.Data, &pt) == nil {
				bp.pub.writePoint(ctx, &pt)
			}
		case "anomaly":
			var a model.Anomaly
			if json.Unmarshal(ev.Data, &a) == nil {
				bp.pub.writeAnomaly(ctx, &a)
			}
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered events", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered events waiting for replay.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Breaker returns the circuit breaker, for health reporting.
func (bp *BufferedPublisher) Breaker() *CircuitBreaker {
	return bp.cb
}

// Close closes the underlying publisher.
func (bp *BufferedPublisher) Close() error {
	return bp.pub.Close()
}
