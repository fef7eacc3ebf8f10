package live

import (
	"encoding/json"
	"testing"
	"time"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

// newTestClient registers a pump-less client on the hub. Tests read its send
// channel directly instead of going through a WebSocket connection.
func newTestClient(h *Hub) *Client {
	c := &Client{
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

// drainEnvelopes parses everything queued on the client's send channel.
func drainEnvelopes(t *testing.T, c *Client) []envelope {
	t.Helper()
	var out []envelope
	for {
		select {
		case raw := <-c.send:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("invalid envelope JSON: %v\nraw: %s", err, raw)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestBroadcast_EnvelopeFormat(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)

	data := []byte(`{"series":"demo","index":3,"value":42.5}`)
	h.Broadcaster.Broadcast(ChannelFrames, data)

	envs := drainEnvelopes(t, c)
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	env := envs[0]

	if env.Channel != ChannelFrames {
		t.Errorf("channel: got %q, want %q", env.Channel, ChannelFrames)
	}
	if env.Seq != 1 || env.ChannelSeq != 1 {
		t.Errorf("seq: got (%d,%d), want (1,1)", env.Seq, env.ChannelSeq)
	}
	if _, err := time.Parse(time.RFC3339Nano, env.TS); err != nil {
		t.Errorf("ts is not RFC3339Nano: %v", err)
	}

	var payload struct {
		Series string  `json:"series"`
		Index  int     `json:"index"`
		Value  float64 `json:"value"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if payload.Series != "demo" || payload.Index != 3 || payload.Value != 42.5 {
		t.Errorf("payload mismatch: %+v", payload)
	}
}

func TestBroadcast_SeqsAdvanceIndependently(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)

	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{}`))
	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{}`))
	h.Broadcaster.Broadcast(ChannelAnomalies, []byte(`{}`))
	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{}`))

	envs := drainEnvelopes(t, c)
	if len(envs) != 4 {
		t.Fatalf("expected 4 envelopes, got %d", len(envs))
	}

	// Global seq is monotonic 1..4
	for i, env := range envs {
		if env.Seq != int64(i)+1 {
			t.Errorf("envelope %d: global seq %d, want %d", i, env.Seq, i+1)
		}
	}
	// Per-channel seqs: frames 1,2,3 and anomalies 1
	wantChanSeqs := []int64{1, 2, 1, 3}
	for i, env := range envs {
		if env.ChannelSeq != wantChanSeqs[i] {
			t.Errorf("envelope %d: channel_seq %d, want %d", i, env.ChannelSeq, wantChanSeqs[i])
		}
	}

	if h.Seq() != 4 {
		t.Errorf("hub seq: got %d, want 4", h.Seq())
	}
	if h.ChannelSeq(ChannelFrames) != 3 {
		t.Errorf("frames channel seq: got %d, want 3", h.ChannelSeq(ChannelFrames))
	}
}

func TestBroadcast_ChannelFilter(t *testing.T) {
	h := NewHub()
	all := newTestClient(h)
	framesOnly := newTestClient(h)
	framesOnly.setSubscriptions([]string{ChannelFrames})

	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{}`))
	h.Broadcaster.Broadcast(ChannelAnomalies, []byte(`{}`))
	h.Broadcaster.Broadcast(ChannelStatus, []byte(`{}`))

	if got := len(drainEnvelopes(t, all)); got != 3 {
		t.Errorf("unfiltered client: expected 3 envelopes, got %d", got)
	}
	envs := drainEnvelopes(t, framesOnly)
	if len(envs) != 1 || envs[0].Channel != ChannelFrames {
		t.Errorf("filtered client: expected only frames, got %+v", envs)
	}
}

func TestBroadcast_FeedsReplayBuffer(t *testing.T) {
	h := NewHub()

	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{"a":1}`))
	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{"a":2}`))
	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{"a":3}`))

	missed := h.replay.Since(1)
	if len(missed) != 2 {
		t.Fatalf("expected 2 buffered envelopes after seq 1, got %d", len(missed))
	}
	var env envelope
	if err := json.Unmarshal(missed[0], &env); err != nil {
		t.Fatalf("buffered envelope invalid: %v", err)
	}
	if env.Seq != 2 {
		t.Errorf("first missed seq: got %d, want 2", env.Seq)
	}
}

func TestBroadcast_UpdatesLatest(t *testing.T) {
	h := NewHub()

	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{"a":1}`))
	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{"a":2}`))

	latest := h.LatestAll()
	if string(latest[ChannelFrames]) != `{"a":2}` {
		t.Errorf("latest: got %s, want {\"a\":2}", latest[ChannelFrames])
	}
}

func TestBroadcast_RecordsLatency(t *testing.T) {
	h := NewHub()

	ts := time.Now().UTC().Add(-5 * time.Millisecond).Format(time.RFC3339Nano)
	h.Broadcaster.Broadcast(ChannelFrames, []byte(`{"ts":"`+ts+`"}`))

	if h.Latency.Count() != 1 {
		t.Fatalf("latency samples: got %d, want 1", h.Latency.Count())
	}
	p50, _, _ := h.Latency.Percentiles()
	if p50 < 4 || p50 > 1000 {
		t.Errorf("latency sample looks wrong: %f ms", p50)
	}
}

func TestBroadcast_SlowClientDoesNotBlock(t *testing.T) {
	h := NewHub()
	slow := &Client{
		send: make(chan []byte, 1), // fills after one envelope
		hub:  h,
		subs: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[slow] = true
	h.mu.Unlock()

	drops := 0
	h.OnSlowClient = func() { drops++ }

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Broadcaster.Broadcast(ChannelFrames, []byte(`{}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	if drops != 9 {
		t.Errorf("expected 9 drops for the slow client, got %d", drops)
	}
}
