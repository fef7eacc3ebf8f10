package live

import (
	"encoding/json"
	"strconv"
	"time"
)

// Broadcaster builds envelope JSON and fans it out to subscribed clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends a payload on a channel to all subscribed clients.
// The envelope is hand-crafted JSON to avoid a Marshal per client per frame:
//
//	{"channel":"frames","data":{…},"ts":"…","seq":N,"channel_seq":M}
//
// seq is global and monotonic; channel_seq is per channel for gap detection.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	// Record source-to-broadcast latency when the payload carries a ts.
	if b.hub.Latency != nil {
		if srcTS := extractTS(data); !srcTS.IsZero() {
			latencyMs := float64(now.Sub(srcTS).Microseconds()) / 1000.0
			if latencyMs >= 0 {
				b.hub.Latency.Record(latencyMs)
			}
		}
	}

	b.hub.mu.Lock()
	b.hub.seq++
	seq := b.hub.seq
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	b.hub.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')

	b.hub.replay.Push(seq, buf)

	if b.hub.OnEnvelope != nil {
		b.hub.OnEnvelope(channel)
	}

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.wants(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			if b.hub.OnSlowClient != nil {
				b.hub.OnSlowClient()
			}
		}
	}
}

// BroadcastJSON marshals v and broadcasts it. Marshal failures are dropped;
// payloads are our own DTOs and cannot legitimately fail.
func (b *Broadcaster) BroadcastJSON(channel string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	b.Broadcast(channel, data)
}

// extractTS pulls a "ts" field out of a JSON payload for latency tracking.
func extractTS(data []byte) time.Time {
	var partial struct {
		TS time.Time `json:"ts"`
	}
	if err := json.Unmarshal(data, &partial); err == nil && !partial.TS.IsZero() {
		return partial.TS
	}
	return time.Time{}
}
