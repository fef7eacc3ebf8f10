package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"driftwatch/internal/model"

	"github.com/golang/snappy"
)

// blockSize caps how many samples a single signal block holds.
const blockSize = 512

// sampleWidth is the encoded size of one sample: an int64 of microseconds
// since the epoch followed by the raw float64 bits, both little-endian.
const sampleWidth = 16

// encodeBlock packs samples into (ts_micro, value) pairs and snappy-compresses
// the result. Series and index are not stored; they are implied by the run row
// and the block's start_idx.
func encodeBlock(samples []model.Sample) []byte {
	raw := make([]byte, len(samples)*sampleWidth)
	for i, s := range samples {
		off := i * sampleWidth
		binary.LittleEndian.PutUint64(raw[off:], uint64(s.TS.UnixMicro()))
		binary.LittleEndian.PutUint64(raw[off+8:], math.Float64bits(s.Value))
	}
	return snappy.Encode(nil, raw)
}

// decodeBlock reverses encodeBlock, reattaching the series name and the
// per-sample indices from the block's start_idx.
func decodeBlock(data []byte, series string, startIdx, count int) ([]model.Sample, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("sqlite decode block: %w", err)
	}
	if len(raw) != count*sampleWidth {
		return nil, fmt.Errorf("sqlite block size mismatch: %d bytes for %d samples", len(raw), count)
	}

	out := make([]model.Sample, count)
	for i := 0; i < count; i++ {
		off := i * sampleWidth
		ts := int64(binary.LittleEndian.Uint64(raw[off:]))
		bits := binary.LittleEndian.Uint64(raw[off+8:])
		out[i] = model.Sample{
			Series: series,
			Index:  startIdx + i,
			Value:  math.Float64frombits(bits),
			TS:     time.UnixMicro(ts).UTC(),
		}
	}
	return out, nil
}
