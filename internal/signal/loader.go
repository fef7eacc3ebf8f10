package signal

import (
	"encoding/json"
	"fmt"
	"os"
)

// fileSignal is the object form of a signal file.
type fileSignal struct {
	Series string    `json:"series"`
	Signal []float64 `json:"signal"`
}

// LoadFile reads a signal from a JSON file. Two shapes are accepted: a bare
// array of numbers, or an object {"series": "...", "signal": [...]}.
// The returned series is empty for the bare-array form.
func LoadFile(path string) (string, []float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("signal: read %s: %w", path, err)
	}

	var values []float64
	if err := json.Unmarshal(data, &values); err == nil {
		if len(values) == 0 {
			return "", nil, fmt.Errorf("signal: %s holds no samples", path)
		}
		return "", values, nil
	}

	var obj fileSignal
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("signal: parse %s: %w", path, err)
	}
	if len(obj.Signal) == 0 {
		return "", nil, fmt.Errorf("signal: %s holds no samples", path)
	}
	return obj.Series, obj.Signal, nil
}
