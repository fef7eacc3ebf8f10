package render

import (
	"encoding/json"
	"fmt"
	"io"

	"driftwatch/internal/model"
)

// WriteTable writes the anomaly list as a plain-text table followed by a
// one-line summary.
func WriteTable(w io.Writer, d *model.Detection) error {
	if d == nil || len(d.Signal) == 0 {
		return ErrEmptyDetection
	}

	if len(d.Anomalies) > 0 {
		if _, err := fmt.Fprintf(w, "%8s %12s %12s %12s\n", "INDEX", "VALUE", "TREND", "DEVIATION"); err != nil {
			return err
		}
		for _, a := range d.Anomalies {
			if _, err := fmt.Fprintf(w, "%8d %12.4f %12.4f %12.4f\n", a.Index, a.Value, a.Trend, a.Deviation); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "%d anomalies in %d points (alpha=%.2f threshold=%.2f)\n",
		len(d.Anomalies), len(d.Signal), d.Alpha, d.Threshold)
	return err
}

// WriteJSON dumps the detection as indented JSON for downstream tooling.
func WriteJSON(w io.Writer, d *model.Detection) error {
	if d == nil || len(d.Signal) == 0 {
		return ErrEmptyDetection
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
