package live

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Router builds the REST + WebSocket route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/ws", s.handleWS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/run", s.handleRun).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/anomalies", s.handleAnomalies).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/detection", s.handleDetection).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/latency", s.handleLatency).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/control", s.handleControl).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/threshold", s.handleThreshold).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] ws upgrade error: %v", err)
		return
	}

	lastSeq := int64(-1)
	if q := r.URL.Query().Get("last_seq"); q != "" {
		if n, err := strconv.ParseInt(q, 10, 64); err == nil && n >= 0 {
			lastSeq = n
		}
	}
	s.Hub.HandleWS(conn, lastSeq)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if p := s.getPresenter(); p != nil {
		writeJSON(w, http.StatusOK, p.RunInfo())
		return
	}
	if f := s.getFollow(); f != nil {
		writeJSON(w, http.StatusOK, f.RunInfo())
		return
	}
	writeError(w, http.StatusNotFound, "no active run")
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	clients := s.Hub.ClientCount()
	if p := s.getPresenter(); p != nil {
		writeJSON(w, http.StatusOK, p.State(clients))
		return
	}
	if f := s.getFollow(); f != nil {
		writeJSON(w, http.StatusOK, f.State(clients))
		return
	}
	writeError(w, http.StatusNotFound, "no active run")
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if p := s.getPresenter(); p != nil {
		writeJSON(w, http.StatusOK, p.Anomalies())
		return
	}
	if f := s.getFollow(); f != nil {
		writeJSON(w, http.StatusOK, f.Anomalies())
		return
	}
	writeError(w, http.StatusNotFound, "no active run")
}

func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	p := s.getPresenter()
	if p == nil {
		writeError(w, http.StatusNotFound, "no finished detection in follow mode")
		return
	}
	writeJSON(w, http.StatusOK, p.Detection())
}

func (s *Server) handleLatency(w http.ResponseWriter, r *http.Request) {
	p50, p90, p99 := s.Hub.Latency.Percentiles()
	writeJSON(w, http.StatusOK, LatencyOut{
		Count: s.Hub.Latency.Count(),
		P50:   p50,
		P90:   p90,
		P99:   p99,
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p := s.getPresenter()
	if p == nil {
		writeError(w, http.StatusConflict, "no playback to control")
		return
	}

	switch req.Action {
	case "pause":
		p.Pause()
	case "resume":
		p.Resume()
	case "restart":
		p.Restart()
	case "speed":
		if err := p.SetSpeed(req.Speed); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}

	log.Printf("[live] control: %s", req.Action)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  p.State(s.Hub.ClientCount()),
	})
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Threshold < 0 {
		writeError(w, http.StatusBadRequest, "threshold must be non-negative")
		return
	}

	s.mu.RLock()
	setter := s.setThreshold
	follow := s.follow
	s.mu.RUnlock()

	if setter == nil {
		writeError(w, http.StatusConflict, "threshold update requires streaming mode")
		return
	}

	setter(req.Threshold)
	if follow != nil {
		follow.SetThreshold(req.Threshold)
	}

	log.Printf("[live] threshold updated to %v", req.Threshold)
	s.Hub.Broadcaster.BroadcastJSON(ChannelStatus, map[string]any{
		"state":     "threshold",
		"threshold": req.Threshold,
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthFn := s.health
	s.mu.RUnlock()

	ok := true
	detail := map[string]any{}
	if healthFn != nil {
		ok, detail = healthFn()
	}
	if detail == nil {
		detail = map[string]any{}
	}

	detail["status"] = "ok"
	status := http.StatusOK
	if !ok {
		detail["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	detail["ws_clients"] = s.Hub.ClientCount()
	detail["uptime_sec"] = int64(time.Since(s.start).Seconds())
	detail["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	writeJSON(w, status, detail)
}
