package live

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"driftwatch/internal/model"
)

func newRevealServer(t *testing.T) (*Server, *Presenter) {
	t.Helper()
	h := NewHub()
	s := NewServer(h)
	p, err := NewPresenter(h, fiveFrameDetection(t), PresenterConfig{})
	if err != nil {
		t.Fatalf("new presenter: %v", err)
	}
	s.SetPresenter(p)
	return s, p
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func TestHandlers_RunAndState(t *testing.T) {
	s, p := newRevealServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var info RunInfo
	getJSON(t, ts, "/api/run", &info)
	if info.Series != "demo" || info.Mode != "reveal" || info.Points != 5 {
		t.Errorf("run info: %+v", info)
	}
	if info.Alpha != 0 || info.Threshold != 10 {
		t.Errorf("run config: %+v", info)
	}

	p.step()
	p.step()
	p.step()

	var st StateOut
	getJSON(t, ts, "/api/state", &st)
	if st.Position != 3 || st.Total != 5 || st.Revealed != 1 {
		t.Errorf("state after 3 frames: %+v", st)
	}
}

func TestHandlers_AnomaliesAndDetection(t *testing.T) {
	s, p := newRevealServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var anoms []model.Anomaly
	getJSON(t, ts, "/api/anomalies", &anoms)
	if len(anoms) != 0 {
		t.Errorf("expected no revealed anomalies yet, got %d", len(anoms))
	}

	for i := 0; i < 5; i++ {
		p.step()
	}

	getJSON(t, ts, "/api/anomalies", &anoms)
	if len(anoms) != 2 || anoms[0].Index != 2 || anoms[1].Index != 4 {
		t.Errorf("revealed anomalies: %+v", anoms)
	}

	var d model.Detection
	getJSON(t, ts, "/api/detection", &d)
	if len(d.Signal) != 5 || len(d.Anomalies) != 2 {
		t.Errorf("detection dump: signal=%d anomalies=%d", len(d.Signal), len(d.Anomalies))
	}
}

func TestHandlers_Control(t *testing.T) {
	s, p := newRevealServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	if resp := postJSON(t, ts, "/api/control", `{"action":"pause"}`); resp.StatusCode != http.StatusOK {
		t.Errorf("pause: status %d", resp.StatusCode)
	}
	if !p.State(0).Paused {
		t.Error("pause did not take effect")
	}

	if resp := postJSON(t, ts, "/api/control", `{"action":"resume"}`); resp.StatusCode != http.StatusOK {
		t.Errorf("resume: status %d", resp.StatusCode)
	}
	if p.State(0).Paused {
		t.Error("resume did not take effect")
	}

	if resp := postJSON(t, ts, "/api/control", `{"action":"speed","speed":8}`); resp.StatusCode != http.StatusOK {
		t.Errorf("speed: status %d", resp.StatusCode)
	}
	if got := p.State(0).Speed; got != 8 {
		t.Errorf("speed: got %v, want 8", got)
	}

	if resp := postJSON(t, ts, "/api/control", `{"action":"speed","speed":-1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad speed: status %d, want 400", resp.StatusCode)
	}
	if resp := postJSON(t, ts, "/api/control", `{"action":"warp"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown action: status %d, want 400", resp.StatusCode)
	}
	if resp := postJSON(t, ts, "/api/control", `not json`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body: status %d, want 400", resp.StatusCode)
	}
}

func TestHandlers_ControlWithoutPresenter(t *testing.T) {
	s := NewServer(NewHub())
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	if resp := postJSON(t, ts, "/api/control", `{"action":"pause"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("control without playback: status %d, want 409", resp.StatusCode)
	}
}

func TestHandlers_Threshold(t *testing.T) {
	s := NewServer(NewHub())
	f := NewFollowState("demo", 0.3, 10)
	s.SetFollow(f)

	var applied float64
	s.SetThresholdFunc(func(th float64) { applied = th })

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	if resp := postJSON(t, ts, "/api/threshold", `{"threshold":25.5}`); resp.StatusCode != http.StatusOK {
		t.Errorf("threshold: status %d", resp.StatusCode)
	}
	if applied != 25.5 {
		t.Errorf("setter received %v, want 25.5", applied)
	}
	if f.RunInfo().Threshold != 25.5 {
		t.Errorf("follow state threshold not updated: %v", f.RunInfo().Threshold)
	}

	if resp := postJSON(t, ts, "/api/threshold", `{"threshold":-1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative threshold: status %d, want 400", resp.StatusCode)
	}
}

func TestHandlers_ThresholdWithoutEngine(t *testing.T) {
	s, _ := newRevealServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	if resp := postJSON(t, ts, "/api/threshold", `{"threshold":5}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("threshold in reveal mode: status %d, want 409", resp.StatusCode)
	}
}

func TestHandlers_DetectionUnavailableInFollowMode(t *testing.T) {
	s := NewServer(NewHub())
	s.SetFollow(NewFollowState("demo", 0.3, 10))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp := getJSON(t, ts, "/api/detection", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("detection in follow mode: status %d, want 404", resp.StatusCode)
	}
}

func TestHandlers_Healthz(t *testing.T) {
	s, _ := newRevealServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var body map[string]any
	resp := getJSON(t, ts, "/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: status %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("healthz body: %+v", body)
	}

	s.SetHealthFunc(func() (bool, map[string]any) {
		return false, map[string]any{"sqlite": false}
	})
	resp = getJSON(t, ts, "/healthz", &body)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("degraded healthz: status %d, want 503", resp.StatusCode)
	}
	if body["status"] != "degraded" {
		t.Errorf("degraded healthz body: %+v", body)
	}
}

func TestHandlers_Latency(t *testing.T) {
	s, _ := newRevealServer(t)
	s.Hub.Latency.Record(10)
	s.Hub.Latency.Record(20)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var out LatencyOut
	getJSON(t, ts, "/api/latency", &out)
	if out.Count != 2 {
		t.Errorf("latency count: got %d, want 2", out.Count)
	}
	if out.P50 != 15 {
		t.Errorf("latency p50: got %v, want 15", out.P50)
	}
}

func TestHandlers_CORSPreflight(t *testing.T) {
	s, _ := newRevealServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/control", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin header: %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("missing CORS methods header")
	}
}

func TestFollowState_Apply(t *testing.T) {
	f := NewFollowState("feed", 0.5, 10)

	frame, anom := f.Apply(model.Point{Series: "feed", Index: 0, Value: 3, Trend: 3})
	if anom != nil {
		t.Error("unflagged point produced an anomaly")
	}
	if frame.Index != 0 || frame.Revealed != 1 || frame.Total != 0 {
		t.Errorf("first frame: %+v", frame)
	}

	frame, anom = f.Apply(model.Point{
		Series: "feed", Index: 1, Value: 50, Trend: 26.5, Deviation: 23.5, Anomaly: true,
	})
	if anom == nil || anom.Index != 1 || anom.Deviation != 23.5 {
		t.Errorf("flagged point missed: %+v", anom)
	}
	if frame.Anomaly != anom {
		t.Error("frame should reference the recorded anomaly")
	}

	if got := f.State(0); got.Position != 2 || got.Revealed != 1 {
		t.Errorf("follow state: %+v", got)
	}
	if got := f.Anomalies(); len(got) != 1 || got[0].Value != 50 {
		t.Errorf("anomalies: %+v", got)
	}
}

func TestServer_PublishPoint(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)
	s := NewServer(h)
	s.SetFollow(NewFollowState("feed", 0.5, 10))

	s.PublishPoint(model.Point{Series: "feed", Index: 0, Value: 3, Trend: 3})
	s.PublishPoint(model.Point{Series: "feed", Index: 1, Value: 50, Trend: 26.5, Deviation: 23.5, Anomaly: true})

	envs := drainEnvelopes(t, c)
	if got := countChannel(envs, ChannelFrames); got != 2 {
		t.Errorf("frames: got %d, want 2", got)
	}
	if got := countChannel(envs, ChannelAnomalies); got != 1 {
		t.Errorf("anomalies: got %d, want 1", got)
	}
}

func TestServer_PublishPointWithoutFollowIsNoop(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)
	s := NewServer(h)

	s.PublishPoint(model.Point{Series: "feed", Index: 0, Value: 3})
	if envs := drainEnvelopes(t, c); len(envs) != 0 {
		t.Errorf("expected no broadcast without follow state, got %d", len(envs))
	}
}
