package live

import (
	"sync"
	"time"

	"driftwatch/internal/model"
)

// Server bundles the hub with the active presentation mode and exposes the
// REST surface via Router. Exactly one of presenter or follow is set per run.
type Server struct {
	Hub *Hub

	mu        sync.RWMutex
	presenter *Presenter
	follow    *FollowState

	// setThreshold forwards POST /api/threshold to the streaming engine.
	// Nil outside streaming mode.
	setThreshold func(float64)

	// health supplies the /healthz verdict and detail. Nil means always ok.
	health func() (bool, map[string]any)

	start time.Time
}

// NewServer creates a Server around the hub.
func NewServer(hub *Hub) *Server {
	return &Server{Hub: hub, start: time.Now()}
}

// SetPresenter installs reveal mode.
func (s *Server) SetPresenter(p *Presenter) {
	s.mu.Lock()
	s.presenter = p
	s.mu.Unlock()
}

// SetFollow installs follow mode.
func (s *Server) SetFollow(f *FollowState) {
	s.mu.Lock()
	s.follow = f
	s.mu.Unlock()
}

// SetThresholdFunc wires runtime threshold updates to the engine.
func (s *Server) SetThresholdFunc(fn func(float64)) {
	s.mu.Lock()
	s.setThreshold = fn
	s.mu.Unlock()
}

// SetHealthFunc wires /healthz to an external health aggregate.
func (s *Server) SetHealthFunc(fn func() (bool, map[string]any)) {
	s.mu.Lock()
	s.health = fn
	s.mu.Unlock()
}

// PublishPoint broadcasts one streaming engine point in follow mode.
// No-op when follow mode is not active.
func (s *Server) PublishPoint(p model.Point) {
	s.mu.RLock()
	f := s.follow
	s.mu.RUnlock()
	if f == nil {
		return
	}

	frame, anom := f.Apply(p)
	s.Hub.Broadcaster.Broadcast(ChannelFrames, frame.JSON())
	if anom != nil {
		s.Hub.Broadcaster.Broadcast(ChannelAnomalies, anom.JSON())
	}
}

func (s *Server) getPresenter() *Presenter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presenter
}

func (s *Server) getFollow() *FollowState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.follow
}
