// Package service ties the registry to the allocation engine and is the
// business layer shared by the HTTP handler, the gRPC server and the
// scheduler. It has no dependency on any transport.
//
// Until Start, the engine is a preview rebuilt from the registry whenever a
// candidate edits preferences, so snapshots and statistics always reflect the
// current lists. Start freezes the registry and runs that engine for real.
package service

import (
	"log/slog"
	"sync"

	"jobmate/allocation-service/internal/allocation"
	"jobmate/allocation-service/internal/registry"
)

// ─── Service ─────────────────────────────────────────────────────────────────

type Service struct {
	mu      sync.Mutex
	reg     *registry.Registry
	opts    []allocation.Option
	logger  *slog.Logger
	engine  *allocation.Engine
	version uint64 // registry version the engine was built from
}

// New returns a Service over reg. opts are passed to every engine it builds.
func New(reg *registry.Registry, logger *slog.Logger, opts ...allocation.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reg:    reg,
		logger: logger,
		opts:   append([]allocation.Option{allocation.WithLogger(logger)}, opts...),
	}
}

// current returns the engine, rebuilding the preview if the registry moved on.
func (s *Service) current() *allocation.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Service) currentLocked() *allocation.Engine {
	if s.engine != nil && (s.engine.Started() || s.reg.Version() == s.version) {
		return s.engine
	}
	if s.engine != nil {
		s.engine.Close()
	}
	s.version = s.reg.Version()
	s.engine = allocation.New(s.reg.Candidates(), s.reg.Positions(), s.opts...)
	return s.engine
}

// ─── Allocation lifecycle ────────────────────────────────────────────────────

// Start locks preferences and starts allocation. It reports whether this call
// started it.
func (s *Service) Start() bool {
	s.mu.Lock()
	s.reg.Freeze()
	e := s.currentLocked()
	s.mu.Unlock()

	started := e.Start()
	if started {
		st := e.Statistics()
		s.logger.Info("allocation started",
			"groups", st.TotalGroups, "candidates", st.Candidates.Total,
			"disqualified", st.Candidates.Disqualified, "offers", st.Offers.Total)
	}
	return started
}

func (s *Service) Started() bool { return s.current().Started() }

// Accept confirms an offer.
func (s *Service) Accept(offerID string) error { return s.current().Accept(offerID) }

// Reject declines an offer on behalf of the candidate.
func (s *Service) Reject(offerID string) error { return s.current().Reject(offerID, false) }

// ExpireOverdue rejects the offers whose deadline has passed.
func (s *Service) ExpireOverdue() int {
	if !s.Started() {
		return 0
	}
	return s.current().ExpireOverdue()
}

// Close stops the engine's deadline watchers.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		s.engine.Close()
	}
}

// ─── Read views ──────────────────────────────────────────────────────────────

func (s *Service) Snapshot() allocation.Snapshot { return s.current().Snapshot() }

func (s *Service) Statistics() allocation.Statistics { return s.current().Statistics() }

func (s *Service) GroupStatistics() []allocation.GroupStatistics {
	return s.current().GroupStatistics()
}

// ─── Preferences ─────────────────────────────────────────────────────────────

// Candidate returns the live record of a candidate: the engine's once
// allocation started, the registry's before.
func (s *Service) Candidate(id string) (allocation.Candidate, error) {
	for _, c := range s.current().Snapshot().Candidates {
		if c.ID == id {
			return c, nil
		}
	}
	return s.reg.Candidate(id)
}

func (s *Service) TogglePreference(candidateID, positionID string) (allocation.Candidate, error) {
	return s.reg.TogglePreference(candidateID, positionID)
}

func (s *Service) ReorderPreferences(candidateID string, positionIDs []string) (allocation.Candidate, error) {
	return s.reg.ReorderPreferences(candidateID, positionIDs)
}

func (s *Service) EligiblePositions(candidateID string) ([]allocation.Position, error) {
	return s.reg.EligiblePositions(candidateID)
}
