// Package scheduler wires up the cron jobs that sweep overdue offers and log
// allocation progress.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"jobmate/allocation-service/internal/allocation"
)

// Allocator is the part of the allocation service the jobs drive.
type Allocator interface {
	Started() bool
	ExpireOverdue() int
	Statistics() allocation.Statistics
}

// Scheduler wraps robfig/cron and owns the periodic jobs.
type Scheduler struct {
	cron      *cron.Cron
	alloc     Allocator
	logger    *slog.Logger
	sweepSpec string // e.g. "@every 1m"
	statsSpec string
}

// New creates a Scheduler. Panicking jobs are recovered and logged.
func New(alloc Allocator, sweepSpec, statsSpec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		alloc:     alloc,
		logger:    logger,
		sweepSpec: sweepSpec,
		statsSpec: statsSpec,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.sweepSpec, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("cron.AddFunc sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.statsSpec, s.LogStatistics); err != nil {
		return fmt.Errorf("cron.AddFunc stats: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "sweep", s.sweepSpec, "stats", s.statsSpec)
	return nil
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Sweep rejects overdue offers. Deadline watchers normally handle them; the
// sweep catches any that outlived their watcher.
func (s *Scheduler) Sweep() int {
	n := s.alloc.ExpireOverdue()
	if n > 0 {
		s.logger.Info("overdue offers rejected", "count", n)
	}
	return n
}

// LogStatistics writes one progress line while allocation runs.
func (s *Scheduler) LogStatistics() {
	if !s.alloc.Started() {
		return
	}
	st := s.alloc.Statistics()
	s.logger.Info("allocation progress",
		"activeGroups", st.ActiveGroups,
		"finishedGroups", st.FinishedGroups,
		"offersPending", st.Offers.Pending,
		"offersAccepted", st.Offers.Accepted,
		"offersRejected", st.Offers.Rejected,
		"slotsFree", st.Slots.Free,
		"acceptanceRate", st.AcceptanceRate)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
