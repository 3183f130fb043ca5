package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

const (
	logMsgStarted      = "overdue sweep scheduler started"
	logMsgStopped      = "overdue sweep scheduler stopped"
	logMsgSweepDone    = "scheduled overdue sweep completed"
	logMsgSweepFailed  = "scheduled overdue sweep failed"
	logAttrInterval    = "interval"
	logAttrMarkedLoans = "marked_overdue"
	logAttrError       = "error"
	logAttrDurationMS  = "duration_ms"
)

// ErrInvalidInterval is returned for a non-positive sweep interval.
var ErrInvalidInterval = errors.New("sweep interval must be positive")

// ErrNilSweeper is returned when no sweeper is given.
var ErrNilSweeper = errors.New("sweeper must not be nil")

// Sweeper marks past-due active loans as overdue and reports how many it changed.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int64, error)
}

// SweepScheduler calls the sweeper once on start and then on every tick.
//
// Runs never overlap: the sweep runs on the scheduler goroutine and ticks that
// fire while it is busy are dropped by the ticker.
type SweepScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   loanledger.Logger
}

// NewSweepScheduler creates a scheduler. logger may be nil.
func NewSweepScheduler(sweeper Sweeper, interval time.Duration, logger loanledger.Logger) (*SweepScheduler, error) {
	if sweeper == nil {
		return nil, ErrNilSweeper
	}

	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	return &SweepScheduler{sweeper: sweeper, interval: interval, logger: logger}, nil
}

// Run sweeps until ctx is done. Sweep failures are logged and the schedule continues.
func (s *SweepScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.info(logMsgStarted, logAttrInterval, s.interval.String())

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			s.info(logMsgStopped)
			return
		}
	}
}

func (s *SweepScheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()

	marked, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		if ctx.Err() == nil && s.logger != nil {
			s.logger.Warn(logMsgSweepFailed, logAttrError, err.Error())
		}

		return
	}

	if s.logger == nil {
		return
	}

	args := []any{logAttrMarkedLoans, marked, logAttrDurationMS, time.Since(start).Milliseconds()}
	if marked == 0 {
		s.logger.Debug(logMsgSweepDone, args...)
		return
	}

	s.logger.Info(logMsgSweepDone, args...)
}

func (s *SweepScheduler) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
