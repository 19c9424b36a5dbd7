package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/clock"
	"github.com/smarttransit/booking-core/internal/metrics"
)

// maxBatchesPerRun bounds how long one sweep can hold the loop when a large
// backlog of expired locks has built up
const maxBatchesPerRun = 20

// ReclaimStore releases seat locks whose hold has passed
type ReclaimStore interface {
	ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// LockReclaimerService periodically returns expired seat locks to inventory
type LockReclaimerService struct {
	store     ReclaimStore
	clock     clock.Clock
	logger    *logrus.Logger
	interval  time.Duration
	batchSize int
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	done      chan struct{}
}

// NewLockReclaimerService creates a new lock reclaimer
func NewLockReclaimerService(
	store ReclaimStore,
	clk clock.Clock,
	logger *logrus.Logger,
	interval time.Duration,
	batchSize int,
) *LockReclaimerService {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &LockReclaimerService{
		store:     store,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins the background sweep. Calling it again has no effect.
func (s *LockReclaimerService) Start() {
	s.startOnce.Do(func() {
		s.logger.WithField("interval", s.interval.String()).Info("🕐 Starting lock reclaimer")
		s.started.Store(true)
		go s.run()
	})
}

// Stop halts the sweep and waits for an in-flight run to finish. Stopping a
// reclaimer that was never started returns immediately.
func (s *LockReclaimerService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("🛑 Stopping lock reclaimer")
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *LockReclaimerService) run() {
	defer close(s.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	s.RunOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			s.RunOnce(ctx)
		case <-s.stopCh:
			s.logger.Info("Lock reclaimer stopped")
			return
		}
	}
}

// RunOnce performs a single sweep and returns how many seats were released.
// Errors are logged and the sweep ends; the next tick retries.
func (s *LockReclaimerService) RunOnce(ctx context.Context) int {
	total := 0
	for i := 0; i < maxBatchesPerRun; i++ {
		released, err := s.store.ReleaseExpired(ctx, s.clock.Now(), s.batchSize)
		if err != nil {
			metrics.ReclaimRuns.WithLabelValues("error").Inc()
			s.logger.WithError(err).Error("Failed to release expired seat locks")
			return total
		}
		total += released
		if released < s.batchSize {
			break
		}
	}

	metrics.ReclaimRuns.WithLabelValues("ok").Inc()
	if total > 0 {
		metrics.SeatsReclaimed.Add(float64(total))
		s.logger.WithField("count", total).Info("Released expired seat locks")
	}
	return total
}
