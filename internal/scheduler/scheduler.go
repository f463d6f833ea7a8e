// Package scheduler runs the periodic connectivity probe and queue retry.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/medmentor/backend/internal/models"
	"github.com/medmentor/backend/internal/platform/logger"
)

// Prober refreshes the connectivity signal.
type Prober interface {
	Check(ctx context.Context) bool
}

// Drainer replays the offline queue.
type Drainer interface {
	Drain(ctx context.Context) models.DrainResponse
	QueueStatus() models.SyncStatus
}

type Scheduler struct {
	scheduler     *gocron.Scheduler
	prober        Prober
	drainer       Drainer
	probeInterval time.Duration
	retryInterval time.Duration
	log           *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the scheduler. prober may be nil when connectivity is not probed.
func New(prober Prober, drainer Drainer, probeInterval, retryInterval time.Duration, log *logger.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler:     s,
		prober:        prober,
		drainer:       drainer,
		probeInterval: probeInterval,
		retryInterval: retryInterval,
		log:           log.With("component", "scheduler"),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start registers the jobs and runs them in the background.
func (s *Scheduler) Start() error {
	if s.prober != nil && s.probeInterval > 0 {
		if _, err := s.scheduler.Every(s.probeInterval).Do(s.probe); err != nil {
			return fmt.Errorf("failed to schedule connectivity probe: %w", err)
		}
	}
	if s.retryInterval > 0 {
		if _, err := s.scheduler.Every(s.retryInterval).Do(s.retry); err != nil {
			return fmt.Errorf("failed to schedule queue retry: %w", err)
		}
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop cancels in-flight jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) probe() {
	s.prober.Check(s.ctx)
}

// retry drains only when there is something to send and a chance of success.
// Offline to online transitions trigger their own drain.
func (s *Scheduler) retry() {
	st := s.drainer.QueueStatus()
	if !st.IsOnline || st.PendingOperationCount == 0 || st.IsSyncing {
		return
	}
	res := s.drainer.Drain(s.ctx)
	if res.Attempted > 0 {
		s.log.Info("retried offline queue",
			"synced", res.Synced, "retried", res.Retried, "dropped", res.Dropped, "deferred", res.Deferred)
	}
}
