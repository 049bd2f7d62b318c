// Package scheduler runs periodic background jobs on gocron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Task is one run of a job. The context is cancelled on Shutdown.
type Task func(ctx context.Context) error

type Scheduler struct {
	inner  gocron.Scheduler
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger zerolog.Logger) (*Scheduler, error) {
	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		inner:  inner,
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Every registers task to run at the given interval, first run immediately
// after Start. Runs never overlap: a run still in progress when the next is
// due causes that tick to be skipped.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.run(name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.logger.Info().Str("job", name).Dur("interval", interval).Msg("job registered")
	return nil
}

func (s *Scheduler) run(name string, task Task) {
	start := time.Now()
	if err := task(s.ctx); err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.inner.Start()
}

// Shutdown cancels running tasks and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.inner.Shutdown()
}
