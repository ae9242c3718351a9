package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fare-alerts/internal/logging"
)

// TickFunc is invoked on every scheduled activation.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Spec is a standard five-field cron expression or descriptor.
	Spec       string
	Location   *time.Location
	RunOnStart bool
}

// Scheduler drives the price-check sweep on a cron schedule.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", opts.Spec, err)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		logger:   logging.Component(logger, "scheduler"),
	}, nil
}

// Next returns the first activation strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.opts.Location))
}

// Run blocks, invoking tick on every activation until ctx is cancelled.
// Activations that fire while a previous tick is still running are skipped.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	logAdapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(logAdapter),
		cron.WithChain(cron.Recover(logAdapter), cron.SkipIfStillRunning(logAdapter)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.execute(ctx, tick, time.Now().In(s.opts.Location))
	}))

	if s.opts.RunOnStart {
		s.execute(ctx, tick, time.Now().In(s.opts.Location))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	c.Start()
	s.logger.Info().
		Str("spec", s.opts.Spec).
		Str("timezone", s.opts.Location.String()).
		Time("next_run", s.Next(time.Now())).
		Msg("scheduler started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info().Time("at", at).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}

// cronLogger routes robfig/cron diagnostics into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

var _ cron.Logger = cronLogger{}
