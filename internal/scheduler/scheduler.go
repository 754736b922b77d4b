package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler drives the monitoring cycle and background jobs
type Scheduler struct {
	cron     *cron.Cron
	monitor  *Monitor
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// New creates a scheduler running a cycle every interval
func New(monitor *Monitor, interval time.Duration, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		monitor:  monitor,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// Start registers the monitoring cycle, starts cron and runs a first cycle right away
func (s *Scheduler) Start() error {
	if err := s.AddJob(fmt.Sprintf("@every %s", s.interval), &cycleJob{monitor: s.monitor}); err != nil {
		return fmt.Errorf("failed to schedule monitoring cycle: %w", err)
	}
	s.cron.Start()
	s.log.Info().Dur("interval", s.interval).Msg("Scheduler started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Msg("Initial cycle panicked")
			}
		}()
		if _, err := s.monitor.RunCycle(s.ctx); err != nil && !errors.Is(err, domain.ErrCycleInProgress) {
			s.log.Warn().Err(err).Msg("Initial cycle not run")
		}
	}()
	return nil
}

// Stop cancels the running cycle and waits for every job to return
func (s *Scheduler) Stop() {
	s.monitor.State().Close()
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "@every 15m"   - Every 15 minutes
//   - "@daily"       - Midnight every day
//   - "0 3 * * *"    - 3 AM every day
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")

		if err := job.Run(s.ctx); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("Job completed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a cycle immediately (outside schedule). The cycle is
// cancelled when either ctx or the scheduler is done.
func (s *Scheduler) RunNow(ctx context.Context) (domain.CycleRunRecord, error) {
	s.log.Info().Msg("Running cycle immediately")

	cycleCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return s.monitor.RunCycle(cycleCtx)
}

// cycleJob adapts the monitor to the Job interface
type cycleJob struct {
	monitor *Monitor
}

func (j *cycleJob) Name() string { return "monitoring_cycle" }

func (j *cycleJob) Run(ctx context.Context) error {
	_, err := j.monitor.RunCycle(ctx)
	if errors.Is(err, domain.ErrCycleInProgress) || errors.Is(err, ErrStopped) {
		return nil
	}
	return err
}

// cronLogger routes cron's own messages to zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
