package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"BetSentinel/internal/config"
	"BetSentinel/internal/notifier"
)

// ReleaseChecker announces new releases once per tag.
type ReleaseChecker interface {
	NotifyNewRelease(ctx context.Context, n notifier.Notifier) (bool, error)
}

// Scheduler runs the periodic housekeeping jobs.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	notifier notifier.Notifier
	log      *zap.Logger

	releases ReleaseChecker
	lines    func() []notifier.AccountLine
	now      func() time.Time
}

// New creates a scheduler whose jobs run under ctx. Job panics are recovered
// and a job still running when its next tick fires is skipped.
func New(ctx context.Context, n notifier.Notifier, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:      ctx,
		notifier: n,
		log:      log,
		now:      time.Now,
	}
}

// Register adds the release check and daily summary jobs. An empty schedule or a
// nil source leaves that job out.
func (s *Scheduler) Register(cfg config.ScheduleConfig, releases ReleaseChecker, lines func() []notifier.AccountLine) error {
	s.releases = releases
	s.lines = lines
	if cfg.ReleaseCheck != "" && releases != nil {
		if _, err := s.cron.AddFunc(cfg.ReleaseCheck, s.RunReleaseCheck); err != nil {
			return fmt.Errorf("register release check: %w", err)
		}
	}
	if cfg.DailySummary != "" && lines != nil {
		if _, err := s.cron.AddFunc(cfg.DailySummary, s.RunDailySummary); err != nil {
			return fmt.Errorf("register daily summary: %w", err)
		}
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", s.Jobs()))
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunReleaseCheck announces a new release if there is one.
func (s *Scheduler) RunReleaseCheck() {
	if s.releases == nil {
		return
	}
	sent, err := s.releases.NotifyNewRelease(s.ctx, s.notifier)
	if err != nil {
		s.log.Warn("release check failed", zap.Error(err))
		return
	}
	if sent {
		s.log.Info("new release announced")
	}
}

// RunDailySummary sends the end-of-day account report.
func (s *Scheduler) RunDailySummary() {
	if s.lines == nil {
		return
	}
	lines := s.lines()
	if len(lines) == 0 {
		return
	}
	if err := s.notifier.Notify(s.ctx, notifier.FormatDailySummary(lines, s.now())); err != nil {
		s.log.Error("send daily summary", zap.Error(err))
	}
}
