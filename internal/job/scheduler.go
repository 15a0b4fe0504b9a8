package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/rpm-engine/internal/config"
	"github.com/t77yq/rpm-engine/internal/metrics"
)

// RunOncer is the unit of work the scheduler triggers
type RunOncer interface {
	RunOnce(ctx context.Context) (Summary, error)
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if msg == "panic" {
		metrics.PanicsRecovered.WithLabelValues("job").Inc()
	}
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// Scheduler triggers evaluation runs on a cron expression with a seconds field
type Scheduler struct {
	logger  *zap.Logger
	cron    *cron.Cron
	runner  RunOncer
	timeout time.Duration
	entryID cron.EntryID
	cancel  context.CancelFunc
}

// NewScheduler creates a new scheduler. Overlapping runs are skipped; a run
// is bounded by timeout when it is positive.
func NewScheduler(logger *zap.Logger, runner RunOncer, timeout time.Duration) *Scheduler {
	logger = logger.Named("scheduler")
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithParser(config.CronParser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	}

	return &Scheduler{
		logger:  logger,
		cron:    cron.New(cronOptions...),
		runner:  runner,
		timeout: timeout,
	}
}

// Start registers the run under expression and starts the cron loop. Runs use
// ctx, so canceling it aborts an in-flight run.
func (s *Scheduler) Start(ctx context.Context, expression string) error {
	sched, err := config.CronParser.Parse(expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	entryID, err := s.cron.AddJob(expression, &cronJob{scheduler: s, ctx: ctx})
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()

	s.logger.Info("Scheduler started",
		zap.String("expression", expression),
		zap.Time("next_run", sched.Next(time.Now())))
	return nil
}

// Stop stops the cron loop and waits for a running evaluation to finish
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// Next returns the next scheduled run time, or zero before Start
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *Scheduler
	ctx       context.Context
}

// Run implements cron.Job
func (j *cronJob) Run() {
	ctx := j.ctx
	if j.scheduler.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.scheduler.timeout)
		defer cancel()
	}

	start := time.Now()
	summary, err := j.scheduler.runner.RunOnce(ctx)
	if err != nil {
		j.scheduler.logger.Error("Scheduled run failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}

	j.scheduler.logger.Info("Executed scheduled run",
		zap.Int("patients", summary.Patients),
		zap.Int("raised", summary.Raised),
		zap.Time("executed_at", start),
		zap.Time("next_run", j.scheduler.Next()))
}
