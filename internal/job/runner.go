package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/rpm-engine/internal/metrics"
	"github.com/t77yq/rpm-engine/internal/model"
	"github.com/t77yq/rpm-engine/internal/storage"
)

// Evaluator produces pending alerts for a patient
type Evaluator interface {
	Evaluate(ctx context.Context, patientID string) ([]model.PendingAlert, error)
}

// AlertStore lists candidate patients and persists alerts
type AlertStore interface {
	ListActivePatients(ctx context.Context, since time.Time) ([]string, error)
	CreateAlert(ctx context.Context, pending model.PendingAlert, createdAt time.Time) (*model.Alert, error)
}

// Publisher fans persisted alerts out
type Publisher interface {
	Publish(ctx context.Context, alert *model.Alert) error
}

// Summary reports the outcome of one run
type Summary struct {
	Patients   int
	Evaluated  int
	Failed     int
	Locked     int
	Raised     int
	Duplicates int
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithPublisher publishes every persisted alert
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) {
		r.publisher = p
	}
}

// WithLocker guards each patient with a distributed lock held for ttl.
// ttl also bounds each patient's evaluation, so work never outlives its lock.
func WithLocker(l Locker, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithPatientTimeout bounds each patient's evaluation when no locker is set
func WithPatientTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.lockTTL = d
		}
	}
}

// WithWorkers bounds how many patients are evaluated at once
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithActivityWindow sets how far back a reading makes a patient eligible
func WithActivityWindow(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.window = d
	}
}

// WithRunnerClock overrides the runner's source of time
func WithRunnerClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.clock = clock
	}
}

// Runner evaluates every recently active patient, persists the resulting
// alerts and publishes them
type Runner struct {
	logger    *zap.Logger
	evaluator Evaluator
	store     AlertStore
	publisher Publisher
	locker    Locker
	lockTTL   time.Duration
	workers   int
	window    time.Duration
	clock     func() time.Time
}

// NewRunner creates a new runner
func NewRunner(logger *zap.Logger, evaluator Evaluator, store AlertStore, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:    logger.Named("job"),
		evaluator: evaluator,
		store:     store,
		locker:    nopLocker{},
		lockTTL:   2 * time.Minute,
		workers:   4,
		window:    72 * time.Hour,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce evaluates all patients with a reading inside the activity window.
// Each patient runs under its own deadline. A failure or timeout for one
// patient is logged and counted; only listing failures and cancellation of
// ctx are returned.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	start := r.clock()

	patients, err := r.store.ListActivePatients(ctx, start.Add(-r.window))
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("failed to list active patients: %w", err)
	}
	metrics.JobPatients.Set(float64(len(patients)))

	var (
		mu      sync.Mutex
		summary = Summary{Patients: len(patients)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, patientID := range patients {
		patientID := patientID
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, r.lockTTL)
			res, err := r.runPatient(pctx, patientID)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, context.Canceled):
				return err
			case errors.Is(err, context.DeadlineExceeded):
				summary.Failed++
				r.logger.Error("Patient evaluation timed out",
					zap.String("patient_id", patientID),
					zap.Duration("timeout", r.lockTTL))
			case err != nil:
				summary.Failed++
				r.logger.Error("Patient evaluation failed",
					zap.String("patient_id", patientID),
					zap.Error(err))
			case res.locked:
				summary.Locked++
			default:
				summary.Evaluated++
				summary.Raised += res.raised
				summary.Duplicates += res.duplicates
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.JobRunsTotal.WithLabelValues("canceled").Inc()
		return summary, err
	}

	metrics.JobRunsTotal.WithLabelValues("ok").Inc()
	r.logger.Info("Evaluation run completed",
		zap.Int("patients", summary.Patients),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("failed", summary.Failed),
		zap.Int("locked", summary.Locked),
		zap.Int("raised", summary.Raised),
		zap.Int("duplicates", summary.Duplicates),
		zap.Duration("duration", r.clock().Sub(start)))

	return summary, nil
}

type patientResult struct {
	locked     bool
	raised     int
	duplicates int
}

func (r *Runner) runPatient(ctx context.Context, patientID string) (patientResult, error) {
	release, acquired, err := r.locker.Acquire(ctx, patientID, r.lockTTL)
	if err != nil {
		return patientResult{}, err
	}
	if !acquired {
		metrics.LockContentionTotal.Inc()
		metrics.EvaluationsTotal.WithLabelValues("locked").Inc()
		r.logger.Debug("Patient locked by another worker", zap.String("patient_id", patientID))
		return patientResult{locked: true}, nil
	}
	defer func() {
		// release even if ctx was canceled mid-run
		if err := release(context.Background()); err != nil {
			r.logger.Warn("Failed to release patient lock",
				zap.String("patient_id", patientID),
				zap.Error(err))
		}
	}()

	res, err := r.EvaluatePatient(ctx, patientID)
	if err != nil {
		return patientResult{}, err
	}
	return patientResult{raised: len(res.Raised), duplicates: res.Duplicates}, nil
}

// PatientResult lists what one evaluation persisted
type PatientResult struct {
	Raised     []*model.Alert
	Duplicates int
}

// EvaluatePatient evaluates one patient, persists every pending alert as an
// active alert and publishes it. A pending alert that collides with an
// existing active alert is skipped.
func (r *Runner) EvaluatePatient(ctx context.Context, patientID string) (PatientResult, error) {
	start := time.Now()
	pending, err := r.evaluator.Evaluate(ctx, patientID)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		return PatientResult{}, err
	}
	metrics.EvaluationsTotal.WithLabelValues("ok").Inc()

	var result PatientResult
	createdAt := r.clock()
	for _, p := range pending {
		alert, err := r.store.CreateAlert(ctx, p, createdAt)
		if errors.Is(err, storage.ErrDuplicateActiveAlert) {
			result.Duplicates++
			metrics.AlertsDuplicateTotal.Inc()
			r.logger.Debug("Alert already active",
				zap.String("patient_id", patientID),
				zap.String("rule_id", p.RuleID))
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to persist alert for rule %s: %w", p.RuleID, err)
		}

		metrics.AlertsRaisedTotal.WithLabelValues(alert.RuleID, string(alert.Severity)).Inc()
		result.Raised = append(result.Raised, alert)
		r.publish(ctx, alert)
	}
	return result, nil
}

// publish is best effort: the alert is already persisted
func (r *Runner) publish(ctx context.Context, alert *model.Alert) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, alert); err != nil {
		metrics.AlertsPublishedTotal.WithLabelValues("failed").Inc()
		r.logger.Error("Failed to publish alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
		return
	}
	metrics.AlertsPublishedTotal.WithLabelValues("success").Inc()
}
