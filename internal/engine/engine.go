package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/rpm-engine/internal/model"
	"github.com/t77yq/rpm-engine/internal/rules"
)

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the source of "now" for an evaluation pass
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine evaluates a patient's stored history against a rule set and returns
// the alerts that should be raised. It holds no per-patient state; concurrent
// calls for different patients are independent.
type Engine struct {
	accessor Accessor
	gate     gate
	rules    model.RuleSet
	clock    func() time.Time
	logger   *zap.Logger
}

// New creates an engine. The rule set is validated here so that malformed
// definitions fail at startup instead of during evaluation.
func New(accessor Accessor, checker ActiveAlertChecker, set model.RuleSet, opts ...Option) (*Engine, error) {
	if accessor == nil || checker == nil {
		return nil, ErrNilDependency
	}
	if err := rules.Validate(set); err != nil {
		return nil, err
	}

	e := &Engine{
		accessor: accessor,
		rules:    set,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("engine")
	e.gate = gate{checker: checker, logger: e.logger}

	return e, nil
}

// Rules returns the rule set the engine evaluates
func (e *Engine) Rules() model.RuleSet {
	return e.rules
}

// pass carries the state shared by one family within one Evaluate call
type pass struct {
	patientID string
	now       time.Time
	reads     *snapshot
}

func (e *Engine) newPass(patientID string, now time.Time) *pass {
	return &pass{
		patientID: patientID,
		now:       now,
		reads:     newSnapshot(e.accessor, patientID, now),
	}
}

// Evaluate runs the threshold, trend and composite families for a patient and
// returns the merged pending alerts. Callers must not rely on the order of the
// result. Any data-access failure fails the whole call and no alerts are
// returned.
func (e *Engine) Evaluate(ctx context.Context, patientID string) ([]model.PendingAlert, error) {
	if patientID == "" {
		return nil, ErrMissingPatientID
	}
	now := e.clock().UTC()

	var thresholdAlerts, trendAlerts, compositeAlerts []model.PendingAlert
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		thresholdAlerts, err = e.evaluateThresholdRules(gctx, e.newPass(patientID, now))
		return err
	})
	g.Go(func() error {
		var err error
		trendAlerts, err = e.evaluateTrendRules(gctx, e.newPass(patientID, now))
		return err
	})
	g.Go(func() error {
		var err error
		compositeAlerts, err = e.evaluateCompositeRules(gctx, e.newPass(patientID, now))
		return err
	})
	if err := g.Wait(); err != nil {
		e.logger.Error("Evaluation failed",
			zap.String("patient_id", patientID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to evaluate patient %s: %w", patientID, err)
	}

	alerts := make([]model.PendingAlert, 0, len(thresholdAlerts)+len(trendAlerts)+len(compositeAlerts))
	alerts = append(alerts, thresholdAlerts...)
	alerts = append(alerts, trendAlerts...)
	alerts = append(alerts, compositeAlerts...)

	e.logger.Debug("Evaluation completed",
		zap.String("patient_id", patientID),
		zap.Time("now", now),
		zap.Int("threshold", len(thresholdAlerts)),
		zap.Int("trend", len(trendAlerts)),
		zap.Int("composite", len(compositeAlerts)))

	return alerts, nil
}

// evaluateFamily applies the dedup gate and a per-rule evaluator to each rule of
// one family, stopping at the first error
func evaluateFamily[R model.Rule](
	ctx context.Context,
	e *Engine,
	p *pass,
	family []R,
	evaluate func(context.Context, *pass, R) (*model.PendingAlert, error),
) ([]model.PendingAlert, error) {
	var alerts []model.PendingAlert
	for _, rule := range family {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		skip, err := e.gate.suppressed(ctx, p.patientID, rule.RuleID())
		if err != nil {
			return nil, fmt.Errorf("%s rule %s: %w", rule.Kind(), rule.RuleID(), err)
		}
		if skip {
			continue
		}

		alert, err := evaluate(ctx, p, rule)
		if err != nil {
			return nil, fmt.Errorf("%s rule %s: %w", rule.Kind(), rule.RuleID(), err)
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts, nil
}

func (e *Engine) evaluateThresholdRules(ctx context.Context, p *pass) ([]model.PendingAlert, error) {
	return evaluateFamily(ctx, e, p, e.rules.Threshold, e.evaluateThreshold)
}

func (e *Engine) evaluateTrendRules(ctx context.Context, p *pass) ([]model.PendingAlert, error) {
	return evaluateFamily(ctx, e, p, e.rules.Trend, e.evaluateTrend)
}

func (e *Engine) evaluateCompositeRules(ctx context.Context, p *pass) ([]model.PendingAlert, error) {
	return evaluateFamily(ctx, e, p, e.rules.Composite, e.evaluateComposite)
}

// skipped logs that a rule did not fire because data was missing
func (e *Engine) skipped(p *pass, rule model.Rule, reason string) {
	e.logger.Debug("Insufficient data",
		zap.String("patient_id", p.patientID),
		zap.String("rule_id", rule.RuleID()),
		zap.String("reason", reason))
}
