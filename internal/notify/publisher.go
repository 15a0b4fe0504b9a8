package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/rpm-engine/internal/model"
)

const (
	// StreamName is the JetStream stream persisted alerts are published to
	StreamName = "ALERTS"

	subjectPrefix = "alert."
)

// Subject returns the subject an alert of the given severity is published on
func Subject(severity model.AlertSeverity) string {
	return subjectPrefix + string(severity)
}

// Publisher fans persisted alerts out over NATS JetStream
type Publisher struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	attempts int
	strategy RetryStrategy
}

// NewPublisher creates a new publisher. Without WithRetry a publish is tried once.
func NewPublisher(logger *zap.Logger, js nats.JetStreamContext, opts ...Option) *Publisher {
	p := &Publisher{
		logger:   logger.Named("notify"),
		js:       js,
		attempts: 1,
		strategy: DefaultRetryStrategy(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureStream creates the alert stream if it does not exist yet
func (p *Publisher) EnsureStream() error {
	_, err := p.js.StreamInfo(StreamName)
	if err == nil {
		p.logger.Info("Using existing alert stream", zap.String("name", StreamName))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{subjectPrefix + "*"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	p.logger.Info("Created alert stream", zap.String("name", StreamName))
	return nil
}

// Publish sends an alert on alert.<severity>. The alert ID is used as the
// JetStream message ID so a retried publish is stored once.
func (p *Publisher) Publish(ctx context.Context, alert *model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	var ack *nats.PubAck
	for attempt := 0; ; attempt++ {
		ack, err = p.js.Publish(Subject(alert.Severity), data, nats.MsgId(alert.ID))
		if err == nil {
			break
		}
		if attempt+1 >= p.attempts {
			return fmt.Errorf("failed to publish alert after %d attempts: %w", attempt+1, err)
		}

		delay := p.strategy.NextRetry(attempt)
		p.logger.Warn("Alert publish failed, retrying",
			zap.String("id", alert.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.logger.Info("Alert published",
		zap.String("id", alert.ID),
		zap.String("patient_id", alert.PatientID),
		zap.String("rule_id", alert.RuleID),
		zap.String("severity", string(alert.Severity)),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate))

	return nil
}

// Subscribe delivers alerts published after the call to handler. An empty
// severity subscribes to every severity. Callers unsubscribe when done.
func (p *Publisher) Subscribe(severity model.AlertSeverity, handler func(*model.Alert)) (*nats.Subscription, error) {
	subject := subjectPrefix + "*"
	if severity != "" {
		subject = Subject(severity)
	}

	sub, err := p.js.Subscribe(subject, func(msg *nats.Msg) {
		var alert model.Alert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			p.logger.Error("Failed to unmarshal alert",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		handler(&alert)
	}, nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}
