package bentoauth

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// handleFailedAttempt records the failure in the attempt store and fires
// the threshold notification when this exact failure crossed the line.
// RecordFailure is atomic, so of N concurrent failures exactly one
// observes the threshold count and exactly one notification goes out.
// Storage and delivery problems are logged and swallowed: a broken
// tracker must never change the caller-visible login outcome.
func (e *Engine) handleFailedAttempt(ctx context.Context, identity *Identity) {
	if e == nil || !e.config.Anomaly.Enabled || identity == nil {
		return
	}

	record, err := e.store.RecordFailure(ctx, identity.ID, clientIPFromContext(ctx), e.now())
	if err != nil {
		e.logger.Warn("failed login attempt not recorded",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		return
	}

	if record.FailedCount != e.config.Anomaly.Threshold {
		return
	}

	e.metricInc(MetricAnomalyThresholdCrossed)
	e.emitAudit(ctx, auditEventAnomalyThreshold, false, identity.ID, "", nil, func() map[string]string {
		return map[string]string{
			"failed_attempts": strconv.Itoa(record.FailedCount),
		}
	})
	e.notifyAnomaly(ctx, identity, record)
}

func (e *Engine) notifyAnomaly(ctx context.Context, identity *Identity, record LoginAttemptRecord) {
	if e.notifier == nil {
		return
	}

	// Detached from the request context: the login response must not
	// wait on, or be cancelled with, the delivery.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Anomaly.NotifyTimeout)
	defer cancel()

	err := e.notifier.NotifyAnomalousLogin(notifyCtx, AnomalyNotification{
		Identity:          identity,
		FailedAttempts:    record.FailedCount,
		LastAttemptTime:   record.LastFailureAt,
		LastAttemptSource: record.LastFailureSource,
	})
	if err != nil {
		e.metricInc(MetricAnomalyNotificationFailed)
		e.logger.Warn("anomaly notification delivery failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		return
	}

	e.metricInc(MetricAnomalyNotificationSent)
	e.emitAudit(ctx, auditEventAnomalyNotified, true, identity.ID, "", nil, nil)
}
