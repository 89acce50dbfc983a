package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/brs"
	"solana-phoenix-scanner/internal/cache"
	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/notify"
	"solana-phoenix-scanner/internal/observability"
)

const dispatchBatch = 50

// DispatchResult counts alert deliveries. DeadLettered is the subset of Failed
// that reached domain.MaxDeliveryAttempts in this call.
type DispatchResult struct {
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

// DispatchPendingAlerts hands unsent alerts to the notifier, oldest first, and
// marks each one sent only after delivery succeeded. A failed delivery counts
// against the alert; once it reaches domain.MaxDeliveryAttempts the alert is
// no longer pending. Concurrent calls are serialized so an alert is not
// delivered twice by this process.
func (o *Orchestrator) DispatchPendingAlerts(ctx context.Context) (DispatchResult, error) {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	var res DispatchResult
	pending, err := o.store.PendingAlerts(ctx, dispatchBatch)
	if err != nil {
		return res, fmt.Errorf("pending alerts: %w", err)
	}

	for _, a := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		msg := o.alertMessage(ctx, a)
		if err := o.notifier.Notify(ctx, msg); err != nil {
			res.Failed++
			observability.RecordAlertSent("failed")
			if o.recordDeliveryFailure(ctx, a, err) {
				res.DeadLettered++
			}
			continue
		}
		if err := o.store.MarkAlertSent(ctx, a.ID); err != nil {
			res.Failed++
			o.logger.Error("mark alert sent failed", zap.String("alert_id", a.ID), zap.Error(err))
			continue
		}
		res.Sent++
		observability.RecordAlertSent("sent")
	}
	return res, nil
}

// recordDeliveryFailure counts a failed delivery and reports whether the alert
// was dead-lettered by it.
func (o *Orchestrator) recordDeliveryFailure(ctx context.Context, a domain.AlertView, deliveryErr error) bool {
	attempts, err := o.store.RecordAlertFailure(ctx, a.ID)
	if err != nil {
		o.logger.Error("record alert failure failed", zap.String("alert_id", a.ID), zap.Error(err))
		return false
	}
	if attempts >= domain.MaxDeliveryAttempts {
		observability.RecordAlertSent("dead_lettered")
		o.logger.Error("alert dead-lettered",
			zap.String("alert_id", a.ID),
			zap.String("address", a.TokenAddress),
			zap.Int("attempts", attempts),
			zap.Error(deliveryErr),
		)
		return true
	}
	o.logger.Warn("alert delivery failed",
		zap.String("alert_id", a.ID),
		zap.String("address", a.TokenAddress),
		zap.Int("attempts", attempts),
		zap.Error(deliveryErr),
	)
	return false
}

// alertMessage builds the notification payload from the stored token and any
// cached snapshot. It never calls the provider.
func (o *Orchestrator) alertMessage(ctx context.Context, a domain.AlertView) notify.AlertMessage {
	interp := brs.Interpret(a.ScoreAtAlert)
	msg := notify.AlertMessage{
		AlertID:     a.ID,
		Address:     a.TokenAddress,
		Symbol:      a.Symbol,
		Chain:       domain.ChainSolana,
		BRSScore:    a.ScoreAtAlert,
		Category:    interp.Category,
		Description: interp.Description,
	}

	t, err := o.store.GetToken(ctx, a.TokenAddress)
	if err != nil {
		return msg
	}
	msg.Chain = t.Chain
	msg.CurrentPrice = t.CurrentPrice
	msg.Volume24h = t.Volume24h
	msg.LiquidityUSD = t.LiquidityUSD

	if raw, ok := o.cache.Get(ctx, cache.Key(t.Chain, t.Address)); ok {
		var snap domain.TokenSnapshot
		if json.Unmarshal(raw, &snap) == nil {
			msg.PriceChange24h = snap.PriceChange24h
		}
	}
	return msg
}

// Prune deletes score and sent-alert history older than retention. The latest
// score of every token is kept.
func (o *Orchestrator) Prune(ctx context.Context, retention time.Duration) (scores, alerts int64, err error) {
	if retention < MinRetention {
		return 0, 0, ErrInvalidRetention
	}
	before := o.now().Add(-retention)
	scores, alerts, err = o.store.Prune(ctx, before)
	if err != nil {
		return scores, alerts, fmt.Errorf("prune: %w", err)
	}
	o.logger.Info("history pruned",
		zap.Time("before", before),
		zap.Int64("scores", scores),
		zap.Int64("alerts", alerts),
	)
	return scores, alerts, nil
}
