package services

import (
	"context"
	"time"

	"github.com/example/storefront/internal/models"
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Finalized int
	Refunded  int
	Failed    int
}

// Reconcile retries finalization for sessions whose payment was captured
// before staleBefore but that never produced an order. Sessions that already
// failed maxAttempts times are refunded instead.
func (s *CheckoutService) Reconcile(ctx context.Context, staleBefore time.Time, maxAttempts int) (ReconcileResult, error) {
	var result ReconcileResult

	var sessions []models.CheckoutSession
	if err := s.db.Preload("Items").
		Where("status = ? AND updated_at < ?", models.CheckoutCaptured, staleBefore).
		Order("updated_at asc").
		Limit(50).
		Find(&sessions).Error; err != nil {
		return result, err
	}

	for i := range sessions {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		session := &sessions[i]

		if session.Attempts >= maxAttempts {
			if err := s.gateway.RefundCapture(ctx, session.PaymentID); err != nil {
				s.logger.Error("refund after failed finalization failed, manual action required",
					"session_id", session.ID, "payment_id", session.PaymentID, "error", err)
				result.Failed++
				continue
			}
			if err := s.db.Model(session).Update("status", models.CheckoutRefunded).Error; err != nil {
				s.logger.Error("refund recorded at provider but not locally",
					"session_id", session.ID, "payment_id", session.PaymentID, "error", err)
			}
			result.Refunded++
			continue
		}

		if _, _, err := s.finalize(ctx, session); err != nil {
			result.Failed++
			continue
		}
		result.Finalized++
	}
	return result, nil
}

// RunReconciler calls Reconcile every interval until ctx is cancelled.
func (s *CheckoutService) RunReconciler(ctx context.Context, interval time.Duration, maxAttempts int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("checkout reconciler started", "interval", interval.String(), "max_attempts", maxAttempts)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("checkout reconciler stopped")
			return
		case <-ticker.C:
			res, err := s.Reconcile(ctx, s.now().Add(-interval), maxAttempts)
			if err != nil {
				s.logger.Error("reconcile pass failed", "error", err)
				continue
			}
			if res.Finalized+res.Refunded+res.Failed > 0 {
				s.logger.Info("reconcile pass finished",
					"finalized", res.Finalized, "refunded", res.Refunded, "failed", res.Failed)
			}
		}
	}
}
