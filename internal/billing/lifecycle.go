// Package billing owns the authoritative state transitions of a tenant's
// subscription: trial creation, payment confirmation, downgrade scheduling,
// cancellation and the periodic expiry sweep.
package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/feature"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

// Plan prices in kobo. The client never decides the amount; the provider's
// verified record must match these exactly or the upgrade hard-fails.
var planAmounts = map[string]int64{
	model.PlanProfessional: 2500000, // NGN 25,000
	model.PlanEnterprise:   5000000, // NGN 50,000
}

// PlanAmountKobo returns the monthly price for a paid plan, 0 for starter
// or unknown plans.
func PlanAmountKobo(plan string) int64 {
	return planAmounts[plan]
}

// billingPeriod is the length of one paid period.
const billingPeriod = 30 * 24 * time.Hour

// Service is the subscription lifecycle manager.
type Service struct {
	db        *gorm.DB
	verifier  PaymentVerifier
	log       *zap.Logger
	trialDays int
	now       func() time.Time
}

// NewService creates a lifecycle manager.
func NewService(db *gorm.DB, verifier PaymentVerifier, log *zap.Logger, trialDays int) *Service {
	return &Service{
		db:        db,
		verifier:  verifier,
		log:       log,
		trialDays: trialDays,
		now:       time.Now,
	}
}

// StartTrial creates the trial subscription for a newly registered
// organization inside the caller's transaction.
func (s *Service) StartTrial(tx *gorm.DB, tenantID string) (*model.Subscription, error) {
	trialEnd := s.now().Add(time.Duration(s.trialDays) * 24 * time.Hour)
	sub := &model.Subscription{
		TenantID:      tenantID,
		Plan:          model.PlanStarter,
		Status:        model.SubStatusActive,
		IsTrialActive: true,
		TrialEndDate:  &trialEnd,
	}
	if result := tx.Create(sub); result.Error != nil {
		return nil, apperr.Internal(result.Error)
	}
	return sub, nil
}

// validateVerifiedPayment checks the provider's record against what the
// client claims to have paid for. Amount verification is fraud prevention,
// not a convenience check; any mismatch hard-fails the upgrade.
func validateVerifiedPayment(v *VerifiedPayment, expectedPlan string) error {
	if v.Status != "success" {
		return apperr.Validation(fmt.Sprintf("payment not successful: %s", v.Status))
	}
	if expectedPlan != "" && v.Plan != "" && v.Plan != expectedPlan {
		return apperr.Validation("payment plan does not match requested plan")
	}
	plan := v.Plan
	if plan == "" {
		plan = expectedPlan
	}
	want, ok := planAmounts[plan]
	if !ok {
		return apperr.Validation("unknown subscription plan")
	}
	if v.AmountKobo != want {
		return apperr.Validation("payment amount does not match plan price")
	}
	return nil
}

// ApplyPayment verifies a payment reference with the provider and applies
// the upgrade. Processing is idempotent under at-least-once delivery: the
// unique index on the payment reference decides whether this delivery is
// the first, and only the first mutates the subscription.
func (s *Service) ApplyPayment(ctx context.Context, tenantID, reference, expectedPlan string) error {
	verified, err := s.verifier.Verify(ctx, reference)
	if err != nil {
		return err
	}
	if err := validateVerifiedPayment(verified, expectedPlan); err != nil {
		return err
	}
	if verified.TenantID != "" && tenantID != "" && verified.TenantID != tenantID {
		return apperr.CrossTenant("payment belongs to a different organization")
	}
	if tenantID == "" {
		tenantID = verified.TenantID
	}
	if tenantID == "" {
		return apperr.Validation("payment carries no organization reference")
	}

	plan := verified.Plan
	if plan == "" {
		plan = expectedPlan
	}

	return s.applyVerified(tenantID, reference, plan, verified)
}

// ApplyWebhookCharge applies a charge.success event whose signature has
// already been verified. Unlike ApplyPayment there is no provider
// round-trip: the signed body is the provider's record.
func (s *Service) ApplyWebhookCharge(ctx context.Context, charge *ChargeData) error {
	verified := &VerifiedPayment{
		Reference:  charge.Reference,
		Status:     charge.Status,
		AmountKobo: charge.Amount,
		Plan:       charge.Metadata.Plan,
		TenantID:   charge.Metadata.TenantID,
	}
	if err := validateVerifiedPayment(verified, ""); err != nil {
		return err
	}
	if verified.TenantID == "" {
		return apperr.Validation("charge carries no organization reference")
	}
	return s.applyVerified(verified.TenantID, verified.Reference, verified.Plan, verified)
}

func (s *Service) applyVerified(tenantID, reference, plan string, verified *VerifiedPayment) error {
	now := s.now()
	nextPayment := now.Add(billingPeriod)

	return s.db.Transaction(func(tx *gorm.DB) error {
		event := &model.PaymentEvent{
			TenantID:    tenantID,
			Reference:   reference,
			Plan:        plan,
			AmountKobo:  verified.AmountKobo,
			ProcessedAt: now,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).Create(event)
		if result.Error != nil {
			return apperr.Internal(result.Error)
		}
		if result.RowsAffected == 0 {
			// Same reference seen before: the upgrade already happened.
			s.log.Info("payment reference already processed",
				zap.String("reference", reference),
				zap.String("tenant_id", tenantID))
			prometheus.WebhookCounter.WithLabelValues("charge.success", "duplicate").Inc()
			return nil
		}

		updates := map[string]interface{}{
			"plan":                       plan,
			"status":                     model.SubStatusActive,
			"is_trial_active":            false,
			"trial_end_date":             nil,
			"amount_kobo":                verified.AmountKobo,
			"provider_customer_code":     verified.CustomerCode,
			"provider_subscription_code": reference,
			"next_payment_date":          nextPayment,
		}
		if result := tx.Model(&model.Subscription{}).
			Where("tenant_id = ?", tenantID).
			Updates(updates); result.Error != nil {
			return apperr.Internal(result.Error)
		}

		// Mirror the tier onto the organization record.
		if result := tx.Model(&model.Organization{}).
			Where("id = ?", tenantID).
			Updates(map[string]interface{}{"plan": plan, "status": model.OrgStatusActive}); result.Error != nil {
			return apperr.Internal(result.Error)
		}

		s.log.Info("subscription upgraded",
			zap.String("tenant_id", tenantID),
			zap.String("plan", plan),
			zap.String("reference", reference))
		prometheus.WebhookCounter.WithLabelValues("charge.success", "applied").Inc()
		return nil
	})
}

// downgradeBlocked reports whether the current staff headcount exceeds the
// target plan's limit.
func downgradeBlocked(targetPlan string, staffCount int64) bool {
	limit := feature.StaffLimit(targetPlan)
	if limit == feature.Unlimited {
		return false
	}
	return staffCount > int64(limit)
}

// RequestDowngrade validates the target tier against current headcount and
// schedules the downgrade for the end of the current billing period. The
// plan does not change until the sweep applies it.
func (s *Service) RequestDowngrade(ctx context.Context, tenantID, targetPlan string) error {
	if _, known := map[string]bool{
		model.PlanStarter:      true,
		model.PlanProfessional: true,
		model.PlanEnterprise:   true,
	}[targetPlan]; !known {
		return apperr.Validation("unknown target plan")
	}

	var sub model.Subscription
	if result := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&sub); result.Error != nil {
		return apperr.NotFound("subscription")
	}
	if sub.Plan == targetPlan {
		return apperr.Conflict("organization is already on this plan")
	}

	var staffCount int64
	if result := s.db.WithContext(ctx).Model(&model.Staff{}).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Count(&staffCount); result.Error != nil {
		return apperr.Internal(result.Error)
	}
	if downgradeBlocked(targetPlan, staffCount) {
		return apperr.Validation(fmt.Sprintf(
			"current staff count %d exceeds the %s plan limit of %d; deactivate staff first",
			staffCount, targetPlan, feature.StaffLimit(targetPlan)))
	}

	effective := s.now()
	if sub.NextPaymentDate != nil {
		effective = *sub.NextPaymentDate
	} else if sub.TrialEndDate != nil {
		effective = *sub.TrialEndDate
	}

	updates := map[string]interface{}{
		"scheduled_plan": targetPlan,
		"scheduled_at":   effective,
	}
	if result := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Updates(updates); result.Error != nil {
		return apperr.Internal(result.Error)
	}

	s.log.Info("downgrade scheduled",
		zap.String("tenant_id", tenantID),
		zap.String("target_plan", targetPlan),
		zap.Time("effective", effective))
	return nil
}

// Cancel marks the subscription cancelled and stamps the end date. The
// already-consumed period is not revoked.
func (s *Service) Cancel(ctx context.Context, tenantID string) error {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("tenant_id = ? AND status <> ?", tenantID, model.SubStatusCancelled).
		Updates(map[string]interface{}{
			"status":                model.SubStatusCancelled,
			"subscription_end_date": now,
		})
	if result.Error != nil {
		return apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("subscription is already cancelled")
	}
	s.log.Info("subscription cancelled", zap.String("tenant_id", tenantID))
	return nil
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	TrialsExpired     int64
	MarkedPastDue     int64
	DowngradesApplied int64
}

// RunSweep executes the periodic maintenance pass. Every step is a
// conditional update whose filter re-checks the precondition, so running
// the sweep concurrently from multiple instances is safe.
func (s *Service) RunSweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	// (a) lapse trials: flag only, status untouched. Trial-expired tenants
	// keep basic check-in but lose gated features.
	result := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("plan = ? AND is_trial_active = ? AND trial_end_date < ?", model.PlanStarter, true, now).
		Update("is_trial_active", false)
	if result.Error != nil {
		return res, apperr.Internal(result.Error)
	}
	res.TrialsExpired = result.RowsAffected
	if result.RowsAffected > 0 {
		prometheus.SweepCounter.WithLabelValues("trial_expired").Add(float64(result.RowsAffected))
	}

	// (b) mark paid subscriptions past their payment date.
	result = s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ? AND plan <> ? AND next_payment_date < ?", model.SubStatusActive, model.PlanStarter, now).
		Update("status", model.SubStatusPastDue)
	if result.Error != nil {
		return res, apperr.Internal(result.Error)
	}
	res.MarkedPastDue = result.RowsAffected
	if result.RowsAffected > 0 {
		prometheus.SweepCounter.WithLabelValues("past_due").Add(float64(result.RowsAffected))
	}

	// (c) apply matured scheduled downgrades.
	var pending []model.Subscription
	if err := s.db.WithContext(ctx).
		Where("scheduled_plan <> '' AND scheduled_at <= ?", now).
		Find(&pending).Error; err != nil {
		return res, apperr.Internal(err)
	}
	for _, sub := range pending {
		applied, err := s.applyScheduledDowngrade(ctx, &sub)
		if err != nil {
			s.log.Error("failed to apply scheduled downgrade",
				zap.String("tenant_id", sub.TenantID), zap.Error(err))
			continue
		}
		if applied {
			res.DowngradesApplied++
			prometheus.SweepCounter.WithLabelValues("downgrade_applied").Inc()
		}
	}

	// Refresh the platform gauge while we are here.
	var activeOrgs int64
	if err := s.db.WithContext(ctx).Model(&model.Organization{}).
		Where("status <> ?", model.OrgStatusSuspended).
		Count(&activeOrgs).Error; err == nil {
		prometheus.ActiveOrganizationsGauge.Set(float64(activeOrgs))
	}

	return res, nil
}

// applyScheduledDowngrade flips one subscription to its scheduled plan.
// The WHERE clause re-checks the scheduled plan so a concurrent sweeper
// that got there first makes this a no-op.
func (s *Service) applyScheduledDowngrade(ctx context.Context, sub *model.Subscription) (bool, error) {
	target := sub.ScheduledPlan
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Subscription{}).
			Where("id = ? AND scheduled_plan = ?", sub.ID, target).
			Updates(map[string]interface{}{
				"plan":           target,
				"amount_kobo":    PlanAmountKobo(target),
				"scheduled_plan": "",
				"scheduled_at":   nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Model(&model.Organization{}).
			Where("id = ?", sub.TenantID).
			Update("plan", target).Error
	})
	if err != nil {
		return false, apperr.Internal(err)
	}
	if applied {
		s.log.Info("scheduled downgrade applied",
			zap.String("tenant_id", sub.TenantID),
			zap.String("plan", target))
	}
	return applied, nil
}
