package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
)

// stubVerifier serves canned provider records keyed by reference.
type stubVerifier struct {
	payments map[string]*VerifiedPayment
}

func (s *stubVerifier) Verify(_ context.Context, reference string) (*VerifiedPayment, error) {
	if v, ok := s.payments[reference]; ok {
		return v, nil
	}
	return nil, apperr.Validation("payment reference could not be verified")
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Organization{},
		&model.Staff{},
		&model.Subscription{},
		&model.PaymentEvent{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, verifier PaymentVerifier) *Service {
	t.Helper()
	svc := NewService(db, verifier, zap.NewNop(), 14)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func seedTenant(t *testing.T, db *gorm.DB, plan string, trialActive bool) *model.Organization {
	t.Helper()
	org := &model.Organization{
		Name:       "Acme",
		Subdomain:  "acme",
		AdminEmail: "admin@acme.test",
		Status:     model.OrgStatusTrial,
		Plan:       plan,
	}
	require.NoError(t, db.Create(org).Error)
	sub := &model.Subscription{
		TenantID:      org.ID,
		Plan:          plan,
		Status:        model.SubStatusActive,
		IsTrialActive: trialActive,
	}
	require.NoError(t, db.Create(sub).Error)
	return org
}

func loadSub(t *testing.T, db *gorm.DB, tenantID string) *model.Subscription {
	t.Helper()
	var sub model.Subscription
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&sub).Error)
	return &sub
}

func professionalPayment(tenantID, reference string) *VerifiedPayment {
	return &VerifiedPayment{
		Reference:  reference,
		Status:     "success",
		AmountKobo: PlanAmountKobo(model.PlanProfessional),
		Plan:       model.PlanProfessional,
		TenantID:   tenantID,
	}
}

func TestStartTrial(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &stubVerifier{})
	org := &model.Organization{
		Name:       "Acme",
		Subdomain:  "acme",
		AdminEmail: "admin@acme.test",
		Status:     model.OrgStatusTrial,
		Plan:       model.PlanStarter,
	}
	require.NoError(t, db.Create(org).Error)

	sub, err := svc.StartTrial(db, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanStarter, sub.Plan)
	assert.Equal(t, model.SubStatusActive, sub.Status)
	assert.True(t, sub.IsTrialActive)
	require.NotNil(t, sub.TrialEndDate)
	assert.Equal(t, svc.now().AddDate(0, 0, 14), *sub.TrialEndDate)
}

func TestApplyPaymentUpgrades(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanStarter, true)
	svc := newTestService(t, db, &stubVerifier{payments: map[string]*VerifiedPayment{
		"ref-1": professionalPayment(org.ID, "ref-1"),
	}})

	require.NoError(t, svc.ApplyPayment(context.Background(), org.ID, "ref-1", model.PlanProfessional))

	sub := loadSub(t, db, org.ID)
	assert.Equal(t, model.PlanProfessional, sub.Plan)
	assert.Equal(t, model.SubStatusActive, sub.Status)
	assert.False(t, sub.IsTrialActive)
	require.NotNil(t, sub.NextPaymentDate)

	var updatedOrg model.Organization
	require.NoError(t, db.Where("id = ?", org.ID).First(&updatedOrg).Error)
	assert.Equal(t, model.PlanProfessional, updatedOrg.Plan)
	assert.Equal(t, model.OrgStatusActive, updatedOrg.Status)

	var events int64
	require.NoError(t, db.Model(&model.PaymentEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestApplyPaymentDuplicateReferenceIsNoOp(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanStarter, true)
	svc := newTestService(t, db, &stubVerifier{payments: map[string]*VerifiedPayment{
		"ref-1": professionalPayment(org.ID, "ref-1"),
	}})

	require.NoError(t, svc.ApplyPayment(context.Background(), org.ID, "ref-1", model.PlanProfessional))

	// Tamper with the applied state; a redelivery of the same reference
	// must not mutate anything again.
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("tenant_id = ?", org.ID).
		Update("plan", model.PlanStarter).Error)

	require.NoError(t, svc.ApplyPayment(context.Background(), org.ID, "ref-1", model.PlanProfessional))

	assert.Equal(t, model.PlanStarter, loadSub(t, db, org.ID).Plan)
	var events int64
	require.NoError(t, db.Model(&model.PaymentEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestApplyPaymentRejectsForeignTenant(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanStarter, true)
	svc := newTestService(t, db, &stubVerifier{payments: map[string]*VerifiedPayment{
		"ref-1": professionalPayment("someone-else", "ref-1"),
	}})

	err := svc.ApplyPayment(context.Background(), org.ID, "ref-1", model.PlanProfessional)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
	assert.Equal(t, model.PlanStarter, loadSub(t, db, org.ID).Plan)
}

func TestApplyWebhookChargeIdempotent(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanStarter, true)
	svc := newTestService(t, db, &stubVerifier{})

	charge := &ChargeData{
		Reference: "wh-ref-1",
		Status:    "success",
		Amount:    PlanAmountKobo(model.PlanEnterprise),
	}
	charge.Metadata.TenantID = org.ID
	charge.Metadata.Plan = model.PlanEnterprise

	require.NoError(t, svc.ApplyWebhookCharge(context.Background(), charge))
	assert.Equal(t, model.PlanEnterprise, loadSub(t, db, org.ID).Plan)

	// Redelivery with the same reference is acknowledged without a second
	// mutation.
	require.NoError(t, svc.ApplyWebhookCharge(context.Background(), charge))
	var events int64
	require.NoError(t, db.Model(&model.PaymentEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestApplyWebhookChargeRejectsMissingTenant(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &stubVerifier{})

	charge := &ChargeData{
		Reference: "wh-ref-2",
		Status:    "success",
		Amount:    PlanAmountKobo(model.PlanProfessional),
	}
	charge.Metadata.Plan = model.PlanProfessional

	err := svc.ApplyWebhookCharge(context.Background(), charge)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRunSweepExpiresTrials(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanStarter, true)
	svc := newTestService(t, db, &stubVerifier{})

	lapsed := svc.now().Add(-24 * time.Hour)
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("tenant_id = ?", org.ID).
		Update("trial_end_date", lapsed).Error)

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TrialsExpired)

	sub := loadSub(t, db, org.ID)
	assert.False(t, sub.IsTrialActive)
	// expiry flips the flag only; the subscription stays active
	assert.Equal(t, model.SubStatusActive, sub.Status)

	res, err = svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TrialsExpired)
}

func TestRunSweepMarksPastDue(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanProfessional, false)
	svc := newTestService(t, db, &stubVerifier{})

	overdue := svc.now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("tenant_id = ?", org.ID).
		Update("next_payment_date", overdue).Error)

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MarkedPastDue)
	assert.Equal(t, model.SubStatusPastDue, loadSub(t, db, org.ID).Status)
}

func TestRunSweepAppliesMaturedDowngrade(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanProfessional, false)
	svc := newTestService(t, db, &stubVerifier{})

	matured := svc.now().Add(-1 * time.Hour)
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("tenant_id = ?", org.ID).
		Updates(map[string]interface{}{
			"scheduled_plan": model.PlanStarter,
			"scheduled_at":   matured,
		}).Error)

	res, err := svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DowngradesApplied)

	sub := loadSub(t, db, org.ID)
	assert.Equal(t, model.PlanStarter, sub.Plan)
	assert.Empty(t, sub.ScheduledPlan)

	var updatedOrg model.Organization
	require.NoError(t, db.Where("id = ?", org.ID).First(&updatedOrg).Error)
	assert.Equal(t, model.PlanStarter, updatedOrg.Plan)

	res, err = svc.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.DowngradesApplied)
}

func TestRequestDowngradeBlockedByHeadcount(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanEnterprise, false)
	svc := newTestService(t, db, &stubVerifier{})

	for i := 0; i < 11; i++ {
		require.NoError(t, db.Create(&model.Staff{
			TenantID:  org.ID,
			StaffCode: "STAFF" + string(rune('A'+i)),
			Name:      "Staff",
			Active:    true,
		}).Error)
	}

	err := svc.RequestDowngrade(context.Background(), org.ID, model.PlanStarter)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Empty(t, loadSub(t, db, org.ID).ScheduledPlan)
}

func TestRequestDowngradeSchedulesAtPeriodEnd(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanEnterprise, false)
	svc := newTestService(t, db, &stubVerifier{})

	periodEnd := svc.now().Add(10 * 24 * time.Hour)
	require.NoError(t, db.Model(&model.Subscription{}).
		Where("tenant_id = ?", org.ID).
		Update("next_payment_date", periodEnd).Error)

	require.NoError(t, svc.RequestDowngrade(context.Background(), org.ID, model.PlanProfessional))

	sub := loadSub(t, db, org.ID)
	assert.Equal(t, model.PlanProfessional, sub.ScheduledPlan)
	require.NotNil(t, sub.ScheduledAt)
	assert.WithinDuration(t, periodEnd, *sub.ScheduledAt, time.Second)
	// the plan itself does not change until the sweep applies it
	assert.Equal(t, model.PlanEnterprise, sub.Plan)
}

func TestCancelTwiceIsConflict(t *testing.T) {
	db := openTestDB(t)
	org := seedTenant(t, db, model.PlanProfessional, false)
	svc := newTestService(t, db, &stubVerifier{})

	require.NoError(t, svc.Cancel(context.Background(), org.ID))

	sub := loadSub(t, db, org.ID)
	assert.Equal(t, model.SubStatusCancelled, sub.Status)
	require.NotNil(t, sub.SubscriptionEndDate)

	err := svc.Cancel(context.Background(), org.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}
