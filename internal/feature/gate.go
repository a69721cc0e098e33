// Package feature answers "can this tenant, on this subscription, do this?"
// for both boolean capabilities and numeric limits.
package feature

import (
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

// Feature names. This is a closed set; gate checks on anything else return
// false outside development mode.
const (
	AdvancedAnalytics = "advanced_analytics"
	DataExport        = "data_export"
	PhotoVerification = "photo_verification"
	BiometricCheckin  = "biometric_checkin"
	EmailReports      = "email_reports"
	APIAccess         = "api_access"
)

// Unlimited is the sentinel for plans without a staff headcount cap.
const Unlimited = -1

var planFeatures = map[string]map[string]bool{
	model.PlanStarter: {},
	model.PlanProfessional: {
		AdvancedAnalytics: true,
		DataExport:        true,
		PhotoVerification: true,
		EmailReports:      true,
	},
	model.PlanEnterprise: {
		AdvancedAnalytics: true,
		DataExport:        true,
		PhotoVerification: true,
		BiometricCheckin:  true,
		EmailReports:      true,
		APIAccess:         true,
	},
}

var staffLimits = map[string]int{
	model.PlanStarter:      10,
	model.PlanProfessional: 100,
	model.PlanEnterprise:   Unlimited,
}

// normalizePlan maps unknown or missing tiers to starter instead of failing
// the request. Availability over strictness; every fallback is logged and
// counted because it masks a data-integrity bug upstream.
func normalizePlan(plan string) string {
	if _, ok := planFeatures[plan]; ok {
		return plan
	}
	logger.GetLogger().Warn("unknown plan tier, defaulting to starter", zap.String("plan", plan))
	prometheus.PlanFallbackCounter.Inc()
	return model.PlanStarter
}

// HasAccess reports whether the plan includes the feature. Development mode
// unconditionally unlocks everything; callers gate its use on an
// environment check. An active trial grants starter tenants full access.
func HasAccess(plan, feature string, trialActive, devMode bool) bool {
	if devMode {
		return true
	}
	if trialActive {
		return true
	}
	return planFeatures[normalizePlan(plan)][feature]
}

// StaffLimit returns the plan's maximum staff headcount, Unlimited for
// plans without a cap.
func StaffLimit(plan string) int {
	return staffLimits[normalizePlan(plan)]
}

// CanAddStaff reports whether a tenant may add one more staff member. A
// starter tenant whose trial has lapsed is hard-blocked regardless of
// current count: that is policy, not arithmetic.
func CanAddStaff(plan string, currentCount int, trialActive, devMode bool) bool {
	if devMode {
		return true
	}
	plan = normalizePlan(plan)
	if plan == model.PlanStarter && !trialActive {
		return false
	}
	limit := staffLimits[plan]
	if limit == Unlimited {
		return true
	}
	return currentCount < limit
}
