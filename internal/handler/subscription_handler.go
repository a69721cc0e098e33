package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/billing"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

// GetSubscription returns the tenant's subscription together with the
// plan's feature limits.
func GetSubscription(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}
	sub, err := loadSubscription(c, auth.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

// ConfirmUpgrade applies a client-initiated upgrade after server-side
// verification of the payment reference. Replayed references are
// harmless: the upgrade applies exactly once.
func ConfirmUpgrade(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}

	var req struct {
		Reference string `json:"reference"`
		Plan      string `json:"plan"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Reference == "" || req.Plan == "" {
		return apperr.Validation("reference and plan are required")
	}

	if err := deps.Billing.ApplyPayment(c.Request().Context(), auth.TenantID, req.Reference, req.Plan); err != nil {
		return err
	}

	sub, err := loadSubscription(c, auth.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":      "subscription updated",
		"subscription": sub,
	})
}

// RequestDowngrade schedules a downgrade for the end of the billing period.
func RequestDowngrade(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}

	var req struct {
		TargetPlan string `json:"target_plan"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.TargetPlan == "" {
		return apperr.Validation("target_plan is required")
	}

	if err := deps.Billing.RequestDowngrade(c.Request().Context(), auth.TenantID, req.TargetPlan); err != nil {
		return err
	}

	sub, err := loadSubscription(c, auth.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":      "downgrade scheduled",
		"subscription": sub,
	})
}

// CancelSubscription cancels the tenant's subscription. The current period
// stays usable until it runs out.
func CancelSubscription(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}
	if err := deps.Billing.Cancel(c.Request().Context(), auth.TenantID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "subscription cancelled"})
}

// PaystackWebhook receives asynchronous payment notifications. The
// signature is verified against the raw body before anything is parsed;
// unsigned or badly signed events are dropped.
func PaystackWebhook(c echo.Context) error {
	log := logger.FromContext(c)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Validation("could not read request body")
	}

	signature := c.Request().Header.Get("x-paystack-signature")
	if !billing.VerifyWebhookSignature(body, signature, deps.Cfg.Billing.PaystackSecretKey) {
		log.Warn("webhook signature verification failed")
		prometheus.WebhookCounter.WithLabelValues("unknown", "rejected").Inc()
		return apperr.Unauthenticated("invalid webhook signature")
	}

	var event billing.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apperr.Validation("invalid webhook payload")
	}

	switch event.Event {
	case "charge.success":
		var charge billing.ChargeData
		if err := json.Unmarshal(event.Data, &charge); err != nil {
			return apperr.Validation("invalid charge payload")
		}
		if err := deps.Billing.ApplyWebhookCharge(c.Request().Context(), &charge); err != nil {
			log.Error("webhook charge processing failed",
				zap.String("reference", charge.Reference), zap.Error(err))
			return err
		}
	case "subscription.disable":
		var charge billing.ChargeData
		if err := json.Unmarshal(event.Data, &charge); err != nil {
			return apperr.Validation("invalid event payload")
		}
		if charge.Metadata.TenantID != "" {
			if err := deps.Billing.Cancel(c.Request().Context(), charge.Metadata.TenantID); err != nil &&
				!apperr.IsKind(err, apperr.KindConflict) {
				return err
			}
		}
	default:
		log.Debug("ignoring webhook event", zap.String("event", event.Event))
		prometheus.WebhookCounter.WithLabelValues(event.Event, "ignored").Inc()
	}

	// Paystack retries anything that is not a 200.
	return c.JSON(http.StatusOK, echo.Map{"status": "received"})
}

// PlanCatalog lists the purchasable plans and their prices.
func PlanCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"plans": []echo.Map{
			{"plan": model.PlanStarter, "amount_kobo": int64(0), "staff_limit": 10},
			{"plan": model.PlanProfessional, "amount_kobo": billing.PlanAmountKobo(model.PlanProfessional), "staff_limit": 100},
			{"plan": model.PlanEnterprise, "amount_kobo": billing.PlanAmountKobo(model.PlanEnterprise), "staff_limit": -1},
		},
	})
}
