package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/attendance"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/feature"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

// RegisterBiometricCredential enrolls a staff member's authenticator.
// Requires the biometric check-in feature.
func RegisterBiometricCredential(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}
	if err := gateFeature(c, scope.TenantID(), feature.BiometricCheckin); err != nil {
		return err
	}

	var req struct {
		StaffID      string `json:"staff_id"`
		CredentialID string `json:"credential_id"`
		PublicKey    string `json:"public_key"` // base64
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		return apperr.Validation("public_key must be base64 encoded")
	}

	cred, err := deps.Biometric.RegisterCredential(scope, req.StaffID, req.CredentialID, publicKey)
	if err != nil {
		return err
	}

	logger.FromContext(c).Info("biometric credential registered",
		zap.String("tenant_id", scope.TenantID()),
		zap.String("staff_id", req.StaffID))
	return c.JSON(http.StatusCreated, echo.Map{
		"message":       "credential registered",
		"credential_id": cred.CredentialID,
	})
}

// BiometricCheckIn is the public kiosk flow: verify the assertion against
// the stored credential, then record the check-in under the biometric
// method. The tenant comes from the kiosk payload, not a session.
func BiometricCheckIn(c echo.Context) error {
	var req struct {
		TenantID     string `json:"tenant_id"`
		CredentialID string `json:"credential_id"`
		Payload      string `json:"payload"` // base64 assertion
		Photo        string `json:"photo,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.TenantID == "" || req.CredentialID == "" || req.Payload == "" {
		return apperr.Validation("tenant_id, credential_id and payload are required")
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return apperr.Validation("payload must be base64 encoded")
	}

	if err := gateFeature(c, req.TenantID, feature.BiometricCheckin); err != nil {
		return err
	}

	ctx := c.Request().Context()
	scope, err := tenantdb.New(database.GetDB().WithContext(ctx), req.TenantID)
	if err != nil {
		return err
	}

	cred, err := deps.Biometric.VerifyCheckin(ctx, scope, req.CredentialID, payload)
	if err != nil {
		prometheus.CheckInCounter.WithLabelValues(model.MethodBiometric, "rejected").Inc()
		return err
	}

	var staff model.Staff
	if err := scope.FindOne(&staff, tenantdb.Filter{"id": cred.StaffID}); err != nil {
		return err
	}

	record, err := deps.Attendance.CheckIn(ctx, &attendance.Request{
		TenantID:  req.TenantID,
		StaffCode: staff.StaffCode,
		Method:    model.MethodBiometric,
		Photo:     req.Photo,
	})
	if err != nil {
		result := "rejected"
		if apperr.IsKind(err, apperr.KindConflict) {
			result = "duplicate"
		}
		prometheus.CheckInCounter.WithLabelValues(model.MethodBiometric, result).Inc()
		return err
	}

	prometheus.CheckInCounter.WithLabelValues(model.MethodBiometric, "ok").Inc()
	return c.JSON(http.StatusCreated, record)
}
