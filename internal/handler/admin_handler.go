package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
)

// audit appends one back-office action to the audit trail. Audit writes are
// best-effort: a failed insert is logged, never surfaced.
func audit(c echo.Context, action string, metadata map[string]interface{}) {
	auth, err := requireAuth(c)
	if err != nil {
		return
	}
	meta, _ := json.Marshal(metadata)
	entry := &model.AuditLog{
		ActorID:    auth.UserID,
		ActorEmail: auth.Email,
		Action:     action,
		Metadata:   string(meta),
		IP:         c.RealIP(),
	}
	if err := database.GetDB().Create(entry).Error; err != nil {
		logger.FromContext(c).Error("audit log write failed",
			zap.String("action", action), zap.Error(err))
	}
}

func pagination(c echo.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// ListOrganizations lists tenants across the platform, optionally filtered
// by status or plan.
func ListOrganizations(c echo.Context) error {
	db := database.GetDB().WithContext(c.Request().Context()).Model(&model.Organization{})
	if status := c.QueryParam("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if plan := c.QueryParam("plan"); plan != "" {
		db = db.Where("plan = ?", plan)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return apperr.Internal(err)
	}

	limit, offset := pagination(c)
	var orgs []model.Organization
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&orgs).Error; err != nil {
		return apperr.Internal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total":         total,
		"organizations": orgs,
	})
}

// setOrgStatus flips one organization's status. The conditional update
// makes a repeated request a conflict, not a silent rewrite.
func setOrgStatus(c echo.Context, to, action string) error {
	orgID := c.Param("id")
	if orgID == "" {
		return apperr.Validation("organization id is required")
	}

	result := database.GetDB().WithContext(c.Request().Context()).
		Model(&model.Organization{}).
		Where("id = ? AND status <> ?", orgID, to).
		Update("status", to)
	if result.Error != nil {
		return apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		var org model.Organization
		if err := database.GetDB().Where("id = ?", orgID).First(&org).Error; err != nil {
			return apperr.NotFound("organization")
		}
		return apperr.Conflict("organization is already " + org.Status)
	}

	audit(c, action, map[string]interface{}{"organization_id": orgID})
	logger.FromContext(c).Info("organization status changed",
		zap.String("organization_id", orgID),
		zap.String("status", to))
	return c.JSON(http.StatusOK, echo.Map{"message": "organization " + to})
}

// SuspendOrganization blocks a tenant. Suspended tenants cannot log in or
// check in until reactivated.
func SuspendOrganization(c echo.Context) error {
	return setOrgStatus(c, model.OrgStatusSuspended, "organization.suspend")
}

// ReactivateOrganization lifts a suspension.
func ReactivateOrganization(c echo.Context) error {
	return setOrgStatus(c, model.OrgStatusActive, "organization.reactivate")
}

// GetOrgSubscription returns any tenant's subscription, for support cases.
func GetOrgSubscription(c echo.Context) error {
	orgID := c.Param("id")
	if orgID == "" {
		return apperr.Validation("organization id is required")
	}
	sub, err := loadSubscription(c, orgID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

// TriggerSweep runs the billing maintenance pass on demand. The scheduled
// sweep keeps running regardless; this exists for support and testing.
func TriggerSweep(c echo.Context) error {
	res, err := deps.Billing.RunSweep(c.Request().Context())
	if err != nil {
		return err
	}
	audit(c, "billing.sweep", map[string]interface{}{
		"trials_expired":     res.TrialsExpired,
		"marked_past_due":    res.MarkedPastDue,
		"downgrades_applied": res.DowngradesApplied,
	})
	return c.JSON(http.StatusOK, echo.Map{
		"trials_expired":     res.TrialsExpired,
		"marked_past_due":    res.MarkedPastDue,
		"downgrades_applied": res.DowngradesApplied,
	})
}

// ListAuditLogs pages through the back-office audit trail, newest first.
func ListAuditLogs(c echo.Context) error {
	db := database.GetDB().WithContext(c.Request().Context()).Model(&model.AuditLog{})
	if action := c.QueryParam("action"); action != "" {
		db = db.Where("action = ?", action)
	}
	if actor := c.QueryParam("actor_id"); actor != "" {
		db = db.Where("actor_id = ?", actor)
	}

	limit, offset := pagination(c)
	var logs []model.AuditLog
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"audit_logs": logs})
}
