package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/attendance"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/feature"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

// CreateStaff adds a staff member. The headcount gate runs before any
// tenant-scoped write.
func CreateStaff(c echo.Context) error {
	log := logger.FromContext(c)

	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}

	var req struct {
		StaffCode  string `json:"staff_code"`
		Name       string `json:"name"`
		Department string `json:"department"`
		Position   string `json:"position"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	req.StaffCode = strings.TrimSpace(req.StaffCode)
	if req.StaffCode == "" || req.Name == "" {
		return apperr.Validation("staff_code and name are required")
	}

	sub, err := loadSubscription(c, scope.TenantID())
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	current, err := scope.Count(&model.Staff{}, tenantdb.Filter{"active": true})
	if err != nil {
		return err
	}
	if !feature.CanAddStaff(sub.Plan, int(current), sub.IsTrialActive, devMode()) {
		prometheus.RecordFeatureDenial(sub.Plan, "staff_limit")
		return apperr.FeatureLocked("additional staff on your current plan")
	}

	var org model.Organization
	// org-level max_staff setting can be stricter than the plan
	if err := orgByID(c, scope.TenantID(), &org); err == nil {
		if org.Settings.MaxStaff > 0 && int(current) >= org.Settings.MaxStaff {
			return apperr.Validation("organization staff limit reached")
		}
	}

	exists, err := scope.Count(&model.Staff{}, tenantdb.Filter{"staff_code": req.StaffCode})
	if err != nil {
		return err
	}
	if exists > 0 {
		return apperr.Conflict("staff code already exists")
	}

	staff := &model.Staff{
		StaffCode:  req.StaffCode,
		Name:       req.Name,
		Department: req.Department,
		Position:   req.Position,
		Active:     true,
		QRPayload:  attendance.EncodeQRPayload(scope.TenantID(), req.StaffCode),
	}
	if err := scope.Insert(staff); err != nil {
		return err
	}

	log.Info("staff created",
		zap.String("tenant_id", scope.TenantID()),
		zap.String("staff_code", staff.StaffCode))
	return c.JSON(http.StatusCreated, staff)
}

// ListStaff returns the tenant's staff, optionally filtered by department
// or active flag.
func ListStaff(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}

	filter := tenantdb.Filter{}
	if dept := c.QueryParam("department"); dept != "" {
		filter["department"] = dept
	}
	if active := c.QueryParam("active"); active != "" {
		filter["active"] = active == "true"
	}

	var staff []model.Staff
	if err := scope.Find(&staff, filter); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"staff": staff, "count": len(staff)})
}

// GetStaff returns one staff member.
func GetStaff(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}

	var staff model.Staff
	if err := scope.FindOne(&staff, tenantdb.Filter{"id": c.Param("id")}); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.NotFound("staff member")
		}
		return err
	}
	return c.JSON(http.StatusOK, staff)
}

// UpdateStaff edits mutable staff fields. The tenant column is immutable
// by construction; the accessor rejects any attempt to touch it.
func UpdateStaff(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}

	var req struct {
		Name       *string `json:"name"`
		Department *string `json:"department"`
		Position   *string `json:"position"`
		Active     *bool   `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	updates := tenantdb.Filter{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Department != nil {
		updates["department"] = *req.Department
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return apperr.Validation("no fields to update")
	}

	rows, err := scope.UpdateAll(&model.Staff{}, tenantdb.Filter{"id": c.Param("id")}, updates)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NotFound("staff member")
	}

	var staff model.Staff
	if err := scope.FindOne(&staff, tenantdb.Filter{"id": c.Param("id")}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, staff)
}

// DeactivateStaff deactivates a staff member. Staff are never hard-deleted
// from the dashboard.
func DeactivateStaff(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}

	rows, err := scope.UpdateAll(&model.Staff{},
		tenantdb.Filter{"id": c.Param("id")},
		tenantdb.Filter{"active": false})
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NotFound("staff member")
	}

	// Deactivation revokes enrolled authenticators so the badge cannot
	// keep checking in biometrically.
	revoked, err := scope.Delete(&model.BiometricCredential{},
		tenantdb.Filter{"staff_id": c.Param("id")})
	if err != nil {
		return err
	}
	if revoked > 0 {
		logger.FromContext(c).Info("biometric credentials revoked",
			zap.String("staff_id", c.Param("id")),
			zap.Int64("count", revoked))
	}

	logger.FromContext(c).Info("staff deactivated",
		zap.String("tenant_id", scope.TenantID()),
		zap.String("staff_id", c.Param("id")))
	return c.JSON(http.StatusOK, echo.Map{"message": "staff deactivated"})
}

// RegenerateStaffQR issues a fresh QR payload for a staff badge.
func RegenerateStaffQR(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}

	var staff model.Staff
	if err := scope.FindOne(&staff, tenantdb.Filter{"id": c.Param("id")}); err != nil {
		return err
	}

	payload := attendance.EncodeQRPayload(scope.TenantID(), staff.StaffCode)
	if _, err := scope.UpdateAll(&model.Staff{},
		tenantdb.Filter{"id": staff.ID},
		tenantdb.Filter{"qr_payload": payload}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"qr_payload": payload})
}
