package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/attendance"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
)

var knownMethods = map[string]bool{
	model.MethodQR:        true,
	model.MethodManual:    true,
	model.MethodBiometric: true,
	model.MethodPhoto:     true,
}

// GetSettings returns the organization profile and attendance settings.
func GetSettings(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}
	var org model.Organization
	if err := orgByID(c, auth.TenantID, &org); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"name":      org.Name,
		"subdomain": org.Subdomain,
		"status":    org.Status,
		"plan":      org.Plan,
		"settings":  org.Settings,
	})
}

type updateSettingsRequest struct {
	Name               *string `json:"name"`
	LatenessTime       *string `json:"lateness_time"`
	EarlyDepartureTime *string `json:"early_departure_time"`
	WorkStartTime      *string `json:"work_start_time"`
	WorkEndTime        *string `json:"work_end_time"`
	Timezone           *string `json:"timezone"`
	CheckinPasscode    *string `json:"checkin_passcode"`
	PhotoRequired      *bool   `json:"photo_required"`
	EnabledMethods     *string `json:"enabled_methods"`
	MaxStaff           *int    `json:"max_staff"`
}

// UpdateSettings applies a partial update to the organization's settings.
// Clock fields are validated as HH:MM before anything is written.
func UpdateSettings(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}

	var req updateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return apperr.Validation("name cannot be empty")
		}
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	for col, val := range map[string]*string{
		"settings_lateness_time":        req.LatenessTime,
		"settings_early_departure_time": req.EarlyDepartureTime,
		"settings_work_start_time":      req.WorkStartTime,
		"settings_work_end_time":        req.WorkEndTime,
	} {
		if val == nil {
			continue
		}
		if !attendance.ValidClock(*val) {
			return apperr.Validation("time fields must be in HH:MM format")
		}
		updates[col] = *val
	}
	if req.Timezone != nil {
		if _, err := attendance.LoadLocation(*req.Timezone); err != nil {
			return apperr.Validation("unknown timezone")
		}
		updates["settings_timezone"] = *req.Timezone
	}
	if req.CheckinPasscode != nil {
		updates["settings_checkin_passcode"] = *req.CheckinPasscode
	}
	if req.PhotoRequired != nil {
		updates["settings_photo_required"] = *req.PhotoRequired
	}
	if req.EnabledMethods != nil {
		// Empty clears the restriction: every method is accepted again.
		if strings.TrimSpace(*req.EnabledMethods) != "" {
			for _, m := range strings.Split(*req.EnabledMethods, ",") {
				if !knownMethods[strings.TrimSpace(m)] {
					return apperr.Validation("unknown check-in method: " + strings.TrimSpace(m))
				}
			}
		}
		updates["settings_enabled_methods"] = strings.TrimSpace(*req.EnabledMethods)
	}
	if req.MaxStaff != nil {
		if *req.MaxStaff < 0 {
			return apperr.Validation("max_staff cannot be negative")
		}
		updates["settings_max_staff"] = *req.MaxStaff
	}

	if len(updates) == 0 {
		return apperr.Validation("no settings to update")
	}

	result := database.GetDB().WithContext(c.Request().Context()).
		Model(&model.Organization{}).
		Where("id = ?", auth.TenantID).
		Updates(updates)
	if result.Error != nil {
		return apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("organization")
	}

	logger.FromContext(c).Info("organization settings updated",
		zap.String("tenant_id", auth.TenantID),
		zap.Int("fields", len(updates)))

	var org model.Organization
	if err := orgByID(c, auth.TenantID, &org); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":  "settings updated",
		"settings": org.Settings,
	})
}
