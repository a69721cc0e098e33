package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/feature"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
)

const apiKeyHeader = "X-API-Key"

func newAPIKey() string {
	return "tw_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RotateAPIKey issues a fresh integration key for the organization,
// replacing any previous one. The key is returned exactly once; it is
// never readable afterwards.
func RotateAPIKey(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}
	if err := gateFeature(c, auth.TenantID, feature.APIAccess); err != nil {
		return err
	}

	key := newAPIKey()
	result := database.GetDB().WithContext(c.Request().Context()).
		Model(&model.Organization{}).
		Where("id = ?", auth.TenantID).
		Update("settings_api_key", key)
	if result.Error != nil {
		return apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("organization")
	}

	logger.FromContext(c).Info("integration api key rotated",
		zap.String("tenant_id", auth.TenantID))
	return c.JSON(http.StatusOK, echo.Map{"api_key": key})
}

// orgByAPIKey resolves the organization owning an integration key.
func orgByAPIKey(c echo.Context, key string) (*model.Organization, error) {
	if key == "" {
		return nil, apperr.Unauthenticated("api key required")
	}
	var org model.Organization
	result := database.GetDB().WithContext(c.Request().Context()).
		Where("settings_api_key = ?", key).First(&org)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthenticated("invalid api key")
		}
		return nil, apperr.Internal(result.Error)
	}
	if org.Status == model.OrgStatusSuspended {
		return nil, apperr.Forbidden("organization is suspended")
	}
	return &org, nil
}

// IntegrationAttendance is the machine-facing attendance feed for external
// systems. Authentication is by integration key; the plan gate is
// re-checked on every request so a downgraded tenant loses access without
// a key rotation.
func IntegrationAttendance(c echo.Context) error {
	org, err := orgByAPIKey(c, c.Request().Header.Get(apiKeyHeader))
	if err != nil {
		return err
	}
	if err := gateFeature(c, org.ID, feature.APIAccess); err != nil {
		return err
	}

	scope, err := tenantdb.New(database.GetDB().WithContext(c.Request().Context()), org.ID)
	if err != nil {
		return err
	}

	from, to := dateRange(c)
	q, err := scope.Query(&model.AttendanceLog{}, nil)
	if err != nil {
		return err
	}
	var records []model.AttendanceLog
	if err := q.Where("work_date BETWEEN ? AND ?", from, to).
		Order("work_date, staff_code").
		Find(&records).Error; err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"from":       from,
		"to":         to,
		"attendance": records,
		"count":      len(records),
	})
}
