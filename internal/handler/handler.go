// Package handler holds the HTTP surface. Handlers bind requests, call
// services and return typed errors; translation into JSON error bodies
// happens in exactly one place, the error handler below.
package handler

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/attendance"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/billing"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/biometric"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/feature"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/mailer"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/middleware"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/config"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

// Deps holds the services handlers dispatch to.
type Deps struct {
	Cfg        *config.Config
	Billing    *billing.Service
	Attendance *attendance.Service
	Biometric  *biometric.Service
	Mailer     mailer.Sender
}

var deps Deps

// Init wires the handler package with its dependencies.
func Init(d Deps) {
	deps = d
}

func devMode() bool {
	return deps.Cfg != nil && deps.Cfg.Server.IsDevelopment()
}

// HTTPErrorHandler is the single place typed errors become JSON bodies.
// Internal causes are logged server-side and never leak to the client.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		_ = c.JSON(httpErr.Code, echo.Map{"error": httpErr.Message})
		return
	}

	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		logger.FromContext(c).Error("request failed",
			zap.String("path", c.Request().URL.Path),
			zap.Error(e.Err))
	}
	_ = c.JSON(e.Status, echo.Map{
		"error": e.Message,
		"code":  string(e.Kind),
	})
}

// requireAuth returns the verified auth context or an error.
func requireAuth(c echo.Context) (*middleware.AuthContext, error) {
	auth, ok := middleware.GetAuth(c)
	if !ok {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return auth, nil
}

// tenantScope builds the tenant-scoped accessor for the caller's tenant.
// An explicit tenant_id query parameter lets super admins act on another
// tenant for support; anyone else requesting a foreign tenant hard-fails.
func tenantScope(c echo.Context) (*tenantdb.Scope, *middleware.AuthContext, error) {
	auth, err := requireAuth(c)
	if err != nil {
		return nil, nil, err
	}
	tenantID := auth.TenantID
	if requested := c.QueryParam("tenant_id"); requested != "" {
		if err := middleware.VerifyTenantAccess(auth, requested); err != nil {
			return nil, nil, err
		}
		tenantID = requested
	}
	scope, err := tenantdb.New(database.GetDB().WithContext(c.Request().Context()), tenantID)
	if err != nil {
		return nil, nil, err
	}
	return scope, auth, nil
}

// orgByID fetches an organization by its identifier.
func orgByID(c echo.Context, tenantID string, dest *model.Organization) error {
	result := database.GetDB().WithContext(c.Request().Context()).
		Where("id = ?", tenantID).First(dest)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apperr.NotFound("organization")
		}
		return apperr.Internal(result.Error)
	}
	return nil
}

// loadSubscription fetches the tenant's subscription record.
func loadSubscription(c echo.Context, tenantID string) (*model.Subscription, error) {
	var sub model.Subscription
	result := database.GetDB().WithContext(c.Request().Context()).
		Where("tenant_id = ?", tenantID).First(&sub)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("subscription")
		}
		return nil, apperr.Internal(result.Error)
	}
	return &sub, nil
}

// gateFeature enforces the plan gate for a named capability. It runs
// before any tenant-scoped data access for the gated operation; denial is
// a feature_locked response, never a bare 403.
func gateFeature(c echo.Context, tenantID, featureName string) error {
	sub, err := loadSubscription(c, tenantID)
	if err != nil {
		return err
	}
	if !feature.HasAccess(sub.Plan, featureName, sub.IsTrialActive, devMode()) {
		prometheus.RecordFeatureDenial(sub.Plan, featureName)
		return apperr.FeatureLocked(featureName)
	}
	return nil
}
