package handler

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/jwtutil"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/mailer"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Register creates an organization, its admin user and the trial
// subscription in one transaction.
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		OrgName   string `json:"org_name"`
		Subdomain string `json:"subdomain"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		AdminName string `json:"admin_name"`
		Timezone  string `json:"timezone"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return apperr.Validation("invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))

	if req.OrgName == "" || req.Email == "" || req.Password == "" || req.Subdomain == "" {
		prometheus.RecordAuthError("incomplete_registration")
		return apperr.Validation("org_name, subdomain, email and password are required")
	}
	if !subdomainPattern.MatchString(req.Subdomain) {
		return apperr.Validation("subdomain may contain only lowercase letters, digits and hyphens")
	}
	if len(req.Password) < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}

	db := database.GetDB().WithContext(c.Request().Context())

	var count int64
	if err := db.Model(&model.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return apperr.Internal(err)
	}
	if count > 0 {
		prometheus.RecordAuthError("email_taken")
		return apperr.Conflict("email is already registered")
	}
	if err := db.Model(&model.Organization{}).Where("subdomain = ?", req.Subdomain).Count(&count).Error; err != nil {
		return apperr.Internal(err)
	}
	if count > 0 {
		prometheus.RecordAuthError("subdomain_taken")
		return apperr.Conflict("subdomain is already taken")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal(err)
	}

	org := model.Organization{
		Name:       req.OrgName,
		Subdomain:  req.Subdomain,
		AdminEmail: req.Email,
		Status:     model.OrgStatusTrial,
		Plan:       model.PlanStarter,
	}
	if req.Timezone != "" {
		org.Settings.Timezone = req.Timezone
	}
	user := model.User{
		Email:    req.Email,
		Password: string(hashed),
		Name:     req.AdminName,
		Role:     model.RoleOrgAdmin,
		Active:   true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var sub *model.Subscription
	err = db.Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&org); result.Error != nil {
			return result.Error
		}
		user.TenantID = org.ID
		if result := tx.Create(&user); result.Error != nil {
			return result.Error
		}
		var trialErr error
		sub, trialErr = deps.Billing.StartTrial(tx, org.ID)
		return trialErr
	})
	if err != nil {
		// The pre-checks above race with concurrent registrations; the
		// unique indexes are the real arbiter.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			prometheus.RecordAuthError("duplicate_registration")
			return apperr.Conflict("email or subdomain is already registered")
		}
		log.Error("registration failed", zap.Error(err))
		return apperr.Internal(err)
	}

	token, err := jwtutil.GenerateToken(user.ID, org.ID, user.Role, user.Email)
	if err != nil {
		return apperr.Internal(err)
	}

	// Welcome email is best-effort; registration never waits on it.
	mailer.SendAsync(deps.Mailer, log, user.Email,
		"Welcome to TimeWise",
		fmt.Sprintf("Your organization %s is ready. Your trial ends on %s.",
			org.Name, sub.TrialEndDate.Format("2006-01-02")))

	log.Info("organization registered",
		zap.String("tenant_id", org.ID),
		zap.String("subdomain", org.Subdomain))

	return c.JSON(http.StatusCreated, echo.Map{
		"token":        token,
		"organization": org,
		"subscription": sub,
	})
}

// Login authenticates a dashboard user and issues a session token.
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return apperr.Validation("invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().WithContext(c.Request().Context()).
		Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		log.Warn("login for unknown email", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return apperr.Unauthenticated("invalid credentials")
	}
	if !user.Active {
		prometheus.RecordAuthError("user_inactive")
		return apperr.Unauthenticated("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return apperr.Unauthenticated("invalid credentials")
	}

	// Suspension blocks the whole tenant, dashboard included. Platform
	// super admins carry no tenant and skip this.
	if user.TenantID != "" {
		var org model.Organization
		if err := orgByID(c, user.TenantID, &org); err != nil {
			return err
		}
		if org.Status == model.OrgStatusSuspended {
			prometheus.RecordAuthError("org_suspended")
			return apperr.Forbidden("organization is suspended")
		}
	}

	token, err := jwtutil.GenerateToken(user.ID, user.TenantID, user.Role, user.Email)
	if err != nil {
		return apperr.Internal(err)
	}

	log.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("tenant_id", user.TenantID),
		zap.String("role", user.Role))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user": echo.Map{
			"id":        user.ID,
			"email":     user.Email,
			"name":      user.Name,
			"role":      user.Role,
			"tenant_id": user.TenantID,
		},
	})
}

// Profile returns the authenticated user's record.
func Profile(c echo.Context) error {
	auth, err := requireAuth(c)
	if err != nil {
		return err
	}

	var user model.User
	result := database.GetDB().WithContext(c.Request().Context()).
		Where("id = ?", auth.UserID).First(&user)
	if result.Error != nil {
		return apperr.NotFound("user")
	}
	return c.JSON(http.StatusOK, user)
}
