package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/billing"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/middleware"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/config"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/database"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/jwtutil"
)

type noopSender struct{}

func (noopSender) Send(context.Context, string, string, string) error { return nil }

// openTestDB wires an in-memory database into the package-global handle
// the handlers read through, mirroring the production gorm config.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Organization{},
		&model.User{},
		&model.Staff{},
		&model.AttendanceLog{},
		&model.Subscription{},
		&model.PaymentEvent{},
	))
	database.DB = db
	return db
}

func jsonContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func seedOrgWithUser(t *testing.T, db *gorm.DB, orgStatus string) (*model.Organization, *model.User) {
	t.Helper()
	org := &model.Organization{
		Name:       "Acme",
		Subdomain:  "acme",
		AdminEmail: "admin@acme.test",
		Status:     orgStatus,
		Plan:       model.PlanStarter,
	}
	require.NoError(t, db.Create(org).Error)

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		TenantID: org.ID,
		Email:    "admin@acme.test",
		Password: string(hashed),
		Name:     "Admin",
		Role:     model.RoleOrgAdmin,
		Active:   true,
	}
	require.NoError(t, db.Create(user).Error)
	return org, user
}

func TestLoginRejectsSuspendedOrganization(t *testing.T) {
	db := openTestDB(t)
	seedOrgWithUser(t, db, model.OrgStatusSuspended)
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "k", ExpirationHours: 24})

	c, _ := jsonContext(t, http.MethodPost, "/auth/login",
		`{"email":"admin@acme.test","password":"password123"}`)
	err := Login(c)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestLoginSucceedsForActiveOrganization(t *testing.T) {
	db := openTestDB(t)
	seedOrgWithUser(t, db, model.OrgStatusActive)
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "k", ExpirationHours: 24})

	c, rec := jsonContext(t, http.MethodPost, "/auth/login",
		`{"email":"admin@acme.test","password":"password123"}`)
	require.NoError(t, Login(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "token")
}

func TestRegisterCreatesTenantWithTrial(t *testing.T) {
	db := openTestDB(t)
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "k", ExpirationHours: 24})
	Init(Deps{
		Billing: billing.NewService(db, nil, zap.NewNop(), 14),
		Mailer:  noopSender{},
	})

	c, rec := jsonContext(t, http.MethodPost, "/auth/register",
		`{"org_name":"Acme","subdomain":"acme","email":"admin@acme.test","password":"password123"}`)
	require.NoError(t, Register(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var sub model.Subscription
	require.NoError(t, db.First(&sub).Error)
	assert.Equal(t, model.PlanStarter, sub.Plan)
	assert.True(t, sub.IsTrialActive)
}

func TestRegisterMapsDuplicateKeyToConflict(t *testing.T) {
	// A soft-deleted organization still holds its subdomain in the unique
	// index but is invisible to the pre-check, so the insert itself is
	// what fails; the same shape a concurrent registration race produces.
	db := openTestDB(t)
	org := &model.Organization{
		Name:       "Old Acme",
		Subdomain:  "acme",
		AdminEmail: "old@acme.test",
		Status:     model.OrgStatusActive,
		Plan:       model.PlanStarter,
	}
	require.NoError(t, db.Create(org).Error)
	require.NoError(t, db.Delete(org).Error)

	Init(Deps{
		Billing: billing.NewService(db, nil, zap.NewNop(), 14),
		Mailer:  noopSender{},
	})

	c, _ := jsonContext(t, http.MethodPost, "/auth/register",
		`{"org_name":"Acme","subdomain":"acme","email":"new@acme.test","password":"password123"}`)
	err := Register(c)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func seedIntegrationOrg(t *testing.T, db *gorm.DB, plan string) *model.Organization {
	t.Helper()
	org := &model.Organization{
		Name:       "Acme",
		Subdomain:  "acme",
		AdminEmail: "admin@acme.test",
		Status:     model.OrgStatusActive,
		Plan:       plan,
		Settings:   model.OrgSettings{APIKey: "tw_testkey"},
	}
	require.NoError(t, db.Create(org).Error)
	require.NoError(t, db.Create(&model.Subscription{
		TenantID: org.ID,
		Plan:     plan,
		Status:   model.SubStatusActive,
	}).Error)
	return org
}

func TestRotateAPIKeyGatedByPlan(t *testing.T) {
	db := openTestDB(t)
	Init(Deps{})
	org := seedIntegrationOrg(t, db, model.PlanProfessional)

	c, _ := jsonContext(t, http.MethodPost, "/api/settings/api-key", "")
	c.Set("auth", &middleware.AuthContext{UserID: "u1", TenantID: org.ID, Role: model.RoleOrgAdmin})

	err := RotateAPIKey(c)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindFeatureLocked))
}

func TestRotateAPIKeyIssuesFreshKey(t *testing.T) {
	db := openTestDB(t)
	Init(Deps{})
	org := seedIntegrationOrg(t, db, model.PlanEnterprise)

	c, rec := jsonContext(t, http.MethodPost, "/api/settings/api-key", "")
	c.Set("auth", &middleware.AuthContext{UserID: "u1", TenantID: org.ID, Role: model.RoleOrgAdmin})

	require.NoError(t, RotateAPIKey(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var updated model.Organization
	require.NoError(t, db.Where("id = ?", org.ID).First(&updated).Error)
	assert.NotEqual(t, "tw_testkey", updated.Settings.APIKey)
	assert.True(t, strings.HasPrefix(updated.Settings.APIKey, "tw_"))
}

func TestIntegrationAttendanceFeed(t *testing.T) {
	db := openTestDB(t)
	Init(Deps{})
	org := seedIntegrationOrg(t, db, model.PlanEnterprise)

	require.NoError(t, db.Create(&model.AttendanceLog{
		TenantID: org.ID, StaffID: "s1", StaffCode: "S1",
		WorkDate: "2026-08-28", Status: model.AttendanceStatusPresent,
	}).Error)
	require.NoError(t, db.Create(&model.AttendanceLog{
		TenantID: "someone-else", StaffID: "s1", StaffCode: "S1",
		WorkDate: "2026-08-28", Status: model.AttendanceStatusPresent,
	}).Error)

	c, rec := jsonContext(t, http.MethodGet, "/integration/attendance?from=2026-08-01&to=2026-08-31", "")
	c.Request().Header.Set(apiKeyHeader, "tw_testkey")

	require.NoError(t, IntegrationAttendance(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestIntegrationAttendanceRejectsBadKey(t *testing.T) {
	db := openTestDB(t)
	Init(Deps{})
	seedIntegrationOrg(t, db, model.PlanEnterprise)

	c, _ := jsonContext(t, http.MethodGet, "/integration/attendance", "")
	c.Request().Header.Set(apiKeyHeader, "tw_wrong")
	err := IntegrationAttendance(c)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	c, _ = jsonContext(t, http.MethodGet, "/integration/attendance", "")
	err = IntegrationAttendance(c)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestIntegrationAttendanceRejectsSuspendedOrg(t *testing.T) {
	db := openTestDB(t)
	Init(Deps{})
	org := seedIntegrationOrg(t, db, model.PlanEnterprise)
	require.NoError(t, db.Model(org).Update("status", model.OrgStatusSuspended).Error)

	c, _ := jsonContext(t, http.MethodGet, "/integration/attendance", "")
	c.Request().Header.Set(apiKeyHeader, "tw_testkey")
	err := IntegrationAttendance(c)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}
