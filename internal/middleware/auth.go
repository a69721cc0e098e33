package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/jwtutil"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

const authContextKey = "auth"

// AuthContext is the verified identity of the current request, decoded from
// the bearer token. TenantID is empty for super admins.
type AuthContext struct {
	UserID   string
	TenantID string
	Role     string
	Email    string
}

// IsSuperAdmin reports whether the caller is a platform super admin.
func (a *AuthContext) IsSuperAdmin() bool {
	return a.Role == model.RoleSuperAdmin
}

// GetAuth retrieves the AuthContext set by AuthMiddleware.
func GetAuth(c echo.Context) (*AuthContext, bool) {
	auth, ok := c.Get(authContextKey).(*AuthContext)
	return auth, ok
}

// extractToken pulls the token out of an Authorization header, accepting
// both raw and "Bearer "-prefixed forms.
func extractToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

// AuthMiddleware validates the session token from the Authorization header
// and stores the decoded identity on the context. Missing, expired and
// invalid tokens surface as distinct error kinds.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		tokenString := extractToken(c.Request().Header.Get("Authorization"))
		if tokenString == "" {
			log.Warn("Missing authorization token")
			prometheus.RecordAuthError("missing_token")
			return apperr.Unauthenticated("missing authorization token")
		}

		claims, err := jwtutil.ValidateToken(tokenString)
		if err != nil {
			log.Warn("Token validation failed", zap.Error(err))
			if apperr.IsKind(err, apperr.KindTokenExpired) {
				prometheus.RecordAuthError("token_expired")
			} else {
				prometheus.RecordAuthError("token_invalid")
			}
			return err
		}

		c.Set(authContextKey, &AuthContext{
			UserID:   claims.UserID,
			TenantID: claims.TenantID,
			Role:     claims.Role,
			Email:    claims.Email,
		})

		log.Debug("Request authenticated",
			zap.String("user_id", claims.UserID),
			zap.String("tenant_id", claims.TenantID),
			zap.String("role", claims.Role))

		return next(c)
	}
}

// RequireRole returns middleware enforcing a role allow-list. Super admins
// are exempt from tenant-matching checks elsewhere but are still subject
// to role allow-lists here.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth, ok := GetAuth(c)
			if !ok {
				return apperr.Unauthenticated("authentication required")
			}
			for _, role := range roles {
				if auth.Role == role {
					return next(c)
				}
			}
			logger.FromContext(c).Warn("Role not permitted",
				zap.String("role", auth.Role),
				zap.Strings("allowed", roles))
			prometheus.RecordAuthError("insufficient_permissions")
			return apperr.Forbidden("insufficient permissions")
		}
	}
}

// VerifyTenantAccess fails with a cross-tenant error unless the caller's
// tenant matches the requested tenant or the caller is a super admin.
// Cross-tenant mismatches are hard failures, never auto-corrected.
func VerifyTenantAccess(auth *AuthContext, requestedTenantID string) error {
	if auth.IsSuperAdmin() {
		return nil
	}
	if auth.TenantID == "" || auth.TenantID != requestedTenantID {
		prometheus.CrossTenantCounter.Inc()
		return apperr.CrossTenant("access to the requested tenant is denied")
	}
	return nil
}
