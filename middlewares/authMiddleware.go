package middlewares

import (
	"net/http"
	"strings"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const moduleName = "middlewares"

// AuthMiddleware validates the bearer token, enforces the day-boundary
// logout rule and stamps the request context with identity, role,
// correlation id and the operating business date. Downstream ledger code
// reads "today" from the context only.
func AuthMiddleware() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claims, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		// Sessions issued by a revoked login are rejected.
		if _, found, err := config.GetRedisValue("token:" + auth); err != nil || !found {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			c.Abort()
			return
		}

		isAdmin := claims.Role == "admin"

		businessDate, err := utils.ConvertToDate(time.Now(), "")
		if err != nil {
			config.LogError(logger, moduleName, "AuthMiddleware", "Cannot resolve business date", claims.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			c.Abort()
			return
		}

		// Non-admin sessions do not survive the day boundary: a token issued
		// yesterday forces a fresh login, so every cash entry lands on the
		// session of the day the operator actually logged in.
		if !isAdmin {
			issuedAt := time.Unix(claims.IssuedAt, 0)
			if !utils.SameDay(issuedAt, businessDate) {
				_ = config.RemoveRedisKey("token:" + auth)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, please log in again"})
				c.Abort()
				return
			}
		}

		correlationId := strings.TrimSpace(c.Request.Header.Get("X-Correlation-Id"))
		if correlationId == "" {
			correlationId = uuid.NewString()
		}

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetUserNameInContext(ctx, claims.Name)
		ctx = utils.SetUsernameInContext(ctx, claims.Name)
		ctx = utils.SetRoleInContext(ctx, claims.Role)
		ctx = utils.SetIsAdminInContext(ctx, isAdmin)
		ctx = utils.SetBusinessDateInContext(ctx, businessDate)
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", correlationId)
		c.Next()
	}
}

// RequireUser aborts unauthenticated requests. Placed after AuthMiddleware
// on every route except login and the outbox push endpoint.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin guards the administrative surface (sync, reconciliation
// overrides, user management).
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, ok := utils.GetIsAdminFromContext(c.Request.Context()); !ok || !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
