package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/auth"
	"github.com/formvibe/formvibe/internal/model"
)

const (
	contextKeyCurrentUserID   = "current_user_id"
	contextKeyCurrentUserRole = "current_user_role"

	bearerSchemePrefix = "Bearer "
)

// RequestLogger emits one structured log line per handled request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}

// RequireAPIAuth authenticates Bearer credentials: developer API keys
// (fv_ prefix, hash lookup) or dashboard session tokens. On success the
// current user id and role are stored on the request context.
func RequireAPIAuth(database *gorm.DB, tokenManager *auth.TokenManager, logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		authorizationHeader := strings.TrimSpace(context.GetHeader("Authorization"))
		if !strings.HasPrefix(authorizationHeader, bearerSchemePrefix) {
			context.AbortWithStatusJSON(401, gin.H{"error": "missing_bearer"})
			return
		}
		credential := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, bearerSchemePrefix))
		if credential == "" {
			context.AbortWithStatusJSON(401, gin.H{"error": "missing_bearer"})
			return
		}

		if strings.HasPrefix(credential, auth.APIKeyPrefix) {
			authenticateWithAPIKey(context, database, logger, credential)
			return
		}
		authenticateWithSessionToken(context, database, tokenManager, credential)
	}
}

func authenticateWithAPIKey(context *gin.Context, database *gorm.DB, logger *zap.Logger, rawKey string) {
	var key model.APIKey
	if findErr := database.First(&key, "key_hash = ?", auth.HashAPIKey(rawKey)).Error; findErr != nil {
		context.AbortWithStatusJSON(401, gin.H{"error": "invalid_api_key"})
		return
	}
	if key.Status != model.APIKeyStatusActive {
		context.AbortWithStatusJSON(401, gin.H{"error": "invalid_api_key"})
		return
	}

	var owner model.User
	if findErr := database.First(&owner, "id = ?", key.UserID).Error; findErr != nil {
		context.AbortWithStatusJSON(401, gin.H{"error": "invalid_api_key"})
		return
	}
	if owner.Status == model.UserStatusBlocked {
		context.AbortWithStatusJSON(403, gin.H{"error": "account_blocked"})
		return
	}

	// Touching last_used_at is best effort and never blocks the request.
	if touchErr := database.Model(&model.APIKey{}).
		Where("id = ?", key.ID).
		Update("last_used_at", time.Now().UTC()).Error; touchErr != nil {
		logger.Warn("api_key_touch_failed", zap.Error(touchErr), zap.String("api_key_id", key.ID))
	}

	context.Set(contextKeyCurrentUserID, owner.ID)
	context.Set(contextKeyCurrentUserRole, owner.Role)
	context.Next()
}

func authenticateWithSessionToken(context *gin.Context, database *gorm.DB, tokenManager *auth.TokenManager, tokenValue string) {
	if tokenManager == nil {
		context.AbortWithStatusJSON(401, gin.H{"error": "invalid_token"})
		return
	}
	claims, parseErr := tokenManager.ParseToken(tokenValue)
	if parseErr != nil {
		context.AbortWithStatusJSON(401, gin.H{"error": "invalid_token"})
		return
	}

	var account model.User
	if findErr := database.First(&account, "id = ?", claims.UserID).Error; findErr != nil {
		context.AbortWithStatusJSON(401, gin.H{"error": "invalid_token"})
		return
	}
	if account.Status == model.UserStatusBlocked {
		context.AbortWithStatusJSON(403, gin.H{"error": "account_blocked"})
		return
	}

	context.Set(contextKeyCurrentUserID, account.ID)
	context.Set(contextKeyCurrentUserRole, account.Role)
	context.Next()
}

// RequireAdmin gates a route group to admin accounts. Must run after
// RequireAPIAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(context *gin.Context) {
		if CurrentUserRole(context) != model.UserRoleAdmin {
			context.AbortWithStatusJSON(403, gin.H{"error": "forbidden"})
			return
		}
		context.Next()
	}
}

// CurrentUserID returns the authenticated user id, or empty.
func CurrentUserID(context *gin.Context) string {
	return context.GetString(contextKeyCurrentUserID)
}

// CurrentUserRole returns the authenticated user role, or empty.
func CurrentUserRole(context *gin.Context) string {
	return context.GetString(contextKeyCurrentUserRole)
}
