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

// APIKeyHandlers serves the developer key surface.
type APIKeyHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
}

// NewAPIKeyHandlers constructs an APIKeyHandlers instance.
func NewAPIKeyHandlers(database *gorm.DB, logger *zap.Logger) *APIKeyHandlers {
	return &APIKeyHandlers{database: database, logger: logger}
}

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

// apiKeyResponse never carries the hash or the raw key.
type apiKeyResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

type createdAPIKeyResponse struct {
	apiKeyResponse
	Key string `json:"key"`
}

type listAPIKeysResponse struct {
	Keys []apiKeyResponse `json:"keys"`
}

func buildAPIKeyResponse(key model.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         key.ID,
		Name:       key.Name,
		Status:     key.Status,
		LastUsedAt: key.LastUsedAt,
		CreatedAt:  key.CreatedAt,
	}
}

// ListKeys handles GET /api/v1/developer/keys.
func (h *APIKeyHandlers) ListKeys(context *gin.Context) {
	var keys []model.APIKey
	queryErr := h.database.
		Where("user_id = ?", CurrentUserID(context)).
		Order("created_at DESC").
		Find(&keys).Error
	if queryErr != nil {
		h.logger.Error("list_api_keys", zap.Error(queryErr))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := listAPIKeysResponse{Keys: make([]apiKeyResponse, 0, len(keys))}
	for _, key := range keys {
		response.Keys = append(response.Keys, buildAPIKeyResponse(key))
	}
	context.JSON(200, response)
}

// CreateKey handles POST /api/v1/developer/keys. The raw key appears in this
// response and nowhere else; only its hash is stored.
func (h *APIKeyHandlers) CreateKey(context *gin.Context) {
	var request createAPIKeyRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}

	rawKey, keyHash, generateErr := auth.GenerateAPIKey()
	if generateErr != nil {
		h.logger.Error("generate_api_key", zap.Error(generateErr))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	key, keyErr := model.NewAPIKey(model.APIKeyInput{
		UserID:  CurrentUserID(context),
		KeyHash: keyHash,
		Name:    request.Name,
	})
	if keyErr != nil {
		context.JSON(400, gin.H{"error": "invalid_key_name"})
		return
	}

	if saveErr := h.database.Create(&key).Error; saveErr != nil {
		h.logger.Error("save_api_key", zap.Error(saveErr))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	context.JSON(201, createdAPIKeyResponse{
		apiKeyResponse: buildAPIKeyResponse(key),
		Key:            rawKey,
	})
}

// RevokeKey handles DELETE /api/v1/developer/keys/:keyID. Revocation is a
// status change so the key's audit trail survives.
func (h *APIKeyHandlers) RevokeKey(context *gin.Context) {
	keyID := strings.TrimSpace(context.Param("keyID"))
	var key model.APIKey
	findErr := h.database.First(&key, "id = ? AND user_id = ?", keyID, CurrentUserID(context)).Error
	if findErr != nil {
		context.JSON(404, gin.H{"error": "api_key_not_found"})
		return
	}

	saveErr := h.database.Model(&model.APIKey{}).
		Where("id = ?", key.ID).
		Update("status", model.APIKeyStatusRevoked).Error
	if saveErr != nil {
		h.logger.Error("revoke_api_key", zap.Error(saveErr), zap.String("api_key_id", key.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}
	context.JSON(200, gin.H{"revoked": true})
}
