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

// WebhookHandlers serves the owner-scoped webhook registry.
type WebhookHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
	forms    *FormHandlers
}

// NewWebhookHandlers constructs a WebhookHandlers instance.
func NewWebhookHandlers(database *gorm.DB, logger *zap.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		database: database,
		logger:   logger,
		forms:    NewFormHandlers(database, logger),
	}
}

type createWebhookRequest struct {
	URL string `json:"url"`
}

type updateWebhookRequest struct {
	Status string `json:"status"`
}

// webhookResponse deliberately has no secret field; the secret leaves the
// server exactly once, in createdWebhookResponse.
type webhookResponse struct {
	ID        string    `json:"id"`
	FormID    string    `json:"formId"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type createdWebhookResponse struct {
	webhookResponse
	Secret string `json:"secret"`
}

type listWebhooksResponse struct {
	FormID   string            `json:"formId"`
	Webhooks []webhookResponse `json:"webhooks"`
}

func buildWebhookResponse(registered model.Webhook) webhookResponse {
	return webhookResponse{
		ID:        registered.ID,
		FormID:    registered.FormID,
		URL:       registered.URL,
		Status:    registered.Status,
		CreatedAt: registered.CreatedAt,
	}
}

// ListWebhooks handles GET /api/v1/forms/:formID/webhooks.
func (h *WebhookHandlers) ListWebhooks(context *gin.Context) {
	form, found := h.forms.ownedForm(context)
	if !found {
		return
	}

	var webhooks []model.Webhook
	queryErr := h.database.
		Where("form_id = ?", form.ID).
		Order("created_at DESC").
		Find(&webhooks).Error
	if queryErr != nil {
		h.logger.Error("list_webhooks", zap.Error(queryErr), zap.String("form_id", form.ID))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := listWebhooksResponse{FormID: form.ID, Webhooks: make([]webhookResponse, 0, len(webhooks))}
	for _, registered := range webhooks {
		response.Webhooks = append(response.Webhooks, buildWebhookResponse(registered))
	}
	context.JSON(200, response)
}

// CreateWebhook handles POST /api/v1/forms/:formID/webhooks. The signing secret
// is generated server side and returned in this response only.
func (h *WebhookHandlers) CreateWebhook(context *gin.Context) {
	form, found := h.forms.ownedForm(context)
	if !found {
		return
	}

	var request createWebhookRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}

	secret, secretErr := auth.GenerateWebhookSecret()
	if secretErr != nil {
		h.logger.Error("generate_webhook_secret", zap.Error(secretErr))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	registered, webhookErr := model.NewWebhook(model.WebhookInput{
		FormID: form.ID,
		URL:    request.URL,
		Secret: secret,
	})
	if webhookErr != nil {
		context.JSON(400, gin.H{"error": "invalid_webhook_url"})
		return
	}

	if saveErr := h.database.Create(&registered).Error; saveErr != nil {
		h.logger.Error("save_webhook", zap.Error(saveErr), zap.String("form_id", form.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	context.JSON(201, createdWebhookResponse{
		webhookResponse: buildWebhookResponse(registered),
		Secret:          secret,
	})
}

// UpdateWebhook handles PATCH /api/v1/forms/:formID/webhooks/:webhookID.
func (h *WebhookHandlers) UpdateWebhook(context *gin.Context) {
	registered, found := h.ownedWebhook(context)
	if !found {
		return
	}

	var request updateWebhookRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}
	nextStatus := strings.TrimSpace(request.Status)
	if validateErr := model.ValidateWebhookStatus(nextStatus); validateErr != nil {
		context.JSON(400, gin.H{"error": "invalid_status"})
		return
	}

	saveErr := h.database.Model(&model.Webhook{}).
		Where("id = ?", registered.ID).
		Update("status", nextStatus).Error
	if saveErr != nil {
		h.logger.Error("update_webhook", zap.Error(saveErr), zap.String("webhook_id", registered.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	registered.Status = nextStatus
	context.JSON(200, buildWebhookResponse(registered))
}

// DeleteWebhook handles DELETE /api/v1/forms/:formID/webhooks/:webhookID.
func (h *WebhookHandlers) DeleteWebhook(context *gin.Context) {
	registered, found := h.ownedWebhook(context)
	if !found {
		return
	}

	if deleteErr := h.database.Delete(&model.Webhook{}, "id = ?", registered.ID).Error; deleteErr != nil {
		h.logger.Error("delete_webhook", zap.Error(deleteErr), zap.String("webhook_id", registered.ID))
		context.JSON(500, gin.H{"error": "delete_failed"})
		return
	}
	context.JSON(200, gin.H{"deleted": true})
}

func (h *WebhookHandlers) ownedWebhook(context *gin.Context) (model.Webhook, bool) {
	form, found := h.forms.ownedForm(context)
	if !found {
		return model.Webhook{}, false
	}

	webhookID := strings.TrimSpace(context.Param("webhookID"))
	var registered model.Webhook
	findErr := h.database.First(&registered, "id = ? AND form_id = ?", webhookID, form.ID).Error
	if findErr != nil {
		context.JSON(404, gin.H{"error": "webhook_not_found"})
		return model.Webhook{}, false
	}
	return registered, true
}
