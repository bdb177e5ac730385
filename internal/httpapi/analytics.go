package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/model"
)

// AnalyticsHandlers serves per-owner aggregate counts.
type AnalyticsHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
}

// NewAnalyticsHandlers constructs an AnalyticsHandlers instance.
func NewAnalyticsHandlers(database *gorm.DB, logger *zap.Logger) *AnalyticsHandlers {
	return &AnalyticsHandlers{database: database, logger: logger}
}

type analyticsResponse struct {
	FormCount          int64 `json:"formCount"`
	SubmissionCount    int64 `json:"submissionCount"`
	UnreadCount        int64 `json:"unreadCount"`
	ActiveFormCount    int64 `json:"activeFormCount"`
	ActiveWebhookCount int64 `json:"activeWebhookCount"`
}

// Overview handles GET /api/v1/analytics. Counts exclude deleted submissions.
func (h *AnalyticsHandlers) Overview(context *gin.Context) {
	ownerID := CurrentUserID(context)

	var formIDs []string
	listErr := h.database.Model(&model.Form{}).
		Where("owner_id = ?", ownerID).
		Pluck("id", &formIDs).Error
	if listErr != nil {
		h.logger.Error("analytics_forms", zap.Error(listErr))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := analyticsResponse{FormCount: int64(len(formIDs))}
	if len(formIDs) == 0 {
		context.JSON(200, response)
		return
	}

	counters := []struct {
		destination *int64
		query       *gorm.DB
	}{
		{&response.SubmissionCount, h.database.Model(&model.Submission{}).
			Where("form_id IN ? AND status <> ?", formIDs, model.SubmissionStatusDeleted)},
		{&response.UnreadCount, h.database.Model(&model.Submission{}).
			Where("form_id IN ? AND status = ?", formIDs, model.SubmissionStatusUnread)},
		{&response.ActiveFormCount, h.database.Model(&model.Form{}).
			Where("owner_id = ? AND status = ?", ownerID, model.FormStatusActive)},
		{&response.ActiveWebhookCount, h.database.Model(&model.Webhook{}).
			Where("form_id IN ? AND status = ?", formIDs, model.WebhookStatusActive)},
	}
	for _, counter := range counters {
		if countErr := counter.query.Count(counter.destination).Error; countErr != nil {
			h.logger.Error("analytics_count", zap.Error(countErr))
			context.JSON(500, gin.H{"error": "query_failed"})
			return
		}
	}

	context.JSON(200, response)
}
