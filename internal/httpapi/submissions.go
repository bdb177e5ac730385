package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/model"
)

const (
	defaultSubmissionPageSize = 50
	maxSubmissionPageSize     = 200
)

// SubmissionHandlers serves the owner-scoped submission inbox.
type SubmissionHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
	forms    *FormHandlers
}

// NewSubmissionHandlers constructs a SubmissionHandlers instance.
func NewSubmissionHandlers(database *gorm.DB, logger *zap.Logger) *SubmissionHandlers {
	return &SubmissionHandlers{
		database: database,
		logger:   logger,
		forms:    NewFormHandlers(database, logger),
	}
}

type submissionResponse struct {
	ID        string                   `json:"id"`
	FormID    string                   `json:"formId"`
	Payload   map[string]string        `json:"payload"`
	Metadata  model.SubmissionMetadata `json:"metadata"`
	Status    string                   `json:"status"`
	CreatedAt time.Time                `json:"createdAt"`
}

type listSubmissionsResponse struct {
	FormID      string               `json:"formId"`
	Submissions []submissionResponse `json:"submissions"`
	Total       int64                `json:"total"`
	Page        int                  `json:"page"`
	PageSize    int                  `json:"pageSize"`
}

type updateSubmissionRequest struct {
	Status string `json:"status"`
}

func buildSubmissionResponse(submission model.Submission) submissionResponse {
	return submissionResponse{
		ID:        submission.ID,
		FormID:    submission.FormID,
		Payload:   submission.ParsedPayload(),
		Metadata:  submission.ParsedMetadata(),
		Status:    submission.Status,
		CreatedAt: submission.CreatedAt,
	}
}

// ListSubmissions handles GET /api/v1/forms/:formID/submissions, newest first
// and paged. Deleted submissions stay out of the listing.
func (h *SubmissionHandlers) ListSubmissions(context *gin.Context) {
	form, found := h.forms.ownedForm(context)
	if !found {
		return
	}

	page := parsePositiveQueryInt(context.Query("page"), 1)
	pageSize := parsePositiveQueryInt(context.Query("pageSize"), defaultSubmissionPageSize)
	if pageSize > maxSubmissionPageSize {
		pageSize = maxSubmissionPageSize
	}

	var total int64
	countErr := h.database.Model(&model.Submission{}).
		Where("form_id = ? AND status <> ?", form.ID, model.SubmissionStatusDeleted).
		Count(&total).Error
	if countErr != nil {
		h.logger.Error("count_submissions", zap.Error(countErr), zap.String("form_id", form.ID))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	var submissions []model.Submission
	queryErr := h.database.
		Where("form_id = ? AND status <> ?", form.ID, model.SubmissionStatusDeleted).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&submissions).Error
	if queryErr != nil {
		h.logger.Error("list_submissions", zap.Error(queryErr), zap.String("form_id", form.ID))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := listSubmissionsResponse{
		FormID:      form.ID,
		Submissions: make([]submissionResponse, 0, len(submissions)),
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
	}
	for _, submission := range submissions {
		response.Submissions = append(response.Submissions, buildSubmissionResponse(submission))
	}
	context.JSON(200, response)
}

// UpdateSubmission handles PATCH /api/v1/forms/:formID/submissions/:submissionID.
func (h *SubmissionHandlers) UpdateSubmission(context *gin.Context) {
	submission, found := h.ownedSubmission(context)
	if !found {
		return
	}

	var request updateSubmissionRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}
	nextStatus := strings.TrimSpace(request.Status)
	if validateErr := model.ValidateSubmissionStatus(nextStatus); validateErr != nil {
		context.JSON(400, gin.H{"error": "invalid_status"})
		return
	}

	saveErr := h.database.Model(&model.Submission{}).
		Where("id = ?", submission.ID).
		Update("status", nextStatus).Error
	if saveErr != nil {
		h.logger.Error("update_submission", zap.Error(saveErr), zap.String("submission_id", submission.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	submission.Status = nextStatus
	context.JSON(200, buildSubmissionResponse(submission))
}

// DeleteSubmission handles DELETE /api/v1/forms/:formID/submissions/:submissionID.
// Deletion is a status change, the row is retained.
func (h *SubmissionHandlers) DeleteSubmission(context *gin.Context) {
	submission, found := h.ownedSubmission(context)
	if !found {
		return
	}

	saveErr := h.database.Model(&model.Submission{}).
		Where("id = ?", submission.ID).
		Update("status", model.SubmissionStatusDeleted).Error
	if saveErr != nil {
		h.logger.Error("delete_submission", zap.Error(saveErr), zap.String("submission_id", submission.ID))
		context.JSON(500, gin.H{"error": "delete_failed"})
		return
	}
	context.JSON(200, gin.H{"deleted": true})
}

func (h *SubmissionHandlers) ownedSubmission(context *gin.Context) (model.Submission, bool) {
	form, found := h.forms.ownedForm(context)
	if !found {
		return model.Submission{}, false
	}

	submissionID := strings.TrimSpace(context.Param("submissionID"))
	var submission model.Submission
	findErr := h.database.First(&submission, "id = ? AND form_id = ?", submissionID, form.ID).Error
	if findErr != nil {
		context.JSON(404, gin.H{"error": "submission_not_found"})
		return model.Submission{}, false
	}
	return submission, true
}

func parsePositiveQueryInt(rawValue string, fallback int) int {
	parsed, parseErr := strconv.Atoi(strings.TrimSpace(rawValue))
	if parseErr != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
