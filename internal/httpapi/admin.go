package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/model"
)

const defaultAuditLogLimit = 100

// AdminHandlers serves the platform administration surface. Routes must be
// gated by RequireAdmin. Every mutation appends an audit log entry; a failed
// audit write is logged but never rolls back the action.
type AdminHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
}

// NewAdminHandlers constructs an AdminHandlers instance.
func NewAdminHandlers(database *gorm.DB, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{database: database, logger: logger}
}

type adminUserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type adminFormResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type platformStatsResponse struct {
	UserCount       int64 `json:"userCount"`
	FormCount       int64 `json:"formCount"`
	SubmissionCount int64 `json:"submissionCount"`
	WebhookCount    int64 `json:"webhookCount"`
}

type auditLogResponse struct {
	ID          string    `json:"id"`
	AdminUserID string    `json:"adminUserId"`
	Action      string    `json:"action"`
	TargetType  string    `json:"targetType"`
	TargetID    string    `json:"targetId"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandlers) ListUsers(context *gin.Context) {
	var users []model.User
	if queryErr := h.database.Order("created_at DESC").Find(&users).Error; queryErr != nil {
		h.logger.Error("admin_list_users", zap.Error(queryErr))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := make([]adminUserResponse, 0, len(users))
	for _, account := range users {
		response = append(response, adminUserResponse{
			ID:        account.ID,
			Name:      account.Name,
			Email:     account.Email,
			Role:      account.Role,
			Status:    account.Status,
			CreatedAt: account.CreatedAt,
		})
	}
	context.JSON(200, gin.H{"users": response})
}

// BlockUser handles POST /api/admin/users/:userID/block. Admins cannot block
// themselves.
func (h *AdminHandlers) BlockUser(context *gin.Context) {
	h.setUserStatus(context, model.UserStatusBlocked, model.AuditActionBlockUser)
}

// UnblockUser handles POST /api/admin/users/:userID/unblock.
func (h *AdminHandlers) UnblockUser(context *gin.Context) {
	h.setUserStatus(context, model.UserStatusActive, model.AuditActionUnblockUser)
}

func (h *AdminHandlers) setUserStatus(context *gin.Context, targetStatus string, auditAction string) {
	userID := strings.TrimSpace(context.Param("userID"))
	if userID == CurrentUserID(context) {
		context.JSON(400, gin.H{"error": "cannot_target_self"})
		return
	}

	var account model.User
	if findErr := h.database.First(&account, "id = ?", userID).Error; findErr != nil {
		context.JSON(404, gin.H{"error": "user_not_found"})
		return
	}

	saveErr := h.database.Model(&model.User{}).
		Where("id = ?", account.ID).
		Update("status", targetStatus).Error
	if saveErr != nil {
		h.logger.Error("admin_set_user_status", zap.Error(saveErr), zap.String("user_id", account.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	h.appendAuditLog(context, auditAction, model.AuditTargetUser, account.ID, map[string]string{
		"email":  account.Email,
		"status": targetStatus,
	})
	context.JSON(200, gin.H{"status": targetStatus})
}

// ChangeRole handles POST /api/admin/users/:userID/role.
func (h *AdminHandlers) ChangeRole(context *gin.Context) {
	userID := strings.TrimSpace(context.Param("userID"))
	if userID == CurrentUserID(context) {
		context.JSON(400, gin.H{"error": "cannot_target_self"})
		return
	}

	var request changeRoleRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}
	nextRole := strings.TrimSpace(request.Role)
	if nextRole != model.UserRoleUser && nextRole != model.UserRoleAdmin {
		context.JSON(400, gin.H{"error": "invalid_role"})
		return
	}

	var account model.User
	if findErr := h.database.First(&account, "id = ?", userID).Error; findErr != nil {
		context.JSON(404, gin.H{"error": "user_not_found"})
		return
	}

	saveErr := h.database.Model(&model.User{}).
		Where("id = ?", account.ID).
		Update("role", nextRole).Error
	if saveErr != nil {
		h.logger.Error("admin_change_role", zap.Error(saveErr), zap.String("user_id", account.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	h.appendAuditLog(context, model.AuditActionChangeRole, model.AuditTargetUser, account.ID, map[string]string{
		"email": account.Email,
		"role":  nextRole,
	})
	context.JSON(200, gin.H{"role": nextRole})
}

// ListAllForms handles GET /api/admin/forms.
func (h *AdminHandlers) ListAllForms(context *gin.Context) {
	var forms []model.Form
	if queryErr := h.database.Order("created_at DESC").Find(&forms).Error; queryErr != nil {
		h.logger.Error("admin_list_forms", zap.Error(queryErr))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := make([]adminFormResponse, 0, len(forms))
	for _, form := range forms {
		response = append(response, adminFormResponse{
			ID:        form.ID,
			OwnerID:   form.OwnerID,
			Name:      form.Name,
			Status:    form.Status,
			CreatedAt: form.CreatedAt,
		})
	}
	context.JSON(200, gin.H{"forms": response})
}

// DeleteForm handles DELETE /api/admin/forms/:formID. Unlike the owner surface
// this works across all owners.
func (h *AdminHandlers) DeleteForm(context *gin.Context) {
	formID := strings.TrimSpace(context.Param("formID"))
	var form model.Form
	if findErr := h.database.First(&form, "id = ?", formID).Error; findErr != nil {
		context.JSON(404, gin.H{"error": "form_not_found"})
		return
	}

	deleteErr := h.database.Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Where("form_id = ?", form.ID).Delete(&model.Submission{}).Error; err != nil {
			return err
		}
		if err := transaction.Where("form_id = ?", form.ID).Delete(&model.Webhook{}).Error; err != nil {
			return err
		}
		return transaction.Delete(&model.Form{}, "id = ?", form.ID).Error
	})
	if deleteErr != nil {
		h.logger.Error("admin_delete_form", zap.Error(deleteErr), zap.String("form_id", form.ID))
		context.JSON(500, gin.H{"error": "delete_failed"})
		return
	}

	h.appendAuditLog(context, model.AuditActionDeleteForm, model.AuditTargetForm, form.ID, map[string]string{
		"owner_id": form.OwnerID,
		"name":     form.Name,
	})
	context.JSON(200, gin.H{"deleted": true})
}

// RevokeAPIKey handles DELETE /api/admin/keys/:keyID. Works across all owners.
func (h *AdminHandlers) RevokeAPIKey(context *gin.Context) {
	keyID := strings.TrimSpace(context.Param("keyID"))
	var key model.APIKey
	if findErr := h.database.First(&key, "id = ?", keyID).Error; findErr != nil {
		context.JSON(404, gin.H{"error": "api_key_not_found"})
		return
	}

	saveErr := h.database.Model(&model.APIKey{}).
		Where("id = ?", key.ID).
		Update("status", model.APIKeyStatusRevoked).Error
	if saveErr != nil {
		h.logger.Error("admin_revoke_api_key", zap.Error(saveErr), zap.String("api_key_id", key.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	h.appendAuditLog(context, model.AuditActionRevokeAPIKey, model.AuditTargetAPIKey, key.ID, map[string]string{
		"user_id": key.UserID,
		"name":    key.Name,
	})
	context.JSON(200, gin.H{"revoked": true})
}

// PlatformStats handles GET /api/admin/stats.
func (h *AdminHandlers) PlatformStats(context *gin.Context) {
	var response platformStatsResponse
	counters := []struct {
		destination *int64
		entity      any
	}{
		{&response.UserCount, &model.User{}},
		{&response.FormCount, &model.Form{}},
		{&response.SubmissionCount, &model.Submission{}},
		{&response.WebhookCount, &model.Webhook{}},
	}
	for _, counter := range counters {
		if countErr := h.database.Model(counter.entity).Count(counter.destination).Error; countErr != nil {
			h.logger.Error("admin_stats", zap.Error(countErr))
			context.JSON(500, gin.H{"error": "query_failed"})
			return
		}
	}
	context.JSON(200, response)
}

// ListAuditLogs handles GET /api/admin/audit-logs, newest first.
func (h *AdminHandlers) ListAuditLogs(context *gin.Context) {
	limit := parsePositiveQueryInt(context.Query("limit"), defaultAuditLogLimit)

	var entries []model.AuditLog
	queryErr := h.database.
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if queryErr != nil {
		h.logger.Error("admin_list_audit_logs", zap.Error(queryErr))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := make([]auditLogResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, auditLogResponse{
			ID:          entry.ID,
			AdminUserID: entry.AdminUserID,
			Action:      entry.Action,
			TargetType:  entry.TargetType,
			TargetID:    entry.TargetID,
			Metadata:    entry.Metadata,
			CreatedAt:   entry.CreatedAt,
		})
	}
	context.JSON(200, gin.H{"audit_logs": response})
}

func (h *AdminHandlers) appendAuditLog(context *gin.Context, action string, targetType string, targetID string, metadata map[string]string) {
	entry, entryErr := model.NewAuditLog(model.AuditLogInput{
		AdminUserID: CurrentUserID(context),
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
	})
	if entryErr != nil {
		h.logger.Warn("audit_log_build_failed", zap.Error(entryErr), zap.String("action", action))
		return
	}
	if saveErr := h.database.Create(&entry).Error; saveErr != nil {
		h.logger.Warn("audit_log_write_failed", zap.Error(saveErr), zap.String("action", action))
	}
}
