package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/model"
)

// FormHandlers serves the owner-scoped form CRUD surface.
type FormHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
}

// NewFormHandlers constructs a FormHandlers instance.
func NewFormHandlers(database *gorm.DB, logger *zap.Logger) *FormHandlers {
	return &FormHandlers{database: database, logger: logger}
}

type createFormRequest struct {
	Name       string              `json:"name"`
	TemplateID string              `json:"templateId"`
	Settings   *model.FormSettings `json:"settings"`
}

type updateFormRequest struct {
	Name     *string             `json:"name"`
	Status   *string             `json:"status"`
	Settings *model.FormSettings `json:"settings"`
}

type formResponse struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	TemplateID string             `json:"templateId,omitempty"`
	Settings   model.FormSettings `json:"settings"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type listFormsResponse struct {
	Forms []formResponse `json:"forms"`
}

func buildFormResponse(form model.Form) formResponse {
	return formResponse{
		ID:         form.ID,
		Name:       form.Name,
		Status:     form.Status,
		TemplateID: form.TemplateID,
		Settings:   form.ParsedSettings(),
		CreatedAt:  form.CreatedAt,
		UpdatedAt:  form.UpdatedAt,
	}
}

// ListForms handles GET /api/v1/forms.
func (h *FormHandlers) ListForms(context *gin.Context) {
	var forms []model.Form
	queryErr := h.database.
		Where("owner_id = ?", CurrentUserID(context)).
		Order("created_at DESC").
		Find(&forms).Error
	if queryErr != nil {
		h.logger.Error("list_forms", zap.Error(queryErr))
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}

	response := listFormsResponse{Forms: make([]formResponse, 0, len(forms))}
	for _, form := range forms {
		response.Forms = append(response.Forms, buildFormResponse(form))
	}
	context.JSON(200, response)
}

// CreateForm handles POST /api/v1/forms.
func (h *FormHandlers) CreateForm(context *gin.Context) {
	var request createFormRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}

	settings := model.FormSettings{}
	if request.Settings != nil {
		settings = *request.Settings
	}

	form, formErr := model.NewForm(model.FormInput{
		OwnerID:    CurrentUserID(context),
		Name:       request.Name,
		Settings:   settings,
		TemplateID: request.TemplateID,
	})
	if formErr != nil {
		context.JSON(400, gin.H{"error": "invalid_form"})
		return
	}

	if saveErr := h.database.Create(&form).Error; saveErr != nil {
		h.logger.Error("save_form", zap.Error(saveErr))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}
	context.JSON(201, buildFormResponse(form))
}

// GetForm handles GET /api/v1/forms/:formID.
func (h *FormHandlers) GetForm(context *gin.Context) {
	form, found := h.ownedForm(context)
	if !found {
		return
	}
	context.JSON(200, buildFormResponse(form))
}

// UpdateForm handles PATCH /api/v1/forms/:formID. Status changes go through the
// transition check, so revoked stays terminal.
func (h *FormHandlers) UpdateForm(context *gin.Context) {
	form, found := h.ownedForm(context)
	if !found {
		return
	}

	var request updateFormRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}

	updates := map[string]any{}
	if request.Name != nil {
		trimmedName := strings.TrimSpace(*request.Name)
		if trimmedName == "" {
			context.JSON(400, gin.H{"error": "invalid_form"})
			return
		}
		updates["name"] = trimmedName
	}
	if request.Status != nil {
		nextStatus, transitionErr := form.TransitionStatus(*request.Status)
		if transitionErr != nil {
			if errors.Is(transitionErr, model.ErrFormRevokedTerminal) {
				context.JSON(409, gin.H{"error": "form_revoked_terminal"})
				return
			}
			context.JSON(400, gin.H{"error": "invalid_status"})
			return
		}
		updates["status"] = nextStatus
	}
	if request.Settings != nil {
		encodedSettings, encodeErr := model.EncodeFormSettings(*request.Settings)
		if encodeErr != nil {
			context.JSON(400, gin.H{"error": "invalid_settings"})
			return
		}
		updates["settings"] = encodedSettings
	}
	if len(updates) == 0 {
		context.JSON(400, gin.H{"error": "nothing_to_update"})
		return
	}

	if saveErr := h.database.Model(&model.Form{}).Where("id = ?", form.ID).Updates(updates).Error; saveErr != nil {
		h.logger.Error("update_form", zap.Error(saveErr), zap.String("form_id", form.ID))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	var updated model.Form
	if findErr := h.database.First(&updated, "id = ?", form.ID).Error; findErr != nil {
		context.JSON(500, gin.H{"error": "query_failed"})
		return
	}
	context.JSON(200, buildFormResponse(updated))
}

// DeleteForm handles DELETE /api/v1/forms/:formID. Submissions and webhooks of
// the form are removed with it.
func (h *FormHandlers) DeleteForm(context *gin.Context) {
	form, found := h.ownedForm(context)
	if !found {
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
		h.logger.Error("delete_form", zap.Error(deleteErr), zap.String("form_id", form.ID))
		context.JSON(500, gin.H{"error": "delete_failed"})
		return
	}
	context.JSON(200, gin.H{"deleted": true})
}

// ownedForm loads the path form and enforces ownership. A form owned by someone
// else is reported as missing, not forbidden, to avoid leaking form IDs.
func (h *FormHandlers) ownedForm(context *gin.Context) (model.Form, bool) {
	formID := strings.TrimSpace(context.Param("formID"))
	var form model.Form
	if findErr := h.database.First(&form, "id = ?", formID).Error; findErr != nil {
		context.JSON(404, gin.H{"error": "form_not_found"})
		return model.Form{}, false
	}
	if form.OwnerID != CurrentUserID(context) {
		context.JSON(404, gin.H{"error": "form_not_found"})
		return model.Form{}, false
	}
	return form, true
}
