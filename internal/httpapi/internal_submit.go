package httpapi

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/model"
	"github.com/formvibe/formvibe/internal/webhook"
)

const (
	// HeaderInternalSecret authenticates the trusted forwarding channel
	// between the public ingest edge and the internal processor.
	HeaderInternalSecret = "x-vibe-secret"

	// ErrorCodeFormRevoked is the machine-readable code carried by
	// rejections for terminally revoked forms.
	ErrorCodeFormRevoked = "FORM_REVOKED"

	directiveFieldPrefix   = "_"
	directiveFieldNext     = "_next"
	directiveFieldSubject  = "_subject"
	directiveFieldReplyTo  = "_replyto"
	directiveFieldFormat   = "_format"
	directiveFormatJSON    = "json"
	payloadFieldEmail      = "email"
	payloadFieldEmailUpper = "Email"
)

// SubmitMetadata is the request-derived context forwarded by the ingest edge.
type SubmitMetadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"ua,omitempty"`
	Geo       string `json:"geo,omitempty"`
}

// SubmitRequest is the body of the trusted internal forwarding call.
type SubmitRequest struct {
	FormID   string            `json:"formId"`
	Payload  map[string]string `json:"payload"`
	Metadata SubmitMetadata    `json:"metadata"`
}

// SubmitResult is the processor's answer on the happy path.
type SubmitResult struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// SubmitRejection describes a non-success processor outcome.
type SubmitRejection struct {
	StatusCode   int
	ErrorCode    string
	ErrorMessage string
}

// InternalSubmitHandlers serves the trusted-only submission processor.
type InternalSubmitHandlers struct {
	database       *gorm.DB
	logger         *zap.Logger
	internalSecret string
	dispatcher     *webhook.Dispatcher
}

// NewInternalSubmitHandlers constructs an InternalSubmitHandlers instance.
func NewInternalSubmitHandlers(database *gorm.DB, logger *zap.Logger, internalSecret string, dispatcher *webhook.Dispatcher) *InternalSubmitHandlers {
	return &InternalSubmitHandlers{
		database:       database,
		logger:         logger,
		internalSecret: strings.TrimSpace(internalSecret),
		dispatcher:     dispatcher,
	}
}

// ProcessSubmission handles POST /api/internal/submit. A secret mismatch is an
// unconditional 401 before any other processing.
func (h *InternalSubmitHandlers) ProcessSubmission(context *gin.Context) {
	providedSecret := context.GetHeader(HeaderInternalSecret)
	if h.internalSecret == "" || subtle.ConstantTimeCompare([]byte(providedSecret), []byte(h.internalSecret)) != 1 {
		context.JSON(401, gin.H{"error": "unauthorized"})
		return
	}

	var request SubmitRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}

	result, rejection := h.Process(request)
	if rejection != nil {
		body := gin.H{"error": rejection.ErrorMessage}
		if rejection.ErrorCode != "" {
			body["code"] = rejection.ErrorCode
		}
		context.JSON(rejection.StatusCode, body)
		return
	}

	context.JSON(200, result)
}

// Process persists one submission and triggers side effects. It re-checks the
// form status even though the public edge already did: other internal callers
// must not be trusted to have done so.
func (h *InternalSubmitHandlers) Process(request SubmitRequest) (SubmitResult, *SubmitRejection) {
	formID := strings.TrimSpace(request.FormID)
	if formID == "" {
		return SubmitResult{}, &SubmitRejection{StatusCode: 400, ErrorMessage: "missing_form_id"}
	}

	var form model.Form
	if findErr := h.database.First(&form, "id = ?", formID).Error; findErr != nil {
		return SubmitResult{}, &SubmitRejection{StatusCode: 404, ErrorMessage: "form_not_found"}
	}

	if form.Status == model.FormStatusRevoked {
		return SubmitResult{}, &SubmitRejection{
			StatusCode:   403,
			ErrorCode:    ErrorCodeFormRevoked,
			ErrorMessage: "This form has been revoked and is no longer accepting submissions.",
		}
	}
	if form.Status == model.FormStatusPaused {
		return SubmitResult{}, &SubmitRejection{
			StatusCode:   403,
			ErrorMessage: "This form is currently paused and not accepting submissions.",
		}
	}

	userPayload, directives := SeparateDirectives(request.Payload)
	if len(userPayload) == 0 {
		return SubmitResult{}, &SubmitRejection{StatusCode: 400, ErrorMessage: "empty_payload"}
	}

	redirectURL := resolveRedirectURL(form, directives[directiveFieldNext])

	submission, submissionErr := model.NewSubmission(model.SubmissionInput{
		FormID:  form.ID,
		Payload: userPayload,
		Metadata: model.SubmissionMetadata{
			IP:              request.Metadata.IP,
			UserAgent:       request.Metadata.UserAgent,
			Geo:             request.Metadata.Geo,
			TestMode:        form.Status == model.FormStatusTestMode,
			SubjectOverride: strings.TrimSpace(directives[directiveFieldSubject]),
			ReplyTo:         resolveReplyTo(directives, userPayload),
		},
	})
	if submissionErr != nil {
		h.logger.Warn("build_submission", zap.Error(submissionErr), zap.String("form_id", form.ID))
		return SubmitResult{}, &SubmitRejection{StatusCode: 400, ErrorMessage: "invalid_payload"}
	}

	if saveErr := h.database.Create(&submission).Error; saveErr != nil {
		h.logger.Error("save_submission", zap.Error(saveErr), zap.String("form_id", form.ID))
		return SubmitResult{}, &SubmitRejection{StatusCode: 500, ErrorMessage: "failed_to_process_submission"}
	}

	h.triggerWebhooks(form, submission)

	return SubmitResult{Success: true, RedirectURL: redirectURL}, nil
}

// triggerWebhooks hands active webhooks to the dispatcher without waiting for
// delivery. Lookup failures are logged and swallowed: a broken webhook
// subsystem must never fail the submission itself.
func (h *InternalSubmitHandlers) triggerWebhooks(form model.Form, submission model.Submission) {
	if h.dispatcher == nil {
		return
	}

	var activeWebhooks []model.Webhook
	lookupErr := h.database.
		Where("form_id = ? AND status = ?", form.ID, model.WebhookStatusActive).
		Find(&activeWebhooks).Error
	if lookupErr != nil {
		h.logger.Warn("webhook_lookup_failed", zap.Error(lookupErr), zap.String("form_id", form.ID))
		return
	}
	if len(activeWebhooks) == 0 {
		return
	}

	h.dispatcher.Dispatch(activeWebhooks, webhook.NewSubmissionCreatedEvent(submission))
}

// SeparateDirectives splits underscore-prefixed directive fields from the
// user payload. Directive values never reach the persisted payload.
func SeparateDirectives(payload map[string]string) (map[string]string, map[string]string) {
	userPayload := make(map[string]string, len(payload))
	directives := make(map[string]string)
	for key, value := range payload {
		if strings.HasPrefix(key, directiveFieldPrefix) {
			directives[key] = value
			continue
		}
		userPayload[key] = value
	}
	return userPayload, directives
}

// resolveRedirectURL applies the redirect precedence: the dashboard-configured
// success URL wins over the form-embedded _next directive, so arbitrary markup
// cannot silently override the owner's configuration.
func resolveRedirectURL(form model.Form, nextDirective string) string {
	if configuredURL := form.SuccessRedirectURL(); configuredURL != "" {
		return configuredURL
	}
	return strings.TrimSpace(nextDirective)
}

func resolveReplyTo(directives map[string]string, userPayload map[string]string) string {
	if replyTo := strings.TrimSpace(directives[directiveFieldReplyTo]); replyTo != "" {
		return replyTo
	}
	if email := strings.TrimSpace(userPayload[payloadFieldEmail]); email != "" {
		return email
	}
	return strings.TrimSpace(userPayload[payloadFieldEmailUpper])
}
