package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/geo"
	"github.com/formvibe/formvibe/internal/model"
	"github.com/formvibe/formvibe/internal/ratelimit"
)

const (
	// MaxPayloadBytes caps the accepted submission body.
	MaxPayloadBytes = 64 * 1024

	// DefaultThanksPath is where non-JSON callers land when no success URL
	// is configured or the configured one is unusable.
	DefaultThanksPath = "/thanks"

	honeypotFieldName = "_gotcha"

	contentTypeJSON       = "application/json"
	contentTypeURLEncoded = "application/x-www-form-urlencoded"
	contentTypeMultipart  = "multipart/form-data"

	submissionSuccessMessage = "Submission successful"
)

// IngestHandlers serves the public submission endpoint. It validates and
// normalizes the request, then forwards it to the internal processor over the
// trusted channel; it never persists anything itself.
type IngestHandlers struct {
	database      *gorm.DB
	logger        *zap.Logger
	limiter       ratelimit.Limiter
	limiterPolicy ratelimit.Policy
	geoResolver   geo.Resolver
	forwarder     SubmissionForwarder
	defaultThanks string
}

// IngestConfig captures the ingest endpoint's collaborators and policy knobs.
type IngestConfig struct {
	Limiter       ratelimit.Limiter
	LimiterPolicy ratelimit.Policy
	GeoResolver   geo.Resolver
	Forwarder     SubmissionForwarder
	PublicBaseURL string
}

// NewIngestHandlers constructs an IngestHandlers instance.
func NewIngestHandlers(database *gorm.DB, logger *zap.Logger, configuration IngestConfig) *IngestHandlers {
	geoResolver := configuration.GeoResolver
	if geoResolver == nil {
		geoResolver = geo.NoopResolver{}
	}
	defaultThanks := DefaultThanksPath
	if trimmedBase := strings.TrimRight(strings.TrimSpace(configuration.PublicBaseURL), "/"); trimmedBase != "" {
		defaultThanks = trimmedBase + DefaultThanksPath
	}
	return &IngestHandlers{
		database:      database,
		logger:        logger,
		limiter:       configuration.Limiter,
		limiterPolicy: configuration.LimiterPolicy,
		geoResolver:   geoResolver,
		forwarder:     configuration.Forwarder,
		defaultThanks: defaultThanks,
	}
}

// SubmitOptions answers CORS preflight for cross-origin form posts.
func (h *IngestHandlers) SubmitOptions(context *gin.Context) {
	context.Header("Access-Control-Allow-Origin", "*")
	context.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	context.Header("Access-Control-Allow-Headers", "Content-Type, Accept")
	context.Status(204)
}

// MethodNotAllowed answers every verb other than POST and OPTIONS.
func (h *IngestHandlers) MethodNotAllowed(context *gin.Context) {
	context.JSON(405, gin.H{"error": "method_not_allowed"})
}

// Submit handles POST /api/f/:formID. Validation short-circuits on the first
// failure, in a fixed order; see the numbered steps inline.
func (h *IngestHandlers) Submit(context *gin.Context) {
	// 1. Content type.
	contentType := context.GetHeader("Content-Type")
	if !isAcceptedContentType(contentType) {
		context.JSON(415, gin.H{"error": "unsupported_media_type"})
		return
	}

	// 2. Declared size. The header is untrustworthy, so the parsed payload
	// is measured again below.
	if context.Request.ContentLength > MaxPayloadBytes {
		context.JSON(413, gin.H{"error": "payload_too_large"})
		return
	}

	// 3. Identifier shape.
	formID := strings.TrimSpace(context.Param("formID"))
	if _, parseErr := uuid.Parse(formID); parseErr != nil {
		context.JSON(400, gin.H{"error": "invalid_form_id"})
		return
	}

	// 4. Form existence and terminal revocation. Paused forms are rejected
	// by the processor so every internal caller hits the same check.
	var form model.Form
	if findErr := h.database.First(&form, "id = ?", formID).Error; findErr != nil {
		context.JSON(404, gin.H{"error": "form_not_found"})
		return
	}
	if form.Status == model.FormStatusRevoked {
		context.JSON(403, gin.H{
			"error": "This form has been revoked and is no longer accepting submissions.",
			"code":  ErrorCodeFormRevoked,
		})
		return
	}

	// 5. Rate limit per (form, client IP). When the limiter backend is
	// unavailable the configured policy decides; allow keeps the endpoint
	// available at the cost of a burst slipping through.
	clientIP := context.ClientIP()
	if h.limiter != nil {
		allowed, limitErr := h.limiter.Allow(context.Request.Context(), formID+":"+clientIP)
		if limitErr != nil {
			h.logger.Warn("rate_limiter_unavailable", zap.Error(limitErr), zap.String("form_id", formID))
			if h.limiterPolicy == ratelimit.PolicyDeny {
				context.JSON(429, gin.H{"error": "too_many_submissions"})
				return
			}
		} else if !allowed {
			context.JSON(429, gin.H{"error": "too_many_submissions"})
			return
		}
	}

	// 6. Parse the body into a flat key/value map. A body that overruns the
	// read limit is oversized, not malformed.
	payload, parseErr := h.parsePayload(context, contentType)
	if parseErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(parseErr, &tooLarge) {
			context.JSON(413, gin.H{"error": "payload_too_large"})
			return
		}
		context.JSON(400, gin.H{"error": "invalid_payload"})
		return
	}
	if oversized, sizeErr := payloadExceedsLimit(payload); sizeErr != nil {
		context.JSON(400, gin.H{"error": "invalid_payload"})
		return
	} else if oversized {
		context.JSON(413, gin.H{"error": "payload_too_large"})
		return
	}

	// 7. Honeypot. Bots are told they succeeded so they stop retrying;
	// nothing is persisted and no side effects fire.
	if strings.TrimSpace(payload[honeypotFieldName]) != "" {
		context.JSON(200, gin.H{"success": true, "message": submissionSuccessMessage})
		return
	}

	wantsJSON := callerWantsJSON(context, payload)

	// 8-9. Forward to the internal processor with derived metadata.
	forwardResponse, forwardErr := h.forwarder.Forward(context.Request.Context(), SubmitRequest{
		FormID:  formID,
		Payload: payload,
		Metadata: SubmitMetadata{
			IP:        clientIP,
			UserAgent: context.Request.UserAgent(),
			Geo:       h.geoResolver.CountryCode(clientIP),
		},
	})
	if forwardErr != nil {
		h.logger.Error("forward_submission", zap.Error(forwardErr), zap.String("form_id", formID))
		context.JSON(500, gin.H{"error": "failed_to_process_submission"})
		return
	}
	if !forwardResponse.Success {
		body := gin.H{"error": forwardResponse.ErrorMessage}
		if forwardResponse.ErrorCode != "" {
			body["code"] = forwardResponse.ErrorCode
		}
		context.JSON(forwardResponse.StatusCode, body)
		return
	}

	// 10. JSON callers get the redirect embedded; everyone else gets a 303.
	if wantsJSON {
		var redirectValue any
		if forwardResponse.RedirectURL != "" {
			redirectValue = forwardResponse.RedirectURL
		}
		context.JSON(200, gin.H{
			"success":  true,
			"message":  submissionSuccessMessage,
			"redirect": redirectValue,
		})
		return
	}
	context.Redirect(303, h.safeRedirectTarget(forwardResponse.RedirectURL))
}

func (h *IngestHandlers) parsePayload(context *gin.Context, contentType string) (map[string]string, error) {
	limitedBody := http.MaxBytesReader(context.Writer, context.Request.Body, MaxPayloadBytes)
	context.Request.Body = limitedBody

	switch {
	case strings.Contains(contentType, contentTypeJSON):
		return parseJSONPayload(context)
	case strings.Contains(contentType, contentTypeMultipart):
		if parseErr := context.Request.ParseMultipartForm(MaxPayloadBytes); parseErr != nil {
			return nil, parseErr
		}
		return flattenFormValues(context.Request.MultipartForm.Value), nil
	default:
		if parseErr := context.Request.ParseForm(); parseErr != nil {
			return nil, parseErr
		}
		return flattenFormValues(context.Request.PostForm), nil
	}
}

func parseJSONPayload(context *gin.Context) (map[string]string, error) {
	var rawPayload map[string]any
	decoder := json.NewDecoder(context.Request.Body)
	if decodeErr := decoder.Decode(&rawPayload); decodeErr != nil {
		return nil, decodeErr
	}

	payload := make(map[string]string, len(rawPayload))
	for key, value := range rawPayload {
		switch typedValue := value.(type) {
		case string:
			payload[key] = typedValue
		case nil:
			payload[key] = ""
		default:
			encoded, encodeErr := json.Marshal(typedValue)
			if encodeErr != nil {
				return nil, encodeErr
			}
			payload[key] = string(encoded)
		}
	}
	return payload, nil
}

func flattenFormValues(values url.Values) map[string]string {
	payload := make(map[string]string, len(values))
	for key := range values {
		payload[key] = values.Get(key)
	}
	return payload
}

// payloadExceedsLimit re-measures the payload after parsing because the
// declared content length may under-report.
func payloadExceedsLimit(payload map[string]string) (bool, error) {
	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return false, encodeErr
	}
	return len(encoded) > MaxPayloadBytes, nil
}

func isAcceptedContentType(contentType string) bool {
	for _, accepted := range []string{contentTypeJSON, contentTypeURLEncoded, contentTypeMultipart} {
		if strings.Contains(contentType, accepted) {
			return true
		}
	}
	return false
}

func callerWantsJSON(context *gin.Context, payload map[string]string) bool {
	if strings.Contains(context.GetHeader("Accept"), contentTypeJSON) {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(payload[directiveFieldFormat]), directiveFormatJSON)
}

// safeRedirectTarget validates the resolved redirect; a malformed target must
// never crash the handler, it falls back to the default thanks page.
func (h *IngestHandlers) safeRedirectTarget(rawRedirectURL string) string {
	trimmedURL := strings.TrimSpace(rawRedirectURL)
	if trimmedURL == "" {
		return h.defaultThanks
	}
	parsedURL, parseErr := url.Parse(trimmedURL)
	if parseErr != nil {
		return h.defaultThanks
	}
	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		return h.defaultThanks
	}
	if strings.TrimSpace(parsedURL.Host) == "" {
		return h.defaultThanks
	}
	return trimmedURL
}
