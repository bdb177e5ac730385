package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/formvibe/formvibe/internal/httpapi"
	"github.com/formvibe/formvibe/internal/model"
	"github.com/formvibe/formvibe/internal/ratelimit"
)

func TestSubmitRejectsUnsupportedContentType(t *testing.T) {
	database := openTestDatabase(t)
	router := newIngestRouter(database, httpapi.IngestConfig{})

	request := httptest.NewRequest(http.MethodPost, "/api/f/anything", strings.NewReader("<xml/>"))
	request.Header.Set("Content-Type", "text/xml")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	requireStatus(t, recorder, 415)
}

func TestSubmitRejectsOversizedDeclaredBody(t *testing.T) {
	database := openTestDatabase(t)
	router := newIngestRouter(database, httpapi.IngestConfig{})

	request := httptest.NewRequest(http.MethodPost, "/api/f/anything", strings.NewReader("{}"))
	request.Header.Set("Content-Type", "application/json")
	request.ContentLength = httpapi.MaxPayloadBytes + 1
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	requireStatus(t, recorder, 413)
}

func TestSubmitRejectsOversizedActualBody(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	oversizedBody := `{"message":"` + strings.Repeat("a", httpapi.MaxPayloadBytes+1) + `"}`
	request := httptest.NewRequest(http.MethodPost, "/api/f/"+form.ID, strings.NewReader(oversizedBody))
	request.Header.Set("Content-Type", "application/json")
	request.ContentLength = 128
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	requireStatus(t, recorder, 413)
}

func TestSubmitRejectsMalformedFormID(t *testing.T) {
	database := openTestDatabase(t)
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/not-a-uuid", map[string]string{"message": "hi"}, nil)

	requireStatus(t, recorder, 400)
	require.Equal(t, "invalid_form_id", decodeJSONBody(t, recorder)["error"])
}

func TestSubmitRejectsUnknownForm(t *testing.T) {
	database := openTestDatabase(t)
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/7b9b0efc-9d1a-4f1c-a6a8-59c6f0a8f9a1", map[string]string{"message": "hi"}, nil)

	requireStatus(t, recorder, 404)
}

func TestSubmitRejectsRevokedFormWithCode(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusRevoked, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)

	requireStatus(t, recorder, 403)
	require.Equal(t, "FORM_REVOKED", decodeJSONBody(t, recorder)["code"])
}

func TestSubmitRejectsPausedFormThroughProcessor(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusPaused, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)

	requireStatus(t, recorder, 403)
	require.Contains(t, decodeJSONBody(t, recorder)["error"], "paused")

	var count int64
	require.NoError(t, database.Model(&model.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmitHoneypotPretendsSuccessWithoutPersisting(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{
		"message": "hi",
		"_gotcha": "bot-filled-this",
	}, nil)

	requireStatus(t, recorder, 200)
	require.Equal(t, true, decodeJSONBody(t, recorder)["success"])

	var count int64
	require.NoError(t, database.Model(&model.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmitPersistsPayloadWithoutDirectives(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{
		"message":  "hello there",
		"email":    "sender@example.com",
		"_next":    "https://example.com/after",
		"_subject": "New enquiry",
		"_replyto": "reply@example.com",
	}, map[string]string{"Accept": "application/json"})

	requireStatus(t, recorder, 200)
	body := decodeJSONBody(t, recorder)
	require.Equal(t, true, body["success"])
	require.Equal(t, "https://example.com/after", body["redirect"])

	var stored model.Submission
	require.NoError(t, database.First(&stored, "form_id = ?", form.ID).Error)
	payload := stored.ParsedPayload()
	require.Equal(t, "hello there", payload["message"])
	require.NotContains(t, payload, "_next")
	require.NotContains(t, payload, "_subject")

	metadata := stored.ParsedMetadata()
	require.Equal(t, "New enquiry", metadata.SubjectOverride)
	require.Equal(t, "reply@example.com", metadata.ReplyTo)
	require.False(t, metadata.TestMode)
	require.Equal(t, model.SubmissionStatusUnread, stored.Status)
}

func TestSubmitJSONResponseWithoutRedirectIsNull(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{
		"message": "hi",
	}, map[string]string{"Accept": "application/json"})

	requireStatus(t, recorder, 200)
	body := decodeJSONBody(t, recorder)
	require.Contains(t, body, "redirect")
	require.Nil(t, body["redirect"])
}

func TestSubmitDashboardSuccessURLWinsOverNextDirective(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{
		SuccessURL: "https://configured.example.com/thanks",
	})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{
		"message": "hi",
		"_next":   "https://attacker.example.com/phish",
	}, map[string]string{"Accept": "application/json"})

	requireStatus(t, recorder, 200)
	require.Equal(t, "https://configured.example.com/thanks", decodeJSONBody(t, recorder)["redirect"])
}

func TestSubmitFormPostRedirectsWithSeeOther(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	values := url.Values{}
	values.Set("message", "from a plain html form")
	values.Set("_next", "https://example.com/after")
	request := httptest.NewRequest(http.MethodPost, "/api/f/"+form.ID, strings.NewReader(values.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	requireStatus(t, recorder, 303)
	require.Equal(t, "https://example.com/after", recorder.Header().Get("Location"))
}

func TestSubmitMalformedRedirectFallsBackToThanksPage(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{PublicBaseURL: "https://forms.example.com"})

	values := url.Values{}
	values.Set("message", "hi")
	values.Set("_next", "javascript:alert(1)")
	request := httptest.NewRequest(http.MethodPost, "/api/f/"+form.ID, strings.NewReader(values.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	requireStatus(t, recorder, 303)
	require.Equal(t, "https://forms.example.com/thanks", recorder.Header().Get("Location"))
}

func TestSubmitRateLimitReturns429(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{
		Limiter: ratelimit.NewMemoryLimiter(2, time.Minute),
	})

	for attempt := 0; attempt < 2; attempt++ {
		recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)
		requireStatus(t, recorder, 200)
	}

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)
	requireStatus(t, recorder, 429)
}

type failingLimiter struct{}

func (failingLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return false, errors.New("backend down")
}

func TestSubmitLimiterOutagePolicyAllow(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{
		Limiter:       failingLimiter{},
		LimiterPolicy: ratelimit.PolicyAllow,
	})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)
	requireStatus(t, recorder, 200)
}

func TestSubmitLimiterOutagePolicyDeny(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{
		Limiter:       failingLimiter{},
		LimiterPolicy: ratelimit.PolicyDeny,
	})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)
	requireStatus(t, recorder, 429)
}

func TestSubmitTestModeFormFlagsMetadata(t *testing.T) {
	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusTestMode, model.FormSettings{})
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)
	requireStatus(t, recorder, 200)

	var stored model.Submission
	require.NoError(t, database.First(&stored, "form_id = ?", form.ID).Error)
	require.True(t, stored.ParsedMetadata().TestMode)
}

func TestSubmitTriggersActiveWebhooks(t *testing.T) {
	var deliveries atomic.Int32
	destination := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		deliveries.Add(1)
		writer.WriteHeader(http.StatusOK)
	}))
	defer destination.Close()

	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	createTestWebhook(t, database, form.ID, destination.URL, "whsec_testsecret")
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)
	requireStatus(t, recorder, 200)

	require.Eventually(t, func() bool {
		return deliveries.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitIgnoresDisabledWebhooks(t *testing.T) {
	var deliveries atomic.Int32
	destination := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		deliveries.Add(1)
		writer.WriteHeader(http.StatusOK)
	}))
	defer destination.Close()

	database := openTestDatabase(t)
	owner := createTestUser(t, database, "owner@example.com", model.UserRoleUser)
	form := createTestForm(t, database, owner.ID, model.FormStatusActive, model.FormSettings{})
	disabled := createTestWebhook(t, database, form.ID, destination.URL, "whsec_testsecret")
	require.NoError(t, database.Model(&model.Webhook{}).
		Where("id = ?", disabled.ID).
		Update("status", model.WebhookStatusDisabled).Error)
	router := newIngestRouter(database, httpapi.IngestConfig{})

	recorder := performJSONRequest(router, http.MethodPost, "/api/f/"+form.ID, map[string]string{"message": "hi"}, nil)
	requireStatus(t, recorder, 200)

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, deliveries.Load())
}

func TestSubmitMethodNotAllowed(t *testing.T) {
	database := openTestDatabase(t)
	router := newIngestRouter(database, httpapi.IngestConfig{})

	request := httptest.NewRequest(http.MethodGet, "/api/f/7b9b0efc-9d1a-4f1c-a6a8-59c6f0a8f9a1", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	requireStatus(t, recorder, 405)
}

func TestSubmitOptionsAnswersPreflight(t *testing.T) {
	database := openTestDatabase(t)
	router := newIngestRouter(database, httpapi.IngestConfig{})

	request := httptest.NewRequest(http.MethodOptions, "/api/f/7b9b0efc-9d1a-4f1c-a6a8-59c6f0a8f9a1", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	requireStatus(t, recorder, 204)
	require.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}
