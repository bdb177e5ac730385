package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/auth"
	"github.com/formvibe/formvibe/internal/httpapi"
	"github.com/formvibe/formvibe/internal/model"
	"github.com/formvibe/formvibe/internal/storage"
	"github.com/formvibe/formvibe/internal/testutil"
	"github.com/formvibe/formvibe/internal/webhook"
)

const (
	testInternalSecret = "internal-test-secret"
	testTokenSecret    = "token-test-secret"
	testUserPassword   = "correct-horse-battery"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	database, openErr := storage.OpenDatabase(testutil.NewSQLiteTestDatabase(t).Configuration())
	require.NoError(t, openErr)
	require.NoError(t, storage.AutoMigrate(database))
	return testutil.ConfigureDatabaseLogger(t, database)
}

func newTestTokenManager(t *testing.T) *auth.TokenManager {
	t.Helper()
	manager, managerErr := auth.NewTokenManager(testTokenSecret, time.Hour)
	require.NoError(t, managerErr)
	return manager
}

func createTestUser(t *testing.T, database *gorm.DB, email string, role string) model.User {
	t.Helper()
	passwordHash, hashErr := auth.HashPassword(testUserPassword)
	require.NoError(t, hashErr)
	account, accountErr := model.NewUser(model.UserInput{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	})
	require.NoError(t, accountErr)
	require.NoError(t, database.Create(&account).Error)
	return account
}

func sessionTokenFor(t *testing.T, manager *auth.TokenManager, account model.User) string {
	t.Helper()
	token, tokenErr := manager.IssueToken(account.ID, account.Email, account.Role)
	require.NoError(t, tokenErr)
	return token
}

func createTestForm(t *testing.T, database *gorm.DB, ownerID string, status string, settings model.FormSettings) model.Form {
	t.Helper()
	form, formErr := model.NewForm(model.FormInput{
		OwnerID:  ownerID,
		Name:     "Contact form",
		Status:   status,
		Settings: settings,
	})
	require.NoError(t, formErr)
	require.NoError(t, database.Create(&form).Error)
	return form
}

func createTestWebhook(t *testing.T, database *gorm.DB, formID string, destinationURL string, secret string) model.Webhook {
	t.Helper()
	registered, webhookErr := model.NewWebhook(model.WebhookInput{
		FormID: formID,
		URL:    destinationURL,
		Secret: secret,
	})
	require.NoError(t, webhookErr)
	require.NoError(t, database.Create(&registered).Error)
	return registered
}

func newProcessor(database *gorm.DB) *httpapi.InternalSubmitHandlers {
	dispatcher := webhook.NewDispatcher(zap.NewNop(), time.Second)
	return httpapi.NewInternalSubmitHandlers(database, zap.NewNop(), testInternalSecret, dispatcher)
}

func newIngestRouter(database *gorm.DB, configuration httpapi.IngestConfig) *gin.Engine {
	if configuration.Forwarder == nil {
		configuration.Forwarder = httpapi.NewLocalForwarder(newProcessor(database))
	}
	ingest := httpapi.NewIngestHandlers(database, zap.NewNop(), configuration)
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoMethod(ingest.MethodNotAllowed)
	router.POST("/api/f/:formID", ingest.Submit)
	router.OPTIONS("/api/f/:formID", ingest.SubmitOptions)
	return router
}

func newAPIRouter(t *testing.T, database *gorm.DB) *gin.Engine {
	t.Helper()
	tokenManager := newTestTokenManager(t)
	router := gin.New()

	authHandlers := httpapi.NewAuthHandlers(database, zap.NewNop(), tokenManager)
	router.POST("/api/auth/register", authHandlers.Register)
	router.POST("/api/auth/login", authHandlers.Login)

	formHandlers := httpapi.NewFormHandlers(database, zap.NewNop())
	submissionHandlers := httpapi.NewSubmissionHandlers(database, zap.NewNop())
	webhookHandlers := httpapi.NewWebhookHandlers(database, zap.NewNop())
	apiKeyHandlers := httpapi.NewAPIKeyHandlers(database, zap.NewNop())
	analyticsHandlers := httpapi.NewAnalyticsHandlers(database, zap.NewNop())

	apiGroup := router.Group("/api/v1")
	apiGroup.Use(httpapi.RequireAPIAuth(database, tokenManager, zap.NewNop()))
	apiGroup.GET("/forms", formHandlers.ListForms)
	apiGroup.POST("/forms", formHandlers.CreateForm)
	apiGroup.GET("/forms/:formID", formHandlers.GetForm)
	apiGroup.PATCH("/forms/:formID", formHandlers.UpdateForm)
	apiGroup.DELETE("/forms/:formID", formHandlers.DeleteForm)
	apiGroup.GET("/forms/:formID/submissions", submissionHandlers.ListSubmissions)
	apiGroup.PATCH("/forms/:formID/submissions/:submissionID", submissionHandlers.UpdateSubmission)
	apiGroup.DELETE("/forms/:formID/submissions/:submissionID", submissionHandlers.DeleteSubmission)
	apiGroup.GET("/forms/:formID/webhooks", webhookHandlers.ListWebhooks)
	apiGroup.POST("/forms/:formID/webhooks", webhookHandlers.CreateWebhook)
	apiGroup.PATCH("/forms/:formID/webhooks/:webhookID", webhookHandlers.UpdateWebhook)
	apiGroup.DELETE("/forms/:formID/webhooks/:webhookID", webhookHandlers.DeleteWebhook)
	apiGroup.GET("/developer/keys", apiKeyHandlers.ListKeys)
	apiGroup.POST("/developer/keys", apiKeyHandlers.CreateKey)
	apiGroup.DELETE("/developer/keys/:keyID", apiKeyHandlers.RevokeKey)
	apiGroup.GET("/analytics", analyticsHandlers.Overview)

	adminHandlers := httpapi.NewAdminHandlers(database, zap.NewNop())
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(httpapi.RequireAPIAuth(database, tokenManager, zap.NewNop()))
	adminGroup.Use(httpapi.RequireAdmin())
	adminGroup.GET("/users", adminHandlers.ListUsers)
	adminGroup.POST("/users/:userID/block", adminHandlers.BlockUser)
	adminGroup.POST("/users/:userID/unblock", adminHandlers.UnblockUser)
	adminGroup.POST("/users/:userID/role", adminHandlers.ChangeRole)
	adminGroup.GET("/forms", adminHandlers.ListAllForms)
	adminGroup.DELETE("/forms/:formID", adminHandlers.DeleteForm)
	adminGroup.DELETE("/keys/:keyID", adminHandlers.RevokeAPIKey)
	adminGroup.GET("/stats", adminHandlers.PlatformStats)
	adminGroup.GET("/audit-logs", adminHandlers.ListAuditLogs)

	return router
}

func performJSONRequest(router *gin.Engine, method string, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var requestBody bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&requestBody).Encode(body)
	}
	request := httptest.NewRequest(method, target, &requestBody)
	request.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeJSONBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	decoded := map[string]any{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	return decoded
}

func requireStatus(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	require.Equal(t, expected, recorder.Code, recorder.Body.String())
}
