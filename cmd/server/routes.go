package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/auth"
	"github.com/formvibe/formvibe/internal/httpapi"
)

const (
	corsOriginWildcard      = "*"
	corsHeaderAuthorization = "Authorization"
	corsHeaderContentType   = "Content-Type"
	corsHeaderAccept        = "Accept"

	ingestRouteSubmit   = "/api/f/:formID"
	internalRouteSubmit = "/api/internal/submit"

	authRoutePrefix   = "/api/auth"
	authRouteRegister = "/register"
	authRouteLogin    = "/login"

	apiRoutePrefix             = "/api/v1"
	apiRouteForms              = "/forms"
	apiRouteFormByID           = "/forms/:formID"
	apiRouteFormSubmissions    = "/forms/:formID/submissions"
	apiRouteFormSubmissionByID = "/forms/:formID/submissions/:submissionID"
	apiRouteFormWebhooks       = "/forms/:formID/webhooks"
	apiRouteFormWebhookByID    = "/forms/:formID/webhooks/:webhookID"
	apiRouteDeveloperKeys      = "/developer/keys"
	apiRouteDeveloperKeyByID   = "/developer/keys/:keyID"
	apiRouteAnalytics          = "/analytics"

	adminRoutePrefix      = "/api/admin"
	adminRouteUsers       = "/users"
	adminRouteUserBlock   = "/users/:userID/block"
	adminRouteUserUnblock = "/users/:userID/unblock"
	adminRouteUserRole    = "/users/:userID/role"
	adminRouteForms       = "/forms"
	adminRouteFormByID    = "/forms/:formID"
	adminRouteKeyByID     = "/keys/:keyID"
	adminRouteStats       = "/stats"
	adminRouteAuditLogs   = "/audit-logs"
)

var (
	corsAllowedMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsAllowedHeaders = []string{corsHeaderAuthorization, corsHeaderContentType, corsHeaderAccept}
	corsExposedHeaders = []string{corsHeaderContentType}
)

type routeDependencies struct {
	database     *gorm.DB
	logger       *zap.Logger
	tokenManager *auth.TokenManager
	processor    *httpapi.InternalSubmitHandlers
	ingest       *httpapi.IngestHandlers
}

func registerRoutes(router *gin.Engine, dependencies routeDependencies) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(dependencies.ingest.MethodNotAllowed)

	router.POST(ingestRouteSubmit, dependencies.ingest.Submit)
	router.OPTIONS(ingestRouteSubmit, dependencies.ingest.SubmitOptions)

	router.POST(internalRouteSubmit, dependencies.processor.ProcessSubmission)

	authHandlers := httpapi.NewAuthHandlers(dependencies.database, dependencies.logger, dependencies.tokenManager)
	authGroup := router.Group(authRoutePrefix)
	authGroup.Use(newDashboardCORS())
	authGroup.POST(authRouteRegister, authHandlers.Register)
	authGroup.POST(authRouteLogin, authHandlers.Login)

	formHandlers := httpapi.NewFormHandlers(dependencies.database, dependencies.logger)
	submissionHandlers := httpapi.NewSubmissionHandlers(dependencies.database, dependencies.logger)
	webhookHandlers := httpapi.NewWebhookHandlers(dependencies.database, dependencies.logger)
	apiKeyHandlers := httpapi.NewAPIKeyHandlers(dependencies.database, dependencies.logger)
	analyticsHandlers := httpapi.NewAnalyticsHandlers(dependencies.database, dependencies.logger)

	apiGroup := router.Group(apiRoutePrefix)
	apiGroup.Use(newDashboardCORS())
	apiGroup.Use(httpapi.RequireAPIAuth(dependencies.database, dependencies.tokenManager, dependencies.logger))
	apiGroup.GET(apiRouteForms, formHandlers.ListForms)
	apiGroup.POST(apiRouteForms, formHandlers.CreateForm)
	apiGroup.GET(apiRouteFormByID, formHandlers.GetForm)
	apiGroup.PATCH(apiRouteFormByID, formHandlers.UpdateForm)
	apiGroup.DELETE(apiRouteFormByID, formHandlers.DeleteForm)
	apiGroup.GET(apiRouteFormSubmissions, submissionHandlers.ListSubmissions)
	apiGroup.PATCH(apiRouteFormSubmissionByID, submissionHandlers.UpdateSubmission)
	apiGroup.DELETE(apiRouteFormSubmissionByID, submissionHandlers.DeleteSubmission)
	apiGroup.GET(apiRouteFormWebhooks, webhookHandlers.ListWebhooks)
	apiGroup.POST(apiRouteFormWebhooks, webhookHandlers.CreateWebhook)
	apiGroup.PATCH(apiRouteFormWebhookByID, webhookHandlers.UpdateWebhook)
	apiGroup.DELETE(apiRouteFormWebhookByID, webhookHandlers.DeleteWebhook)
	apiGroup.GET(apiRouteDeveloperKeys, apiKeyHandlers.ListKeys)
	apiGroup.POST(apiRouteDeveloperKeys, apiKeyHandlers.CreateKey)
	apiGroup.DELETE(apiRouteDeveloperKeyByID, apiKeyHandlers.RevokeKey)
	apiGroup.GET(apiRouteAnalytics, analyticsHandlers.Overview)

	adminHandlers := httpapi.NewAdminHandlers(dependencies.database, dependencies.logger)
	adminGroup := router.Group(adminRoutePrefix)
	adminGroup.Use(newDashboardCORS())
	adminGroup.Use(httpapi.RequireAPIAuth(dependencies.database, dependencies.tokenManager, dependencies.logger))
	adminGroup.Use(httpapi.RequireAdmin())
	adminGroup.GET(adminRouteUsers, adminHandlers.ListUsers)
	adminGroup.POST(adminRouteUserBlock, adminHandlers.BlockUser)
	adminGroup.POST(adminRouteUserUnblock, adminHandlers.UnblockUser)
	adminGroup.POST(adminRouteUserRole, adminHandlers.ChangeRole)
	adminGroup.GET(adminRouteForms, adminHandlers.ListAllForms)
	adminGroup.DELETE(adminRouteFormByID, adminHandlers.DeleteForm)
	adminGroup.DELETE(adminRouteKeyByID, adminHandlers.RevokeAPIKey)
	adminGroup.GET(adminRouteStats, adminHandlers.PlatformStats)
	adminGroup.GET(adminRouteAuditLogs, adminHandlers.ListAuditLogs)
}

func newDashboardCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{corsOriginWildcard},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
