package httpapi

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/formvibe/formvibe/internal/auth"
	"github.com/formvibe/formvibe/internal/model"
)

// AuthHandlers serves account registration and login.
type AuthHandlers struct {
	database     *gorm.DB
	logger       *zap.Logger
	tokenManager *auth.TokenManager
}

// NewAuthHandlers constructs an AuthHandlers instance.
func NewAuthHandlers(database *gorm.DB, logger *zap.Logger, tokenManager *auth.TokenManager) *AuthHandlers {
	return &AuthHandlers{
		database:     database,
		logger:       logger,
		tokenManager: tokenManager,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type sessionResponse struct {
	Token   string          `json:"token"`
	Account accountResponse `json:"account"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandlers) Register(context *gin.Context) {
	var request registerRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}

	passwordHash, hashErr := auth.HashPassword(request.Password)
	if hashErr != nil {
		context.JSON(400, gin.H{"error": "invalid_password"})
		return
	}

	account, accountErr := model.NewUser(model.UserInput{
		Name:         request.Name,
		Email:        request.Email,
		PasswordHash: passwordHash,
	})
	if accountErr != nil {
		context.JSON(400, gin.H{"error": "invalid_account"})
		return
	}

	if saveErr := h.database.Create(&account).Error; saveErr != nil {
		if isUniqueViolation(saveErr) {
			context.JSON(409, gin.H{"error": "email_taken"})
			return
		}
		h.logger.Error("save_account", zap.Error(saveErr))
		context.JSON(500, gin.H{"error": "save_failed"})
		return
	}

	h.respondWithSession(context, 201, account)
}

// Login handles POST /api/auth/login. Unknown accounts and wrong passwords get
// the same answer so the endpoint does not confirm which emails exist.
func (h *AuthHandlers) Login(context *gin.Context) {
	var request loginRequest
	if bindErr := context.BindJSON(&request); bindErr != nil {
		context.JSON(400, gin.H{"error": "invalid_json"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(request.Email))
	var account model.User
	if findErr := h.database.First(&account, "email = ?", email).Error; findErr != nil {
		context.JSON(401, gin.H{"error": "invalid_credentials"})
		return
	}
	if !auth.CheckPassword(account.PasswordHash, request.Password) {
		context.JSON(401, gin.H{"error": "invalid_credentials"})
		return
	}
	if account.Status == model.UserStatusBlocked {
		context.JSON(403, gin.H{"error": "account_blocked"})
		return
	}

	h.respondWithSession(context, 200, account)
}

func (h *AuthHandlers) respondWithSession(context *gin.Context, statusCode int, account model.User) {
	token, tokenErr := h.tokenManager.IssueToken(account.ID, account.Email, account.Role)
	if tokenErr != nil {
		h.logger.Error("issue_token", zap.Error(tokenErr), zap.String("user_id", account.ID))
		context.JSON(500, gin.H{"error": "token_issue_failed"})
		return
	}
	context.JSON(statusCode, sessionResponse{
		Token:   token,
		Account: buildAccountResponse(account),
	})
}

func buildAccountResponse(account model.User) accountResponse {
	return accountResponse{
		ID:     account.ID,
		Name:   account.Name,
		Email:  account.Email,
		Role:   account.Role,
		Status: account.Status,
	}
}

// isUniqueViolation detects duplicate-key failures across the sqlite and
// postgres drivers without importing either driver's error types.
func isUniqueViolation(saveErr error) bool {
	if errors.Is(saveErr, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(saveErr.Error())
	return strings.Contains(message, "unique") || strings.Contains(message, "duplicate")
}
