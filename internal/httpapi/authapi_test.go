package httpapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/formvibe/formvibe/internal/model"
)

func TestRegisterCreatesAccountAndIssuesToken(t *testing.T) {
	database := openTestDatabase(t)
	router := newAPIRouter(t, database)

	recorder := performJSONRequest(router, http.MethodPost, "/api/auth/register", map[string]string{
		"name":     "Ada",
		"email":    "Ada@Example.com",
		"password": "long-enough-password",
	}, nil)

	requireStatus(t, recorder, 201)
	body := decodeJSONBody(t, recorder)
	require.NotEmpty(t, body["token"])

	account := body["account"].(map[string]any)
	require.Equal(t, "ada@example.com", account["email"])
	require.Equal(t, model.UserRoleUser, account["role"])

	var stored model.User
	require.NoError(t, database.First(&stored, "email = ?", "ada@example.com").Error)
	require.NotEqual(t, "long-enough-password", stored.PasswordHash)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	database := openTestDatabase(t)
	router := newAPIRouter(t, database)

	first := performJSONRequest(router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "dup@example.com",
		"password": "long-enough-password",
	}, nil)
	requireStatus(t, first, 201)

	second := performJSONRequest(router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "dup@example.com",
		"password": "another-long-password",
	}, nil)
	requireStatus(t, second, 409)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	database := openTestDatabase(t)
	router := newAPIRouter(t, database)

	recorder := performJSONRequest(router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "short@example.com",
		"password": "tiny",
	}, nil)
	requireStatus(t, recorder, 400)
}

func TestLoginWithValidCredentials(t *testing.T) {
	database := openTestDatabase(t)
	router := newAPIRouter(t, database)
	createTestUser(t, database, "login@example.com", model.UserRoleUser)

	recorder := performJSONRequest(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "login@example.com",
		"password": testUserPassword,
	}, nil)

	requireStatus(t, recorder, 200)
	require.NotEmpty(t, decodeJSONBody(t, recorder)["token"])
}

func TestLoginDoesNotRevealWhichFieldWasWrong(t *testing.T) {
	database := openTestDatabase(t)
	router := newAPIRouter(t, database)
	createTestUser(t, database, "login@example.com", model.UserRoleUser)

	wrongPassword := performJSONRequest(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "login@example.com",
		"password": "wrong-password-value",
	}, nil)
	unknownAccount := performJSONRequest(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": testUserPassword,
	}, nil)

	requireStatus(t, wrongPassword, 401)
	requireStatus(t, unknownAccount, 401)
	require.Equal(t, wrongPassword.Body.String(), unknownAccount.Body.String())
}

func TestLoginRejectsBlockedAccount(t *testing.T) {
	database := openTestDatabase(t)
	router := newAPIRouter(t, database)
	account := createTestUser(t, database, "blocked@example.com", model.UserRoleUser)
	require.NoError(t, database.Model(&model.User{}).
		Where("id = ?", account.ID).
		Update("status", model.UserStatusBlocked).Error)

	recorder := performJSONRequest(router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "blocked@example.com",
		"password": testUserPassword,
	}, nil)
	requireStatus(t, recorder, 403)
}
