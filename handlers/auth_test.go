package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"veriform/models"
	"veriform/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	utils.InitializeJWT("test-secret-key-0123456789-0123456789")
}

func postJSON(t *testing.T, handler http.HandlerFunc, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegisterReviewer(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	req := models.RegisterRequest{
		Email:     "reviewer@example.com",
		Password:  "strong-password",
		FirstName: "Rita",
		LastName:  "Rao",
		AdminCode: "TEST_ADMIN",
	}
	rec := postJSON(t, env.handlers.Register, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	admin := decodeBody(t, rec)["admin"].(map[string]interface{})
	assert.Equal(t, "reviewer@example.com", admin["email"])
	assert.Equal(t, true, admin["is_active"])
	// The hash never leaves the server.
	assert.NotContains(t, rec.Body.String(), "strong-password")

	// Same email again conflicts.
	rec = postJSON(t, env.handlers.Register, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterRejectsWrongAdminCode(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postJSON(t, env.handlers.Register, models.RegisterRequest{
		Email:     "reviewer@example.com",
		Password:  "strong-password",
		FirstName: "Rita",
		LastName:  "Rao",
		AdminCode: "WRONG",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postJSON(t, env.handlers.Register, models.RegisterRequest{
		Email:     "reviewer@example.com",
		Password:  "strong-password",
		FirstName: "Rita",
		LastName:  "Rao",
		AdminCode: "TEST_ADMIN",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, env.handlers.Login, models.LoginRequest{
		Email:    "reviewer@example.com",
		Password: "strong-password",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	assert.Empty(t, resp.Admin.Password)

	claims, err := utils.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer@example.com", claims.Email)
	assert.Equal(t, resp.Admin.ID, claims.AdminID)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postJSON(t, env.handlers.Register, models.RegisterRequest{
		Email:     "reviewer@example.com",
		Password:  "strong-password",
		FirstName: "Rita",
		LastName:  "Rao",
		AdminCode: "TEST_ADMIN",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, env.handlers.Login, models.LoginRequest{
		Email:    "reviewer@example.com",
		Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginInactiveReviewer(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	hash, err := utils.HashPassword("strong-password")
	require.NoError(t, err)
	admin := models.Admin{
		Email:     "gone@example.com",
		Password:  hash,
		FirstName: "Old",
		LastName:  "Account",
	}
	require.NoError(t, env.db.Create(&admin).Error)
	require.NoError(t, env.db.Model(&admin).Update("is_active", false).Error)

	rec := postJSON(t, env.handlers.Login, models.LoginRequest{
		Email:    "gone@example.com",
		Password: "strong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
