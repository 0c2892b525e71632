package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"veriform/config"
	"veriform/metrics"
	"veriform/middleware"
	"veriform/models"
	"veriform/registry"
	"veriform/stats"
	"veriform/storage"
	"veriform/utils"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testMetrics is shared across the package: promauto registers globally, so
// metrics are created once per test binary.
var testMetrics = metrics.New()

type testEnv struct {
	handlers *Handlers
	store    *storage.Store
	registry *registry.Registry
	db       *gorm.DB
	blobDir  string
}

func newTestEnv(t *testing.T, maxUploadBytes int64) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.AttachmentRef{},
		&models.Admin{},
		&models.Submission{},
		&models.AuditLog{},
	))

	dir := t.TempDir()
	store, err := storage.Initialize(dir, maxUploadBytes, db)
	require.NoError(t, err)

	cfg := &config.Config{
		UploadDir:      dir,
		MaxUploadBytes: maxUploadBytes,
		JWTSecret:      "test-secret-key-0123456789-0123456789",
		AdminCode:      "TEST_ADMIN",
		StatsWindow:    7,
	}

	reg := registry.New(db, store)
	return &testEnv{
		handlers: NewHandlers(db, cfg, store, reg, stats.New(db), testMetrics),
		store:    store,
		registry: reg,
		db:       db,
		blobDir:  dir,
	}
}

func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.blobDir)
	require.NoError(t, err)
	return len(entries)
}

type filePart struct {
	filename  string
	mediaType string
	content   []byte
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]filePart) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	for name, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, name, f.filename))
		header.Set("Content-Type", f.mediaType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func validFields(email, phone, nationalID string) map[string]string {
	return map[string]string{
		"firstName":     "Asha",
		"lastName":      "Verma",
		"email":         email,
		"phone":         phone,
		"nationalId":    nationalID,
		"dateOfBirth":   "2000-01-20",
		"address":       "14 MG Road, Sector 5",
		"city":          "Pune",
		"state":         "Maharashtra",
		"postalCode":    "411001",
		"courseName":    "Advanced Trading",
		"termsAccepted": "true",
	}
}

func validFiles() map[string]filePart {
	return map[string]filePart{
		"aadharFile":    {filename: "id.pdf", mediaType: "application/pdf", content: []byte("%PDF identity document")},
		"signatureFile": {filename: "sig.png", mediaType: "image/png", content: []byte("png signature bytes")},
	}
}

func postSubmission(t *testing.T, env *testEnv, path string, fields map[string]string, files map[string]filePart) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	if strings.Contains(path, "trading") {
		env.handlers.SubmitTradingApplication(rec, req)
	} else {
		env.handlers.SubmitRegistration(rec, req)
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func authedRequest(method, target string, body io.Reader, adminID uint) *http.Request {
	req := httptest.NewRequest(method, target, body)
	claims := &utils.Claims{AdminID: adminID, Email: "reviewer@example.com"}
	return req.WithContext(context.WithValue(req.Context(), middleware.AdminContextKey, claims))
}

func TestSubmitRegistration(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Asha Verma", data["full_name"])
	assert.Equal(t, models.KindRegistration, data["kind"])
	assert.Equal(t, models.StatusPendingReview, data["status"])

	assert.Equal(t, 2, env.blobCount(t))
}

func TestSubmitTradingApplication(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	fields := validFields("asha@example.com", "9876543210", "123456789012")
	delete(fields, "courseName")
	fields["investmentAmount"] = "50000"
	fields["investmentGoals"] = "Long term wealth building through diversified copy trading"

	rec := postSubmission(t, env, "/api/trading-application", fields, validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, models.KindTrading, data["kind"])
}

func TestSubmitUnderageLeavesNoBlobs(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	fields := validFields("young@example.com", "9876543210", "123456789012")
	fields["dateOfBirth"] = time.Now().AddDate(-15, 0, -1).Format("2006-01-02")

	rec := postSubmission(t, env, "/api/registration", fields, validFiles())
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Validation rejects before any byte reaches the store.
	assert.Equal(t, 0, env.blobCount(t))
}

func TestSubmitSeventeenYearOldRegistration(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	fields := validFields("teen@example.com", "9876543210", "123456789012")
	fields["dateOfBirth"] = time.Now().AddDate(-17, 0, -1).Format("2006-01-02")

	rec := postSubmission(t, env, "/api/registration", fields, validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, models.StatusPendingReview, data["status"])
}

func TestSubmitDuplicateEmailRollsBackBlobs(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 2, env.blobCount(t))

	rec = postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9123456789", "999956789012"), validFiles())
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "email", details["field"])

	// Only the first submission's attachments remain.
	assert.Equal(t, 2, env.blobCount(t))
}

func TestSubmitOversizedFile(t *testing.T) {
	env := newTestEnv(t, 1024)

	files := validFiles()
	files["aadharFile"] = filePart{
		filename:  "big.pdf",
		mediaType: "application/pdf",
		content:   bytes.Repeat([]byte("a"), 4096),
	}

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), files)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, env.blobCount(t))
}

func TestGetSubmissionNotFound(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	req := authedRequest(http.MethodGet, "/api/admin/submissions/9999", nil, 1)
	req = mux.SetURLVars(req, map[string]string{"id": "9999"})
	rec := httptest.NewRecorder()
	env.handlers.GetSubmission(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewApprovalStampsReviewer(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)
	require.NoError(t, env.db.Create(&models.Admin{Email: "reviewer@example.com", Password: "x", FirstName: "Rita", LastName: "Rao", IsActive: true}).Error)

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint(decodeBody(t, rec)["data"].(map[string]interface{})["id"].(float64))

	payload, _ := json.Marshal(models.StatusUpdateRequest{Status: models.StatusApproved, Notes: "documents verified"})
	req := authedRequest(http.MethodPatch, fmt.Sprintf("/api/admin/submissions/%d/status", id), bytes.NewReader(payload), 1)
	req = mux.SetURLVars(req, map[string]string{"id": strconv.Itoa(int(id))})
	update := httptest.NewRecorder()
	env.handlers.UpdateSubmissionStatus(update, req)
	require.Equal(t, http.StatusOK, update.Code)

	data := decodeBody(t, update)["data"].(map[string]interface{})
	assert.Equal(t, models.StatusApproved, data["status"])
	assert.Equal(t, float64(1), data["reviewed_by"])
	assert.NotNil(t, data["reviewed_at"])
	assert.Equal(t, "documents verified", data["admin_notes"])
}

func TestReviewTerminalConflict(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint(decodeBody(t, rec)["data"].(map[string]interface{})["id"].(float64))

	patch := func(status string) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(models.StatusUpdateRequest{Status: status})
		req := authedRequest(http.MethodPatch, fmt.Sprintf("/api/admin/submissions/%d/status", id), bytes.NewReader(payload), 1)
		req = mux.SetURLVars(req, map[string]string{"id": strconv.Itoa(int(id))})
		out := httptest.NewRecorder()
		env.handlers.UpdateSubmissionStatus(out, req)
		return out
	}

	require.Equal(t, http.StatusOK, patch(models.StatusRejected).Code)
	assert.Equal(t, http.StatusConflict, patch(models.StatusApproved).Code)
	assert.Equal(t, http.StatusBadRequest, patch("escalated").Code)
}

func TestDeleteSubmissionRemovesAttachments(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint(decodeBody(t, rec)["data"].(map[string]interface{})["id"].(float64))
	require.Equal(t, 2, env.blobCount(t))

	req := authedRequest(http.MethodDelete, fmt.Sprintf("/api/admin/submissions/%d", id), nil, 1)
	req = mux.SetURLVars(req, map[string]string{"id": strconv.Itoa(int(id))})
	del := httptest.NewRecorder()
	env.handlers.DeleteSubmission(del, req)
	require.Equal(t, http.StatusOK, del.Code)

	assert.Equal(t, 0, env.blobCount(t))
	_, err := env.registry.Get(id)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestDownloadFile(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint(decodeBody(t, rec)["data"].(map[string]interface{})["id"].(float64))

	// The slot accepts canonical names and the historical field aliases.
	for _, slot := range []string{"primary", "aadharFile", "idProof"} {
		req := authedRequest(http.MethodGet, fmt.Sprintf("/api/admin/submissions/%d/download/%s", id, slot), nil, 1)
		req = mux.SetURLVars(req, map[string]string{"id": strconv.Itoa(int(id)), "slot": slot})
		dl := httptest.NewRecorder()
		env.handlers.DownloadFile(dl, req)

		require.Equal(t, http.StatusOK, dl.Code, "slot %q", slot)
		assert.Equal(t, "application/pdf", dl.Header().Get("Content-Type"))
		assert.Contains(t, dl.Header().Get("Content-Disposition"), `attachment; filename="id.pdf"`)
		assert.Equal(t, "%PDF identity document", dl.Body.String())
	}

	req := authedRequest(http.MethodGet, fmt.Sprintf("/api/admin/submissions/%d/view/signature", id), nil, 1)
	req = mux.SetURLVars(req, map[string]string{"id": strconv.Itoa(int(id)), "slot": "signature"})
	view := httptest.NewRecorder()
	env.handlers.ViewFile(view, req)

	require.Equal(t, http.StatusOK, view.Code)
	assert.Equal(t, "inline", view.Header().Get("Content-Disposition"))
	assert.Equal(t, "png signature bytes", view.Body.String())
}

func TestDownloadInvalidSlot(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	rec := postSubmission(t, env, "/api/registration", validFields("asha@example.com", "9876543210", "123456789012"), validFiles())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint(decodeBody(t, rec)["data"].(map[string]interface{})["id"].(float64))

	req := authedRequest(http.MethodGet, fmt.Sprintf("/api/admin/submissions/%d/download/selfie", id), nil, 1)
	req = mux.SetURLVars(req, map[string]string{"id": strconv.Itoa(int(id)), "slot": "selfie"})
	dl := httptest.NewRecorder()
	env.handlers.DownloadFile(dl, req)

	assert.Equal(t, http.StatusBadRequest, dl.Code)
}

func TestListSubmissionsPaginationEnvelope(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	for i := 1; i <= 3; i++ {
		rec := postSubmission(t, env, "/api/registration", validFields(
			fmt.Sprintf("user%d@example.com", i),
			fmt.Sprintf("90000000%02d", i),
			fmt.Sprintf("1000000000%02d", i),
		), validFiles())
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := authedRequest(http.MethodGet, "/api/admin/submissions?page=1&limit=2&sort_by=email&sort_order=asc", nil, 1)
	rec := httptest.NewRecorder()
	env.handlers.ListSubmissions(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["current_page"])
	assert.Equal(t, float64(2), pagination["total_pages"])
	assert.Equal(t, float64(3), pagination["total_count"])
	assert.Equal(t, true, pagination["has_next"])
	assert.Equal(t, false, pagination["has_prev"])

	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "user1@example.com", first["email"])
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, 5*1024*1024)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	env.handlers.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}
