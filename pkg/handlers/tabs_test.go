package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearchoice-backend/pkg/config"
	"clearchoice-backend/pkg/database"
	"clearchoice-backend/pkg/middleware"
	"clearchoice-backend/pkg/models"
	"clearchoice-backend/pkg/utils"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	db, err := database.NewLocalDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		Environment: "development",
		JWTSecret:   "test-secret",
	}

	tabHandler := NewTabHandler(cfg, db)
	authHandler := NewAuthHandler(cfg, db)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg))
			r.Get("/user/profile", authHandler.Profile)
		})
		r.Route("/tab", func(r chi.Router) {
			r.Post("/save", tabHandler.SaveTab)
			r.Get("/list/{userId}", tabHandler.ListTabs)
			r.Get("/history/{userId}", tabHandler.History)
			r.Get("/{tabId}", tabHandler.GetTab)
		})
	})
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) *utils.APIError {
	t.Helper()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *utils.APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	if out != nil && len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return envelope.Error
}

func TestSaveTabCreate(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title":     "Best Wine For Dinner",
		"userId":    "user-1",
		"textInput": "a long wine list",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var rec models.TabRecord
	decodeEnvelope(t, rr, &rec)
	assert.Equal(t, "best-wine-for-dinner", rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
}

func TestSaveTabMissingFields(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title": "No User",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	apiErr := decodeEnvelope(t, rr, nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"userId": "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSaveTabInvalidQuestions(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title":  "Bad Questions",
		"userId": "user-1",
		"questions": []map[string]interface{}{
			{"name": "color", "type": "multichoice", "choices": []string{"red"}},
		},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	apiErr := decodeEnvelope(t, rr, nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}

func TestSaveTabDuplicateTitle(t *testing.T) {
	router := newTestRouter(t)

	first := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title": "Wine", "userId": "user-1",
	})
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title": "Wine", "userId": "user-1",
	})
	require.Equal(t, http.StatusConflict, second.Code)
	apiErr := decodeEnvelope(t, second, nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, "CONFLICT", apiErr.Code)
}

func TestSaveTabUpdate(t *testing.T) {
	router := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title": "Wine Picker", "userId": "user-1", "textInput": "original",
	})
	require.Equal(t, http.StatusOK, created.Code)
	var rec models.TabRecord
	decodeEnvelope(t, created, &rec)

	updated := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"id":        rec.ID,
		"title":     "Wine Picker",
		"userId":    "user-1",
		"textInput": "revised",
	})
	require.Equal(t, http.StatusOK, updated.Code)

	var after models.TabRecord
	decodeEnvelope(t, updated, &after)
	data, err := models.DecodeTabData(after.Data)
	require.NoError(t, err)
	assert.Equal(t, "revised", data.TextInput)
}

func TestSaveTabUpdateKeepsOmittedDescription(t *testing.T) {
	router := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title": "Cheese Pairing", "userId": "user-1",
		"description": "keep me", "textInput": "original",
	})
	require.Equal(t, http.StatusOK, created.Code)
	var rec models.TabRecord
	decodeEnvelope(t, created, &rec)
	require.Equal(t, "keep me", rec.Description)

	// 请求未携带description时不得清空已存储的值
	updated := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"id":        rec.ID,
		"title":     "Cheese Pairing",
		"userId":    "user-1",
		"textInput": "revised",
	})
	require.Equal(t, http.StatusOK, updated.Code)

	var after models.TabRecord
	decodeEnvelope(t, updated, &after)
	assert.Equal(t, "keep me", after.Description)

	// 显式携带时照常覆盖
	revised := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"id":          rec.ID,
		"title":       "Cheese Pairing",
		"userId":      "user-1",
		"description": "replaced",
	})
	require.Equal(t, http.StatusOK, revised.Code)
	decodeEnvelope(t, revised, &after)
	assert.Equal(t, "replaced", after.Description)
}

func TestSaveTabUpdateUnknownID(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"id": "no-such-tab", "title": "Ghost", "userId": "user-1",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetTabRawRecord(t *testing.T) {
	router := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title": "Wine Picker", "userId": "user-1", "textInput": "pasted",
	})
	var rec models.TabRecord
	decodeEnvelope(t, created, &rec)

	rr := doJSON(t, router, http.MethodGet, "/api/tab/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got models.TabRecord
	decodeEnvelope(t, rr, &got)
	// data comes back as the stored string, not a decoded object
	assert.Contains(t, got.Data, `"textInput":"pasted"`)
}

func TestGetTabNotFound(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/tab/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListTabs(t *testing.T) {
	router := newTestRouter(t)

	for _, title := range []string{"First Tab", "Second Tab"} {
		rr := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
			"title": title, "userId": "user-1",
		})
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := doJSON(t, router, http.MethodGet, "/api/tab/list/user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var tabs []models.TabSummary
	decodeEnvelope(t, rr, &tabs)
	assert.Len(t, tabs, 2)

	empty := doJSON(t, router, http.MethodGet, "/api/tab/list/nobody", nil)
	require.Equal(t, http.StatusOK, empty.Code)
	var none []models.TabSummary
	decodeEnvelope(t, empty, &none)
	assert.Empty(t, none)
}

func TestHistoryGroupsTabs(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/tab/save", map[string]interface{}{
		"title": "Fresh Tab", "userId": "user-1",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	hist := doJSON(t, router, http.MethodGet, "/api/tab/history/user-1", nil)
	require.Equal(t, http.StatusOK, hist.Code)

	var groups []models.HistoryGroup
	decodeEnvelope(t, hist, &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, models.BucketToday, groups[0].Title)
	require.Len(t, groups[0].Items, 1)
	assert.Equal(t, "/product?id=fresh-tab", groups[0].Items[0].URL)
}

func TestSignupAndLogin(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email": "alice@example.com", "password": "hunter22", "name": "Alice",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var user models.User
	decodeEnvelope(t, rr, &user)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)

	// Password hash never leaks in the response.
	assert.NotContains(t, rr.Body.String(), "hunter22")

	login := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, login.Code)
	var resp models.LoginResponse
	decodeEnvelope(t, login, &resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
}

func TestSignupValidationAndConflict(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email": "alice@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	first := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email": "bob@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	dup := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email": "bob@example.com", "password": "secret",
	})
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	router := newTestRouter(t)

	signup := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email": "carol@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, signup.Code)

	rr := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email": "carol@example.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	apiErr := decodeEnvelope(t, rr, nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, "AUTH_ERROR", apiErr.Code)
}

func TestProfileRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/user/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestProfileWithToken(t *testing.T) {
	router := newTestRouter(t)

	signup := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email": "dave@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, signup.Code)

	login := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email": "dave@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusOK, login.Code)
	var resp models.LoginResponse
	decodeEnvelope(t, login, &resp)

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var user models.User
	decodeEnvelope(t, rr, &user)
	assert.Equal(t, "dave@example.com", user.Email)
}
