package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/shared"
)

type mockAudit struct {
	logs []shared.AuditLog
	err  error
}

func (m *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestRouter(t *testing.T, repo *mockRepository, audit *mockAudit, maxAttempts int64) http.Handler {
	t.Helper()
	logger := newDiscardLogger()
	service := NewService(repo)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	throttle := NewLoginThrottle(client, maxAttempts, 15*time.Minute)

	handler := NewHandler(logger, service, issuer, throttle, audit, false)
	mw := NewMiddleware(logger, issuer, service)

	r := chi.NewRouter()
	r.Route("/api/auth", func(r chi.Router) {
		handler.MountRoutes(r, mw)
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccess(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	audit := &mockAudit{}
	router := newTestRouter(t, repo, audit, 10)

	rec := postJSON(t, router, "/api/auth/login", map[string]string{
		"username": "amina", "password": "hunter22",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "amina", resp.User.Username)
	assert.NotContains(t, rec.Body.String(), "password")
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "login", audit.logs[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	router := newTestRouter(t, repo, &mockAudit{}, 10)

	rec := postJSON(t, router, "/api/auth/login", map[string]string{
		"username": "amina", "password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusInactive)
	router := newTestRouter(t, repo, &mockAudit{}, 10)

	rec := postJSON(t, router, "/api/auth/login", map[string]string{
		"username": "amina", "password": "hunter22",
	}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginThrottled(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	router := newTestRouter(t, repo, &mockAudit{}, 2)

	for i := 0; i < 2; i++ {
		rec := postJSON(t, router, "/api/auth/login", map[string]string{
			"username": "amina", "password": "wrong",
		}, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Even the correct password is refused once the limit is hit.
	rec := postJSON(t, router, "/api/auth/login", map[string]string{
		"username": "amina", "password": "hunter22",
	}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoginAuditFailureIsFatal(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	audit := &mockAudit{err: context.DeadlineExceeded}
	router := newTestRouter(t, repo, audit, 10)

	rec := postJSON(t, router, "/api/auth/login", map[string]string{
		"username": "amina", "password": "hunter22",
	}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token")
}

func TestMeRequiresToken(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	router := newTestRouter(t, repo, &mockAudit{}, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeWithValidToken(t *testing.T) {
	repo := newMockRepository()
	seedUser(t, repo, StatusActive)
	router := newTestRouter(t, repo, &mockAudit{}, 10)

	login := postJSON(t, router, "/api/auth/login", map[string]string{
		"username": "amina", "password": "hunter22",
	}, "")
	require.Equal(t, http.StatusOK, login.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "amina")
}

func TestInactiveUserRejectedMidSession(t *testing.T) {
	repo := newMockRepository()
	user := seedUser(t, repo, StatusActive)
	router := newTestRouter(t, repo, &mockAudit{}, 10)

	login := postJSON(t, router, "/api/auth/login", map[string]string{
		"username": "amina", "password": "hunter22",
	}, "")
	require.Equal(t, http.StatusOK, login.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &resp))

	// Deactivation takes effect on the very next request, despite the token
	// still being cryptographically valid.
	user.Status = StatusInactive

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
