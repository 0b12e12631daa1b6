package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quoteflow/quoteflow/internal/auth"
	"github.com/quoteflow/quoteflow/internal/shared"
	"github.com/quoteflow/quoteflow/internal/view"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine("RM")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), templates, sessionManager, csrfManager)
	return handler, sessionManager
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestLoginPage(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
}

func TestLoginSuccessRedirects(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &auth.User{ID: 1, Email: "admin@test.local", FullName: "Admin", PasswordHash: string(hashed), IsActive: true}
	handler, sm := newAuthHandler(t, &stubRepo{user: user})

	form := url.Values{"email": {"admin@test.local"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, sess := withSession(t, sm, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin/quotations", res.Header().Get("Location"))
	assert.Equal(t, "1", sess.User())
}

func TestLoginWrongPassword(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &auth.User{ID: 1, Email: "admin@test.local", PasswordHash: string(hashed), IsActive: true}
	handler, sm := newAuthHandler(t, &stubRepo{user: user})

	form := url.Values{"email": {"admin@test.local"}, "password": {"wrong-password"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, sess := withSession(t, sm, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	assert.Empty(t, sess.User())
}

func TestLoginInactiveUser(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &auth.User{ID: 1, Email: "admin@test.local", PasswordHash: string(hashed), IsActive: false}
	handler, sm := newAuthHandler(t, &stubRepo{user: user})

	form := url.Values{"email": {"admin@test.local"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRequireAdminRedirectsAnonymous(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{})

	protected := handler.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/quotations", nil)
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	protected.ServeHTTP(res, req)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))
}

func TestRequireAdminResolvesUser(t *testing.T) {
	user := &auth.User{ID: 9, Email: "admin@test.local", IsActive: true}
	handler, sm := newAuthHandler(t, &stubRepo{user: user})

	var resolved *auth.User
	protected := handler.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved = auth.UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/quotations", nil)
	req, sess := withSession(t, sm, req)
	sess.SetUser("9")

	res := httptest.NewRecorder()
	protected.ServeHTTP(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
	require.NotNil(t, resolved)
	assert.Equal(t, int64(9), resolved.ID)
}
