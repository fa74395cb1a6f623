package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bookstore/internal/model"
)

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, role, ok := GetUserFromContext(r.Context())
		if !ok {
			t.Fatalf("user not in context")
		}
		if id != 42 {
			t.Fatalf("user id from context = %d, want 42", id)
		}
		if role != model.RoleStaff {
			t.Fatalf("role from context = %q, want staff", role)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	if err := m.SetAuthCookie(w, 42, model.RoleStaff); err != nil {
		t.Fatalf("SetAuthCookie error: %v", err)
	}
	res := w.Result()
	resCookies := res.Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}

	r.AddCookie(resCookies[0])

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithBearerHeader(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	token, err := m.IssueToken(7, model.RoleMember)
	require.NoError(t, err)

	var gotID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetUserIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	m.Middleware(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), gotID)
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	foreign, err := NewAuthMiddleware("other-secret").IssueToken(1, model.RoleAdmin)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		UserID:           1,
		Role:             model.RoleAdmin,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: 1,
		Role:   "owner",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"foreign key":  foreign,
		"expired":      expired,
		"unknown role": badRole,
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			m.Middleware(next).ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Middleware(RequireRole(model.RoleStaff, model.RoleAdmin)(ok))

	tests := []struct {
		role model.Role
		want int
	}{
		{role: model.RoleMember, want: http.StatusForbidden},
		{role: model.RoleStaff, want: http.StatusNoContent},
		{role: model.RoleAdmin, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			token, err := m.IssueToken(3, tt.role)
			require.NoError(t, err)

			r := httptest.NewRequest(http.MethodPut, "/staff", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := httptest.NewRecorder()
	RequireRole(model.RoleStaff)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
