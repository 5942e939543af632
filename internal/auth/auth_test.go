package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-long-enough-for-testing"

func newTestManager() *JWTManager {
	return NewJWTManager(testSecret, "device-custody-api", "device-custody-api", time.Hour)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		issuer   string
		audience string
		expiry   time.Duration
		wantErr  bool
	}{
		{"valid config", testSecret, "iss", "aud", time.Hour, false},
		{"empty secret", "", "iss", "aud", time.Hour, true},
		{"secret too short", "short", "iss", "aud", time.Hour, true},
		{"empty issuer", testSecret, "", "aud", time.Hour, true},
		{"empty audience", testSecret, "iss", "", time.Hour, true},
		{"negative expiry", testSecret, "iss", "aud", -time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewJWTManager(tt.secret, tt.issuer, tt.audience, tt.expiry)
			err := manager.ValidateConfig()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	manager := newTestManager()

	token, err := manager.GenerateToken(42, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "device-custody-api", claims.Issuer)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := newTestManager().GenerateToken(1, "employee")
	require.NoError(t, err)

	other := NewJWTManager("another-secret-key-that-is-long-enough", "device-custody-api", "device-custody-api", time.Hour)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	manager := NewJWTManager(testSecret, "device-custody-api", "device-custody-api", -time.Minute)
	token, err := manager.GenerateToken(1, "employee")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestHasRole(t *testing.T) {
	claims := &Claims{UserID: 1, Role: "employee"}
	assert.True(t, claims.HasRole("employee"))
	assert.True(t, claims.HasRole("admin", "employee"))
	assert.False(t, claims.HasRole("admin"))
}

func TestAuthMiddleware(t *testing.T) {
	manager := newTestManager()

	var gotUserID int64
	var gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := AuthMiddleware(manager)(next)

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/devices", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "MISSING_AUTH_HEADER", resp.Code)
	})

	t.Run("bad scheme", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/devices", nil)
		req.Header.Set("Authorization", "Basic abc123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := manager.GenerateToken(7, "admin")
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/devices", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(7), gotUserID)
		assert.Equal(t, "admin", gotRole)
	})
}

func TestMustRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := MustRole("admin")(next)

	t.Run("no claims", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/devices", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/devices", nil)
		ctx := context.WithValue(req.Context(), ClaimsKey, &Claims{UserID: 1, Role: "employee"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req.WithContext(ctx))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("allowed role", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/devices", nil)
		ctx := context.WithValue(req.Context(), ClaimsKey, &Claims{UserID: 1, Role: "admin"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req.WithContext(ctx))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
