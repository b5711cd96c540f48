package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"taskable/application/ports"
	"taskable/pkg/auth"
	apperrors "taskable/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocalProvider(t *testing.T) (*LocalProvider, *auth.JWTValidator) {
	t.Helper()
	cfg := auth.JWTConfig{SecretKey: "test-secret", Issuer: "taskable", Audience: []string{"supabase"}, ExpiryTime: time.Hour}
	generator, err := auth.NewJWTGenerator(cfg)
	require.NoError(t, err)
	validator, err := auth.NewJWTValidator(cfg)
	require.NoError(t, err)
	return NewLocalProvider(generator, zap.NewNop()), validator
}

func TestLocalProvider_SignedOut(t *testing.T) {
	p, _ := newLocalProvider(t)

	_, ok := p.CurrentUser()
	assert.False(t, ok)
	assert.False(t, p.IsAuthenticated())
	_, err := p.Token(context.Background(), "supabase")
	assert.ErrorIs(t, err, apperrors.ErrNoCredential)
}

func TestLocalProvider_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit user id", func(t *testing.T) {
		p, validator := newLocalProvider(t)

		id, err := p.SignIn(ctx, ports.Credentials{UserID: "user-1"})
		require.NoError(t, err)

		assert.Equal(t, "user-1", id.UserID)
		token, err := p.Token(ctx, "supabase")
		require.NoError(t, err)
		claims, err := validator.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("email derives a stable id", func(t *testing.T) {
		p, _ := newLocalProvider(t)

		first, err := p.SignIn(ctx, ports.Credentials{Email: "Ada@Example.com"})
		require.NoError(t, err)
		second, err := p.SignIn(ctx, ports.Credentials{Email: "ada@example.com "})
		require.NoError(t, err)

		assert.NotEmpty(t, first.UserID)
		assert.Equal(t, first.UserID, second.UserID)
		assert.Equal(t, "ada@example.com", second.Email)
	})

	t.Run("missing credentials", func(t *testing.T) {
		p, _ := newLocalProvider(t)

		_, err := p.SignIn(ctx, ports.Credentials{})

		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestLocalProvider_TokenIsCachedUntilNearExpiry(t *testing.T) {
	// Arrange
	ctx := context.Background()
	p, _ := newLocalProvider(t)
	now := time.Now()
	p.now = func() time.Time { return now }
	_, err := p.SignIn(ctx, ports.Credentials{UserID: "user-1"})
	require.NoError(t, err)

	// Act
	first, err := p.Token(ctx, "supabase")
	require.NoError(t, err)
	again, err := p.Token(ctx, "supabase")
	require.NoError(t, err)
	now = now.Add(59*time.Minute + 30*time.Second)
	renewed, err := p.Token(ctx, "supabase")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, first, again)
	assert.NotEqual(t, first, renewed)
}

func TestLocalProvider_SignOut(t *testing.T) {
	ctx := context.Background()
	p, _ := newLocalProvider(t)
	_, err := p.SignIn(ctx, ports.Credentials{UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx))

	assert.False(t, p.IsAuthenticated())
	_, err = p.Token(ctx, "supabase")
	assert.ErrorIs(t, err, apperrors.ErrNoCredential)
}

// fakeGoTrue serves the password and refresh_token grants plus logout
func fakeGoTrue(t *testing.T, expiresAt func() int64) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var refreshes, logouts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		access := "access-1"
		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "refresh_token":
			refreshes.Add(1)
			access = "access-2"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  access,
			"refresh_token": "refresh-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"expires_at":    expiresAt(),
			"user": map[string]interface{}{
				"id":    "0b4d3c8e-8a43-4c0f-9d2c-2a3e5d9d7f10",
				"email": "ada@example.com",
			},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &refreshes, &logouts
}

func TestSupabaseProvider_SignInAndToken(t *testing.T) {
	// Arrange
	ctx := context.Background()
	srv, refreshes, _ := fakeGoTrue(t, func() int64 { return time.Now().Add(time.Hour).Unix() })
	p := NewSupabaseProvider(srv.URL, "anon", zap.NewNop())

	// Act
	id, err := p.SignIn(ctx, ports.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	token, err := p.Token(ctx, "supabase")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "0b4d3c8e-8a43-4c0f-9d2c-2a3e5d9d7f10", id.UserID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.True(t, p.IsAuthenticated())
	assert.Equal(t, "access-1", token)
	assert.Equal(t, int32(0), refreshes.Load())
}

func TestSupabaseProvider_RefreshesNearExpiry(t *testing.T) {
	// Arrange
	ctx := context.Background()
	srv, refreshes, _ := fakeGoTrue(t, func() int64 { return time.Now().Add(30 * time.Second).Unix() })
	p := NewSupabaseProvider(srv.URL, "anon", zap.NewNop())
	_, err := p.SignIn(ctx, ports.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	// Act
	token, err := p.Token(ctx, "supabase")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestSupabaseProvider_SignInRejected(t *testing.T) {
	ctx := context.Background()
	srv, _, _ := fakeGoTrue(t, func() int64 { return 0 })
	p := NewSupabaseProvider(srv.URL, "anon", zap.NewNop())

	_, err := p.SignIn(ctx, ports.Credentials{Email: "ada@example.com", Password: "wrong"})
	assert.True(t, apperrors.IsUnauthorized(err))

	_, err = p.SignIn(ctx, ports.Credentials{Email: "ada@example.com"})
	assert.True(t, apperrors.IsValidation(err))
	assert.False(t, p.IsAuthenticated())
}

func TestSupabaseProvider_SignOut(t *testing.T) {
	ctx := context.Background()
	srv, _, logouts := fakeGoTrue(t, func() int64 { return time.Now().Add(time.Hour).Unix() })
	p := NewSupabaseProvider(srv.URL, "anon", zap.NewNop())
	_, err := p.SignIn(ctx, ports.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx))
	require.NoError(t, p.SignOut(ctx))

	assert.False(t, p.IsAuthenticated())
	assert.Equal(t, int32(1), logouts.Load())
}
