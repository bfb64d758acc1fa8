package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCheckerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token  string `json:"token"`
			RoomID string `json:"roomId"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tok-1", req.Token)
		assert.Equal(t, "room1", req.RoomID)

		_ = json.NewEncoder(w).Encode(Result{Success: true, UserID: "user-42"})
	}))
	defer srv.Close()

	c := NewHTTPChecker(srv.URL, time.Second)
	res := c.CheckAccess(context.Background(), "tok-1", "room1")
	require.True(t, res.Success)
	assert.Equal(t, "user-42", res.UserID)
}

func TestHTTPCheckerDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{Success: false, Message: "bad token"})
	}))
	defer srv.Close()

	res := NewHTTPChecker(srv.URL, time.Second).CheckAccess(context.Background(), "x", "room1")
	assert.False(t, res.Success)
	assert.Equal(t, "bad token", res.Message)
}

func TestHTTPCheckerFailureModesAreUniform(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		res := NewHTTPChecker(srv.URL, time.Second).CheckAccess(context.Background(), "x", "r")
		assert.False(t, res.Success)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not-json"))
		}))
		defer srv.Close()
		res := NewHTTPChecker(srv.URL, time.Second).CheckAccess(context.Background(), "x", "r")
		assert.False(t, res.Success)
	})

	t.Run("success without userId", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(Result{Success: true})
		}))
		defer srv.Close()
		res := NewHTTPChecker(srv.URL, time.Second).CheckAccess(context.Background(), "x", "r")
		assert.False(t, res.Success)
	})

	t.Run("unreachable", func(t *testing.T) {
		res := NewHTTPChecker("http://127.0.0.1:1/none", 200*time.Millisecond).CheckAccess(context.Background(), "x", "r")
		assert.False(t, res.Success)
	})
}

func signToken(t *testing.T, secret []byte, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestJWTChecker(t *testing.T) {
	secret := []byte("test-secret")
	c := NewJWTChecker(secret)

	t.Run("valid token", func(t *testing.T) {
		res := c.CheckAccess(context.Background(), signToken(t, secret, "user-7"), "room1")
		require.True(t, res.Success)
		assert.Equal(t, "user-7", res.UserID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		res := c.CheckAccess(context.Background(), signToken(t, []byte("other"), "user-7"), "room1")
		assert.False(t, res.Success)
	})

	t.Run("garbage token", func(t *testing.T) {
		res := c.CheckAccess(context.Background(), "garbage", "room1")
		assert.False(t, res.Success)
	})

	t.Run("missing subject", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
		s, err := tok.SignedString(secret)
		require.NoError(t, err)
		res := c.CheckAccess(context.Background(), s, "room1")
		assert.False(t, res.Success)
	})

	t.Run("empty token or room", func(t *testing.T) {
		assert.False(t, c.CheckAccess(context.Background(), "", "room1").Success)
		assert.False(t, c.CheckAccess(context.Background(), signToken(t, secret, "u"), "").Success)
	})
}
