package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/auth"
	"mumble.info/grumble/pkg/errs"
)

func TestAuthenticateSuccessIsCached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"user_id":     42,
			"username":    "alice",
			"displayName": "Alice",
			"groups":      []string{"admin", "users"},
		})
	}))
	defer srv.Close()

	coord := auth.New(auth.Config{Endpoint: srv.URL, CacheTTL: time.Minute}, auth.NewMemCache())

	ctx := context.Background()
	result, err := coord.Authenticate(ctx, auth.Request{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int32(42), result.UserID)
	require.True(t, result.SuperUser())

	_, err = coord.Authenticate(ctx, auth.Request{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, 1, calls, "second call should be served from cache")
}

func TestAuthenticateWrongPasswordRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	coord := auth.New(auth.Config{Endpoint: srv.URL}, auth.NewMemCache())

	result, err := coord.Authenticate(context.Background(), auth.Request{Username: "bob", Password: "wrong"})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, auth.RejectWrongUserPW, result.Reject)
}

func TestAuthenticateTransportErrorIsAuthFailure(t *testing.T) {
	coord := auth.New(auth.Config{Endpoint: "http://127.0.0.1:0", TransportTimeout: 100 * time.Millisecond}, auth.NewMemCache())

	_, err := coord.Authenticate(context.Background(), auth.Request{Username: "x", Password: "y"})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.AuthFailure))
}

func TestAuthenticateFormContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "carol", r.FormValue("username"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"user_id": 1, "groups": []string{}})
	}))
	defer srv.Close()

	coord := auth.New(auth.Config{Endpoint: srv.URL, ContentType: auth.ContentTypeForm}, auth.NewMemCache())
	result, err := coord.Authenticate(context.Background(), auth.Request{Username: "carol", Password: "pw"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.SuperUser())
}

func TestMemCacheExpiresEntry(t *testing.T) {
	cache := auth.NewMemCache()
	ctx := context.Background()
	cache.Set(ctx, "k", &auth.Result{Success: true, Username: "expiring"}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get(ctx, "k")
	require.False(t, ok)
}
