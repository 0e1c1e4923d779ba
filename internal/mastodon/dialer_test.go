package mastodon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hype/internal/storage"
	logx "hype/pkg/logx"
)

func TestDialerRegistersOncePerServer(t *testing.T) {
	var registered, tokens atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/apps":
			registered.Add(1)
			writeJSON(w, Application{ClientID: "cid", ClientSecret: "sec"})
		case "/oauth/token":
			tokens.Add(1)
			writeJSON(w, token{AccessToken: "apptok"})
		case "/api/v1/trends/statuses":
			assert.Equal(t, "Bearer apptok", r.Header.Get("Authorization"))
			writeJSON(w, []Status{{ID: "1"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := storage.NewMemory()
	d := NewDialer(DialerConfig{Client: Config{RequestTimeout: time.Second}}, store, logx.Nop())
	ctx := context.Background()

	c1, err := d.Open(ctx, srv.URL)
	require.NoError(t, err)
	c2, err := d.Open(ctx, strings.ToUpper(srv.URL))
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	_, err = c1.TrendingStatuses(ctx, 1)
	require.NoError(t, err)

	assert.EqualValues(t, 1, registered.Load())
	assert.EqualValues(t, 1, tokens.Load())

	cred, ok, err := store.GetAppCredential(ctx, srv.URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cid", cred.ClientID)
	assert.Equal(t, "apptok", cred.AccessToken)

	// A fresh dialer sharing the store reuses the stored registration.
	d2 := NewDialer(DialerConfig{Client: Config{RequestTimeout: time.Second}}, store, logx.Nop())
	_, err = d2.Open(ctx, srv.URL)
	require.NoError(t, err)
	assert.EqualValues(t, 1, registered.Load())
}

func TestDialerFallsBackToAnonymous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/apps":
			writeJSON(w, Application{ClientID: "cid", ClientSecret: "sec"})
		case "/oauth/token":
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "unsupported_grant_type"})
		case "/api/v1/trends/statuses":
			assert.Empty(t, r.Header.Get("Authorization"))
			writeJSON(w, []Status{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDialer(DialerConfig{}, storage.NewMemory(), logx.Nop())
	c, err := d.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	_, err = c.TrendingStatuses(context.Background(), 3)
	require.NoError(t, err)
}

func TestDialerRegistrationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := storage.NewMemory()
	d := NewDialer(DialerConfig{}, store, logx.Nop())
	_, err := d.Open(context.Background(), srv.URL)
	require.Error(t, err)

	_, ok, _ := store.GetAppCredential(context.Background(), srv.URL)
	assert.False(t, ok, "failed registration must not be stored")

	_, err = d.Open(context.Background(), "")
	require.Error(t, err)
}
