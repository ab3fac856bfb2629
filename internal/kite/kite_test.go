package kite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "https://kite.zerodha.com/connect/login?api_key=abc123&v=3", LoginURL("abc123"))

	u, err := ResolveLoginURL(config.PortalConfig{APIKey: "abc123"})
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "3", parsed.Query().Get("v"))
	assert.Equal(t, "abc123", parsed.Query().Get("api_key"))

	u, err = ResolveLoginURL(config.PortalConfig{APIKey: "ignored", LoginURL: " https://example.test/login "})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/login", u)

	_, err = ResolveLoginURL(config.PortalConfig{})
	assert.ErrorIs(t, err, ErrMissingLoginTarget)
}

func TestChecksum(t *testing.T) {
	// sha256("keytokensecret")
	assert.Equal(t, "08a03d928417ea4085557933d3b187ff2a3515b039d6054dbd230c95d978a17a", Checksum("key", "token", "secret"))
	assert.NotEqual(t, Checksum("key", "token", "secret"), Checksum("key", "token2", "secret"))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	observability.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(observability.ResetForTest)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.PortalConfig{APIKey: "key", APISecret: "secret", TokenExchangeURL: srv.URL + "/session/token"}, srv.Client())
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Millisecond
		b.MaxInterval = 5 * time.Millisecond
		b.MaxElapsedTime = time.Second
		return b
	}
	return c
}

func TestExchangeToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/session/token", r.URL.Path)
			assert.Equal(t, "3", r.Header.Get("X-Kite-Version"))
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "key", r.PostForm.Get("api_key"))
			assert.Equal(t, "req-tok", r.PostForm.Get("request_token"))
			assert.Equal(t, Checksum("key", "req-tok", "secret"), r.PostForm.Get("checksum"))
			_, _ = w.Write([]byte(`{"status":"success","data":{"user_id":"AB1234","access_token":"acc","public_token":"pub"}}`))
		})

		s, err := c.ExchangeToken(context.Background(), "req-tok")
		require.NoError(t, err)
		assert.Equal(t, "AB1234", s.UserID)
		assert.Equal(t, "acc", s.AccessToken)
		assert.Equal(t, "pub", s.PublicToken)
	})

	t.Run("token exception is not retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"status":"error","message":"Token is invalid or has expired.","error_type":"TokenException"}`))
		})

		_, err := c.ExchangeToken(context.Background(), "stale")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "got %v", err)
		assert.Equal(t, "TokenException", apiErr.ErrorType)
		assert.Equal(t, http.StatusForbidden, apiErr.Status)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`<html>bad gateway</html>`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"success","data":{"user_id":"AB1234","access_token":"acc"}}`))
		})

		s, err := c.ExchangeToken(context.Background(), "req-tok")
		require.NoError(t, err)
		assert.Equal(t, "acc", s.AccessToken)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("missing access token", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"success","data":{"user_id":"AB1234"}}`))
		})
		_, err := c.ExchangeToken(context.Background(), "req-tok")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no access token")
	})

	t.Run("requires credentials and token", func(t *testing.T) {
		observability.SetLogger(zaptest.NewLogger(t))
		t.Cleanup(observability.ResetForTest)

		c := NewClient(config.PortalConfig{APIKey: "key"}, nil)
		assert.False(t, c.CanExchange())
		_, err := c.ExchangeToken(context.Background(), "tok")
		assert.Error(t, err)

		c = NewClient(config.PortalConfig{APIKey: "key", APISecret: "s"}, nil)
		assert.Equal(t, DefaultTokenURL, c.tokenURL)
		_, err = c.ExchangeToken(context.Background(), "")
		assert.Error(t, err)
	})
}
