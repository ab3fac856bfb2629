// Package kite talks to the Kite Connect session endpoints: building the
// login URL the browser flow starts from and exchanging the request token
// returned on the redirect for an access token.
package kite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

const (
	DefaultLoginBase = "https://kite.zerodha.com/connect/login"
	DefaultTokenURL  = "https://api.kite.trade/session/token"
	apiVersion       = "3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMissingLoginTarget is returned when neither a login URL nor an API key is configured.
var ErrMissingLoginTarget = errors.New("portal.login_url or portal.api_key is required")

// LoginURL returns the Kite Connect login URL for an app.
func LoginURL(apiKey string) string {
	v := url.Values{}
	v.Set("v", apiVersion)
	v.Set("api_key", apiKey)
	return DefaultLoginBase + "?" + v.Encode()
}

// ResolveLoginURL prefers an explicit login URL and falls back to the one
// derived from the API key.
func ResolveLoginURL(p config.PortalConfig) (string, error) {
	if u := strings.TrimSpace(p.LoginURL); u != "" {
		return u, nil
	}
	if p.APIKey == "" {
		return "", ErrMissingLoginTarget
	}
	return LoginURL(p.APIKey), nil
}

// Checksum is the hex SHA-256 of api_key + request_token + api_secret.
func Checksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}

// Session is the token set returned by a successful exchange.
type Session struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	Email        string `json:"email"`
	Broker       string `json:"broker"`
	APIKey       string `json:"api_key"`
	AccessToken  string `json:"access_token"`
	PublicToken  string `json:"public_token"`
	RefreshToken string `json:"refresh_token"`
	LoginTime    string `json:"login_time"`
}

// APIError is an error envelope returned by the Kite API.
type APIError struct {
	Status    int
	ErrorType string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kite API error (status %d, %s): %s", e.Status, e.ErrorType, e.Message)
}

type envelope struct {
	Status    string              `json:"status"`
	Message   string              `json:"message"`
	ErrorType string              `json:"error_type"`
	Data      jsoniter.RawMessage `json:"data"`
}

// Client exchanges request tokens against the session endpoint.
type Client struct {
	apiKey     string
	apiSecret  string
	tokenURL   string
	httpClient *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// NewClient builds a client from the portal settings. A nil httpClient uses
// a client with a 30s timeout.
func NewClient(p config.PortalConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	tokenURL := p.TokenExchangeURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &Client{
		apiKey:     p.APIKey,
		apiSecret:  p.APISecret,
		tokenURL:   tokenURL,
		httpClient: httpClient,
		logger:     observability.GetLogger().Named("kite"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = time.Minute
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// CanExchange reports whether the client has the credentials an exchange needs.
func (c *Client) CanExchange() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// ExchangeToken trades a request token for a session. Network failures and
// 5xx/429 responses are retried; other API errors are returned at once.
func (c *Client) ExchangeToken(ctx context.Context, requestToken string) (*Session, error) {
	if !c.CanExchange() {
		return nil, errors.New("token exchange requires portal.api_key and portal.api_secret")
	}
	if requestToken == "" {
		return nil, errors.New("request token is empty")
	}

	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", Checksum(c.apiKey, requestToken, c.apiSecret))
	body := form.Encode()

	var session Session
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create token request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Kite-Version", apiVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error during token exchange, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute token request: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read token response: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			if retryable(resp.StatusCode) {
				return fmt.Errorf("undecodable token response (status %d): %w", resp.StatusCode, err)
			}
			return backoff.Permanent(fmt.Errorf("failed to decode token response (status %d): %w", resp.StatusCode, err))
		}

		if resp.StatusCode != http.StatusOK || env.Status != "success" {
			apiErr := &APIError{Status: resp.StatusCode, ErrorType: env.ErrorType, Message: env.Message}
			c.logger.Error("Token exchange rejected.", zap.Int("status", resp.StatusCode), zap.String("error_type", env.ErrorType))
			if retryable(resp.StatusCode) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.Unmarshal(env.Data, &session); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode session data: %w", err))
		}
		if session.AccessToken == "" {
			return backoff.Permanent(errors.New("token response carried no access token"))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	c.logger.Info("Access token obtained.", zap.String("user_id", session.UserID))
	return &session, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
