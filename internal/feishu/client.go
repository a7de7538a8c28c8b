package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Feishu open platform API root
const DefaultBaseURL = "https://open.feishu.cn/open-apis"

// tokenSlack refreshes the tenant token this long before it expires
const tokenSlack = 60 * time.Second

// ErrMissingCredentials is returned when an API call is attempted without an
// app id and secret
var ErrMissingCredentials = errors.New("FEISHU_APP_ID and FEISHU_APP_SECRET are required")

// APIError is returned for non-2xx responses and non-zero envelope codes
type APIError struct {
	Path   string
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("feishu api error [%s]: code=%d msg=%s", e.Path, e.Code, e.Msg)
	}
	return fmt.Sprintf("feishu api error [%s]: http %d: %s", e.Path, e.Status, e.Msg)
}

// Config configures a Client
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// Client calls the Feishu open platform REST API with a cached tenant token.
// It is safe for concurrent use.
type Client struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a new Feishu client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// envelope is the common response wrapper of the open platform API
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// TenantToken returns a cached tenant access token, fetching a new one when
// the cached token is missing or about to expire
func (c *Client) TenantToken(ctx context.Context) (string, error) {
	if c.appID == "" || c.appSecret == "" {
		return "", ErrMissingCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && c.expiresAt.After(now.Add(tokenSlack)) {
		return c.token, nil
	}

	const path = "/auth/v3/tenant_access_token/internal"
	body := map[string]string{"app_id": c.appID, "app_secret": c.appSecret}
	raw, status, err := c.roundTrip(ctx, http.MethodPost, path, nil, body, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch tenant token: %w", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode tenant token: %w", err)
	}
	if status >= http.StatusBadRequest || resp.Code != 0 {
		return "", &APIError{Path: path, Status: status, Code: resp.Code, Msg: resp.Msg}
	}

	expire := time.Duration(resp.Expire) * time.Second
	if expire <= 0 {
		expire = 2 * time.Hour
	}
	c.token = resp.TenantAccessToken
	c.expiresAt = now.Add(expire)

	c.logger.Debug("tenant token refreshed", zap.Duration("expires_in", expire))
	return c.token, nil
}

// do performs an authenticated call and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.TenantToken(ctx)
	if err != nil {
		return err
	}

	raw, status, err := c.roundTrip(ctx, method, path, query, body, token)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= http.StatusBadRequest {
			return &APIError{Path: path, Status: status, Msg: truncate(string(raw), 200)}
		}
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	if status >= http.StatusBadRequest || env.Code != 0 {
		return &APIError{Path: path, Status: status, Code: env.Code, Msg: env.Msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data from %s: %w", path, err)
	}
	return nil
}

// roundTrip sends one JSON request and returns the raw body and status
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body interface{}, token string) ([]byte, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("feishu api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
