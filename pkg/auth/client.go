package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/s155cp/memberctl/pkg/logger"
)

// Auth API paths.
const (
	PathRefresh      = "/v1/auth/refresh"
	PathLogin        = "/v1/auth/login"
	PathGoogleLogin  = "/v1/auth/oauth/google"
	PathLogout       = "/v1/auth/logout"
	PathConfig       = "/v1/auth/config"
	PathDesignations = "/v1/auth/designations"
)

// DefaultUserAgent is sent when no other user agent is configured.
const DefaultUserAgent = "memberctl"

// Client talks to the membership Auth API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	log        logger.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api base URL is required")
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  DefaultUserAgent,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Refresh exchanges access for a new session.
func (c *Client) Refresh(ctx context.Context, access *types.AccessToken) (*types.Session, error) {
	if access == nil || access.Token == "" {
		return nil, ErrNoSession
	}

	var session types.Session
	if err := c.do(ctx, http.MethodGet, PathRefresh, access, nil, &session); err != nil {
		return nil, err
	}
	if session.Access == nil || session.Access.Token == "" {
		return nil, ErrInvalidGrant
	}

	return &session, nil
}

// ExchangeToken turns a bearer obtained out of band (for example from the
// web sign-in callback) into a full session.
func (c *Client) ExchangeToken(ctx context.Context, bearer string) (*types.Session, error) {
	return c.Refresh(ctx, &types.AccessToken{Type: "Bearer", Token: bearer})
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*types.Session, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	body := map[string]string{"email": email, "password": password}

	var session types.Session
	if err := c.do(ctx, http.MethodPost, PathLogin, nil, body, &session); err != nil {
		return nil, err
	}
	if session.Access == nil || session.Access.Token == "" {
		return nil, ErrInvalidGrant
	}

	return &session, nil
}

// LoginWithGoogle signs in with a Google OAuth access token.
func (c *Client) LoginWithGoogle(ctx context.Context, googleAccessToken string) (*types.Session, error) {
	if googleAccessToken == "" {
		return nil, fmt.Errorf("google access token is required")
	}

	body := map[string]string{"access_token": googleAccessToken}

	var session types.Session
	if err := c.do(ctx, http.MethodPost, PathGoogleLogin, nil, body, &session); err != nil {
		return nil, err
	}
	if session.Access == nil || session.Access.Token == "" {
		return nil, ErrInvalidGrant
	}

	return &session, nil
}

// Logout ends the session on the server.
func (c *Client) Logout(ctx context.Context, access *types.AccessToken) error {
	return c.do(ctx, http.MethodGet, PathLogout, access, nil, nil)
}

// RemoteConfig is the public client configuration served by the API.
type RemoteConfig struct {
	Google GoogleConfig `json:"google"`
}

// GoogleConfig holds the Google sign-in client settings.
type GoogleConfig struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri,omitempty"`
}

// Config fetches the public client configuration.
func (c *Client) Config(ctx context.Context) (*RemoteConfig, error) {
	var cfg RemoteConfig
	if err := c.do(ctx, http.MethodGet, PathConfig, nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Option is a label/value pair for selection lists.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Designations lists member designations. access may be nil when the
// client's transport adds authorization itself.
func (c *Client) Designations(ctx context.Context, access *types.AccessToken) ([]Option, error) {
	var resp struct {
		Designations map[string]string `json:"designations"`
	}
	if err := c.do(ctx, http.MethodGet, PathDesignations, access, nil, &resp); err != nil {
		return nil, err
	}

	options := make([]Option, 0, len(resp.Designations))
	for _, v := range resp.Designations {
		options = append(options, Option{Label: v, Value: v})
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Value < options[j].Value })

	return options, nil
}

// do performs a JSON request. A non-2xx status yields *APIError.
func (c *Client) do(ctx context.Context, method, path string, access *types.AccessToken, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth := access.Authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("api request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Status(resp.StatusCode),
		logger.RequestID(requestID),
		logger.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

func newAPIError(method, path string, resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	return apiErr
}
