// Package twitch wraps the Twitch Helix REST API: app-token acquisition and
// refresh, user and stream lookup, and EventSub subscription management.
//
// The token is a process-wide singleton with a lazily refreshed expiry. Twitch
// can invalidate a token earlier than advertised, so any call that receives a
// 401 forces an unconditional refresh and transparently retries once.
package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Durss/streamerRaider/internal/domain"
	"github.com/Durss/streamerRaider/internal/metrics"
)

const (
	defaultAPIBaseURL  = "https://api.twitch.tv/helix"
	defaultAuthBaseURL = "https://id.twitch.tv/oauth2"

	// Twitch occasionally rejects tokens shortly before their advertised
	// expiry, so treat them as stale a minute early.
	tokenExpirySlack = 60 * time.Second

	requestTimeout = 15 * time.Second
	userChunkSize  = 100
)

// APIError is a non-2xx response from the Twitch API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api returned status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs overrides the API and OAuth endpoints, used by tests.
func WithBaseURLs(api, auth string) Option {
	return func(c *Client) {
		c.apiBase = api
		c.authBase = auth
	}
}

type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	apiBase      string
	authBase     string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: requestTimeout},
		clientID:     clientID,
		clientSecret: clientSecret,
		apiBase:      defaultAPIBaseURL,
		authBase:     defaultAuthBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a valid app access token, fetching a new one if the cached
// token is missing or about to expire.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Add(tokenExpirySlack).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	return c.fetchTokenLocked(ctx)
}

// forceRefresh discards the cached token and fetches a new one.
func (c *Client) forceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	return c.fetchTokenLocked(ctx)
}

func (c *Client) fetchTokenLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authBase+"/token?"+form.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	c.accessToken = result.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// do performs an authenticated API call. On 401 the token is refreshed
// unconditionally and the request retried exactly once.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	u := c.apiBase + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Client-Id", c.clientID)
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("twitch request failed: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		metrics.TwitchRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			token, err = c.forceRefresh(ctx)
			if err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode >= http.StatusMultipleChoices {
			return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse twitch response: %w", err)
			}
		}
		return nil
	}
}

// UsersByLogin resolves Twitch users by login name, batching requests in
// chunks of 100. Unknown logins are silently absent from the result.
func (c *Client) UsersByLogin(ctx context.Context, logins []string) ([]domain.UserInfo, error) {
	result := make([]domain.UserInfo, 0, len(logins))
	for start := 0; start < len(logins); start += userChunkSize {
		end := min(start+userChunkSize, len(logins))

		query := url.Values{}
		for _, login := range logins[start:end] {
			query.Add("login", login)
		}

		var resp struct {
			Data []domain.UserInfo `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, "/users", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch users: %w", err)
		}
		result = append(result, resp.Data...)
	}
	return result, nil
}

// UserByID resolves a single Twitch user, or nil when the id is unknown.
func (c *Client) UserByID(ctx context.Context, id string) (*domain.UserInfo, error) {
	query := url.Values{}
	query.Set("id", id)

	var resp struct {
		Data []domain.UserInfo `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

// StreamByUserID returns the broadcaster's current stream, or nil when the
// broadcaster is offline or the read API has not caught up yet.
func (c *Client) StreamByUserID(ctx context.Context, userID string) (*domain.StreamInfo, error) {
	query := url.Values{}
	query.Set("user_id", userID)

	var resp struct {
		Data []domain.StreamInfo `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/streams", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch stream for %s: %w", userID, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

// StreamsByLogin returns the currently live streams among the given logins.
func (c *Client) StreamsByLogin(ctx context.Context, logins []string) ([]domain.StreamInfo, error) {
	result := make([]domain.StreamInfo, 0, len(logins))
	for start := 0; start < len(logins); start += userChunkSize {
		end := min(start+userChunkSize, len(logins))

		query := url.Values{}
		for _, login := range logins[start:end] {
			query.Add("user_login", login)
		}

		var resp struct {
			Data []domain.StreamInfo `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, "/streams", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch streams: %w", err)
		}
		result = append(result, resp.Data...)
	}
	return result, nil
}
