package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/clipdeck/clipdeck/internal/client/quota"
	"github.com/clipdeck/clipdeck/internal/common"
)

const callTimeout = 12 * time.Second

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// HTTPClient implements Client over the backend's JSON API. It refreshes the
// access token once on an expired-token rejection and replays the request.
type HTTPClient struct {
	endpointURL string
	http        *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onTokens     func(access, refresh string)
}

func NewHTTPClient(endpointURL string) *HTTPClient {
	return &HTTPClient{
		endpointURL: endpointURL,
		http:        &http.Client{Timeout: callTimeout},
	}
}

// SetTokens installs the credential pair obtained at login.
func (c *HTTPClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

// OnTokenRefresh registers a callback invoked with the new pair whenever the
// client refreshes its tokens, so the caller can persist them.
func (c *HTTPClient) OnTokenRefresh(fn func(access, refresh string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTokens = fn
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) Upsert(ctx context.Context, req UpsertRequest) (*RemoteRecord, error) {
	env, err := c.call(ctx, http.MethodPost, "/api/v1/records/"+req.ID, req)
	if err != nil {
		return nil, err
	}

	var rec RemoteRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode upsert response: %w", err)
	}
	return &rec, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id string, base time.Time) error {
	path := "/api/v1/records/" + id
	if !base.IsZero() {
		path += "?base=" + strconv.FormatInt(base.UnixNano(), 10)
	}
	_, err := c.call(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	env, err := c.call(ctx, http.MethodGet, "/api/v1/ping", nil)
	if err != nil {
		return err
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &status); err != nil {
		return fmt.Errorf("failed to decode ping response: %w", err)
	}
	if status.Status != "ok" {
		return common.ErrUnavailable
	}
	return nil
}

// Entitlements implements quota.Source.
func (c *HTTPClient) Entitlements(ctx context.Context) (quota.Entitlements, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/v1/entitlements", nil)
	if err != nil {
		return quota.Entitlements{}, err
	}

	var ents quota.Entitlements
	if err := json.Unmarshal(env.Data, &ents); err != nil {
		return quota.Entitlements{}, fmt.Errorf("failed to decode entitlements: %w", err)
	}
	return ents, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// call performs one request, refreshing the token pair and replaying once if
// the server reports an expired access token.
func (c *HTTPClient) call(ctx context.Context, method, path string, body any) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	access, refresh := c.tokens()

	env, status, err := c.do(ctx, method, path, body, access)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && env.Error == common.ErrTokenExpired.Error() && refresh != "" {
		if err := c.refresh(ctx, refresh); err != nil {
			return nil, err
		}
		access, _ = c.tokens()
		env, status, err = c.do(ctx, method, path, body, access)
		if err != nil {
			return nil, err
		}
	}

	if err := mapStatus(status, env); err != nil {
		return nil, err
	}
	return env, nil
}

func (c *HTTPClient) refresh(ctx context.Context, refreshToken string) error {
	env, status, err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": refreshToken}, "")
	if err != nil {
		return err
	}
	if err := mapStatus(status, env); err != nil {
		return err
	}

	var pair tokenPair
	if err := json.Unmarshal(env.Data, &pair); err != nil {
		return fmt.Errorf("failed to decode token refresh response: %w", err)
	}
	c.SetTokens(pair.AccessToken, pair.RefreshToken)

	c.mu.Lock()
	fn := c.onTokens
	c.mu.Unlock()
	if fn != nil {
		fn(pair.AccessToken, pair.RefreshToken)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, accessToken string) (*envelope, int, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpointURL+path, buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: malformed response: %v", common.ErrUnavailable, err)
	}
	return &env, resp.StatusCode, nil
}

func mapStatus(status int, env *envelope) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusConflict:
		var rec RemoteRecord
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			return fmt.Errorf("%w: canonical copy missing: %v", common.ErrConflict, err)
		}
		return &ConflictError{Remote: rec}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, env.Error)
	case status == http.StatusNotFound:
		return common.ErrNotFound
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: server returned %d", common.ErrUnavailable, status)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, env.Error)
	}
}
