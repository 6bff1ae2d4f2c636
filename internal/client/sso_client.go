// Package client is the HTTP client dependent services use to reach
// the identity store's provisioning gateway. Transport failures and
// rejections are distinct error kinds: a timeout is often retryable, a
// 4xx never is, and callers must not conflate the two.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrUpstreamUnavailable marks connection errors and timeouts toward
// the identity store.
var ErrUpstreamUnavailable = errors.New("sso upstream unavailable")

// ErrUpstreamRejected marks responses where the identity store
// answered but refused the request.
var ErrUpstreamRejected = errors.New("sso upstream rejected request")

// AccountInfo mirrors the gateway's serialized account shape.
type AccountInfo struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FullName  string  `json:"full_name"`
	App       string  `json:"app"`
	Role      string  `json:"role"`
	EntityID  *string `json:"entity_id"`
	RosterID  *int64  `json:"roster_id"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at"`
}

// ProvisionRequest is the upsert payload for a scoped identity.
type ProvisionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	EntityID string `json:"entity_id"`
	RosterID *int64 `json:"roster_id,omitempty"`
}

// SSOClient calls the identity store with a per-caller pre-shared
// secret and a bounded timeout.
type SSOClient struct {
	BaseURL       string
	ServiceSecret string
	HTTPClient    *http.Client
}

// NewSSOClient builds a client with a 10 second request budget.
func NewSSOClient(baseURL, serviceSecret string) *SSOClient {
	return &SSOClient{
		BaseURL:       baseURL,
		ServiceSecret: serviceSecret,
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Upsert provisions (creates or updates) the identity owned by (app,
// role, entity id).
func (c *SSOClient) Upsert(ctx context.Context, app, role string, req ProvisionRequest) (AccountInfo, error) {
	var out AccountInfo
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/provision/%s/%s", app, role), nil, req, &out)
	return out, err
}

// DeleteByEntity removes the identity bound to an entity the caller
// just deleted. Not-found upstream is success here.
func (c *SSOClient) DeleteByEntity(ctx context.Context, app, entityID string) error {
	return c.do(ctx, http.MethodDelete, "/api/provision/by-entity/"+url.PathEscape(entityID),
		url.Values{"app": {app}}, nil, nil)
}

// CheckUsername reports whether a username is free across all apps.
func (c *SSOClient) CheckUsername(ctx context.Context, username string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodGet, "/api/users/check-username",
		url.Values{"username": {username}}, nil, &out)
	return out.Available, err
}

// FindByTelegram resolves a telegram identity to an account within the
// caller's app scope.
func (c *SSOClient) FindByTelegram(ctx context.Context, telegramID int64, app string) (AccountInfo, error) {
	var out AccountInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/by-telegram/%d", telegramID),
		url.Values{"app": {app}}, nil, &out)
	return out, err
}

// FindByRosterID resolves an external roster id to an account.
func (c *SSOClient) FindByRosterID(ctx context.Context, rosterID int64, app string) (AccountInfo, error) {
	var out AccountInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/by-roster-id/%d", rosterID),
		url.Values{"app": {app}}, nil, &out)
	return out, err
}

// List fetches the accounts in an app scope, optionally filtered by
// role.
func (c *SSOClient) List(ctx context.Context, app, role string) ([]AccountInfo, error) {
	params := url.Values{"app": {app}}
	if role != "" {
		params.Set("role", role)
	}
	var out []AccountInfo
	err := c.do(ctx, http.MethodGet, "/api/users/", params, nil, &out)
	return out, err
}

func (c *SSOClient) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set(serviceHeader, c.ServiceSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrUpstreamRejected, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: invalid response body", ErrUpstreamRejected)
		}
	}
	return nil
}

const serviceHeader = "X-Service-Secret"
