package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tmail/internal/session"
)

// ErrNetworkFailure wraps transport errors talking to the API.
var ErrNetworkFailure = errors.New("network failure")

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	// Message is the response's error field, if any.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// LoginResult 换取令牌的结果
type LoginResult struct {
	APIToken string       `json:"api_token"`
	User     session.User `json:"user"`
}

// AuthAPI is the part of the server API the controller needs.
type AuthAPI interface {
	AuthURL(ctx context.Context, state string) (string, error)
	Login(ctx context.Context, code, state string) (*LoginResult, error)
}

var _ AuthAPI = (*APIClient)(nil)

// APIClient talks to the tmail HTTP API.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient creates a client for baseURL. A nil httpClient gets a 30s timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// AuthURL 获取授权地址
func (c *APIClient) AuthURL(ctx context.Context, state string) (string, error) {
	var resp struct {
		AuthURL string `json:"auth_url"`
	}
	q := url.Values{"state": {state}}
	if err := c.do(ctx, http.MethodGet, "/api/auth/url?"+q.Encode(), "", &resp); err != nil {
		return "", err
	}
	if resp.AuthURL == "" {
		return "", errors.New("response has no auth_url")
	}
	return resp.AuthURL, nil
}

// Login 用授权码换取令牌
func (c *APIClient) Login(ctx context.Context, code, state string) (*LoginResult, error) {
	var resp LoginResult
	q := url.Values{"code": {code}, "state": {state}}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login?"+q.Encode(), "", &resp); err != nil {
		return nil, err
	}
	if resp.APIToken == "" {
		return nil, errors.New("response has no api_token")
	}
	return &resp, nil
}

// Profile 获取当前用户资料
func (c *APIClient) Profile(ctx context.Context, token string) (*session.User, error) {
	var user session.User
	if err := c.do(ctx, http.MethodGet, "/api/profile", token, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *APIClient) do(ctx context.Context, method, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
