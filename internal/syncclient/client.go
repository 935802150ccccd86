// Package syncclient is the HTTP transport between a client device and the
// sync server: batch push, snapshot pull, the device-removed probe and the
// websocket channel the server uses to ask for a sync.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Error codes the server puts in error bodies.
const (
	CodeUnauthorized        = "unauthorized"
	CodeAttributionMismatch = "attribution_mismatch"
	CodeBadRequest          = "bad_request"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal"
)

// Client talks to the sync server on behalf of one device.
type Client struct {
	BaseURL   string
	AuthToken string
	HTTP      *http.Client
}

// New creates a new sync client.
func New(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:   baseURL,
		AuthToken: authToken,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

// --- Wire types (mirrors internal/api, independently defined) ---

// ActionTuple is one uploaded log entry.
type ActionTuple struct {
	SequenceNumber int64        `json:"sequence_number"`
	EncodedAction  string       `json:"encoded_action"`
	Attribution    string       `json:"attribution"`
	Kind           actions.Kind `json:"kind"`
	ActorID        string       `json:"actor_id,omitempty"`
}

// PushRequest is the body of POST /sync/push-actions.
type PushRequest struct {
	Actions []ActionTuple `json:"actions"`
}

// PushResponse is the reply to a push.
type PushResponse struct {
	FullResyncRequired bool `json:"full_resync_required"`
}

// DeviceRemovedResponse is the reply to POST /sync/is-device-removed.
type DeviceRemovedResponse struct {
	IsDeviceRemoved bool `json:"is_device_removed"`
}

// RegisterRequest is the body of POST /sync/register-device.
type RegisterRequest struct {
	ParentID    string `json:"parent_id"`
	Password    string `json:"password"`
	DeviceName  string `json:"device_name"`
	DeviceModel string `json:"device_model"`
}

// RegisterResponse carries the credential of a newly registered device.
type RegisterResponse struct {
	DeviceID        string `json:"device_id"`
	DeviceAuthToken string `json:"device_auth_token"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits /healthz to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doNoAuth(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a device for the family of a parent and returns its credential.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.doNoAuth(ctx, http.MethodPost, "/sync/register-device", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push uploads an ordered batch of log entries.
func (c *Client) Push(ctx context.Context, batch []ActionTuple) (*PushResponse, error) {
	var resp PushResponse
	if err := c.do(ctx, http.MethodPost, "/sync/push-actions", &PushRequest{Actions: batch}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull sends the known version tokens and returns the changes since then.
func (c *Client) Pull(ctx context.Context, status models.ClientDataStatus) (*models.ServerDataStatus, error) {
	var resp models.ServerDataStatus
	if err := c.do(ctx, http.MethodPost, "/sync/pull-status", status, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IsDeviceRemoved asks whether the credential was revoked because the device was removed.
func (c *Client) IsDeviceRemoved(ctx context.Context) (bool, error) {
	var resp DeviceRemovedResponse
	body := map[string]string{"device_auth_token": c.AuthToken}
	if err := c.doNoAuth(ctx, http.MethodPost, "/sync/is-device-removed", body, &resp); err != nil {
		return false, err
	}
	return resp.IsDeviceRemoved, nil
}

// --- HTTP helpers ---

// APIError is an error reply from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Unwrap maps the status to the matching sentinel so errors.Is works.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

type errorBody struct {
	Error APIError `json:"error"`
}

// do executes an authenticated HTTP request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, false)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error.Code != "" {
			eb.Error.Status = resp.StatusCode
			return &eb.Error
		}
		return &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: string(bytes.TrimSpace(respBody))}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
