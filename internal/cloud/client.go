package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

const (
	defaultRequestTimeout = 30 * time.Second

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 1 << 20

	// maxErrorBody is how much of an error body is kept in a StatusError.
	maxErrorBody = 256
)

// Client calls the cloud device API.
//
// Every call except Register and RefreshAccessToken is authorised with the
// device's bearer access token, passed in by the caller. The client holds
// no credentials itself.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for cfg. A nil httpClient gets one with the
// configured request timeout.
func New(cfg config.CloudConfig, httpClient *http.Client) *Client {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if httpClient == nil {
		timeout := time.Duration(cfg.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    scheme + "://" + strings.TrimRight(cfg.APIBaseURL, "/") + "/",
		httpClient: httpClient,
	}
}

// BaseURL returns the API root, ending in "/".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register announces the device (PUT devices). No authorisation is sent.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (Registration, error) {
	var out Registration
	if _, err := c.do(ctx, http.MethodPut, "devices", "", req, &out); err != nil {
		return Registration{}, err
	}
	return out, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token
// (POST devices/{id}/token).
func (c *Client) RefreshAccessToken(ctx context.Context, deviceID, refreshToken string) (string, error) {
	if deviceID == "" {
		return "", ErrMissingDevice
	}
	var out tokenResponse
	if _, err := c.do(ctx, http.MethodPost, "devices/"+deviceID+"/token", "", tokenRequest{Token: refreshToken}, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: token response has no accessToken", ErrDecodeFailed)
	}
	return out.AccessToken, nil
}

// GetDevice checks the device record exists (GET devices/{id}).
func (c *Client) GetDevice(ctx context.Context, accessToken, deviceID string) error {
	if deviceID == "" {
		return ErrMissingDevice
	}
	_, err := c.do(ctx, http.MethodGet, "devices/"+deviceID, accessToken, nil, nil)
	return err
}

// GetLink returns the linked account (GET devices/{id}/link), or nil when
// no account is linked (204).
func (c *Client) GetLink(ctx context.Context, accessToken, deviceID string) (*LinkedUser, error) {
	if deviceID == "" {
		return nil, ErrMissingDevice
	}
	var out linkResponse
	status, err := c.do(ctx, http.MethodGet, "devices/"+deviceID+"/link", accessToken, nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, &StatusError{Method: http.MethodGet, Path: "devices/" + deviceID + "/link", StatusCode: status}
	}
	return &out.User, nil
}

// DeleteLink unlinks the account (DELETE devices/{id}/link).
func (c *Client) DeleteLink(ctx context.Context, accessToken, deviceID string) error {
	if deviceID == "" {
		return ErrMissingDevice
	}
	_, err := c.do(ctx, http.MethodDelete, "devices/"+deviceID+"/link", accessToken, nil, nil)
	return err
}

// ActivationCode fetches a code the user enters to link an account
// (GET devices/{id}/activation-code).
func (c *Client) ActivationCode(ctx context.Context, accessToken, deviceID string) (string, error) {
	if deviceID == "" {
		return "", ErrMissingDevice
	}
	var out activationResponse
	if _, err := c.do(ctx, http.MethodGet, "devices/"+deviceID+"/activation-code", accessToken, nil, &out); err != nil {
		return "", err
	}
	return out.ActivationCode, nil
}

// UpdateHostname reports the device's current address (POST devices/{id}).
func (c *Client) UpdateHostname(ctx context.Context, accessToken, deviceID, hostname string) error {
	if deviceID == "" {
		return ErrMissingDevice
	}
	_, err := c.do(ctx, http.MethodPost, "devices/"+deviceID, accessToken, hostnameRequest{Hostname: hostname}, nil)
	return err
}

// DeleteDevice deregisters the device (DELETE devices/{id}).
func (c *Client) DeleteDevice(ctx context.Context, accessToken, deviceID string) error {
	if deviceID == "" {
		return ErrMissingDevice
	}
	_, err := c.do(ctx, http.MethodDelete, "devices/"+deviceID, accessToken, deleteDeviceRequest{ID: deviceID}, nil)
	return err
}

// do performs one JSON request. Statuses >= 400 return a *StatusError.
// out is decoded only for a non-empty 2xx body other than 204.
func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("cloud: encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: reading %s %s: %w", ErrRequestFailed, method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp.StatusCode, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: snippet}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %w", ErrDecodeFailed, method, path, err)
	}
	return resp.StatusCode, nil
}
