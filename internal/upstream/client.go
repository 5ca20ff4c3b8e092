package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleexa/device-sync/internal/state"
)

// Logger defines the logging interface used by the upstream client.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Client is the REST client for the dashboard server: roster listing and
// device control. All calls carry the session's bearer token; a 401
// invalidates the session so the next call logs in afresh.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    *Session
	logger     Logger
}

// NewClient creates a client bound to a session. requestTimeout bounds every
// call; a command call that exceeds it counts as failed.
func NewClient(baseURL string, session *Session, requestTimeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    session,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Session returns the client's session, so the transport can reuse its token
// for the push channel.
func (c *Client) Session() *Session {
	return c.session
}

// ListDevices fetches the authoritative roster.
func (c *Client) ListDevices(ctx context.Context) ([]state.DeviceIdentity, error) {
	resp, err := c.do(ctx, http.MethodGet, "/devices/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	var devices []state.DeviceIdentity
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("%w: decoding roster: %v", ErrRequestFailed, err)
	}
	c.logger.Debug("roster fetched", "count", len(devices))
	return devices, nil
}

// Control issues a device control intent. Payload is a boolean for
// toggle/auto and a schedule for schedule. Any non-2xx response is a command
// failure and triggers rollback in the dispatcher.
func (c *Client) Control(ctx context.Context, deviceID string, kind ControlKind, payload any) error {
	body := controlRequest{Type: kind, Payload: payload}
	path := "/devices/" + url.PathEscape(deviceID) + "/control"

	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()        //nolint:errcheck // read-only body
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for reuse

	c.logger.Debug("control accepted", "device_id", deviceID, "type", kind)
	return nil
}

// do issues one authenticated request and maps error statuses to sentinel
// errors.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close() //nolint:errcheck // body unused on error
		c.session.Invalidate()
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close() //nolint:errcheck // body unused on error
		if method == http.MethodPost {
			return nil, fmt.Errorf("%w: %s %s returned %d", ErrCommandRejected, method, path, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrRequestFailed, method, path, resp.StatusCode)
	}
	return resp, nil
}
