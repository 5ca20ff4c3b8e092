package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshSkew is how far ahead of token expiry a refresh is triggered, so a
// request issued just before the deadline still carries a valid token.
const refreshSkew = 30 * time.Second

// Session owns the bearer token for one upstream login.
//
// Token logs in lazily on first use, refreshes proactively before the JWT
// expires, and re-logs-in after Invalidate. Concurrent callers share one
// login; the mutex is held across the token request so only one flight
// happens at a time.
type Session struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	logger Logger
}

// NewSession creates a session for the given credentials. No network call is
// made until the first Token.
func NewSession(httpClient *http.Client, baseURL, username, password string) *Session {
	return &Session{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// Token returns a valid bearer token, logging in or refreshing as needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.expiresAt.IsZero() || time.Now().Before(s.expiresAt.Add(-refreshSkew))) {
		return s.token, nil
	}
	return s.login(ctx)
}

// Invalidate discards the current token. The next Token call logs in again.
// Called when a data call returns 401.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	s.logger.Warn("session invalidated")
}

// login performs the password-grant token request. Caller holds the mutex.
func (s *Session) login(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", s.username)
	form.Set("password", s.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for reuse
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrAuthFailed, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrAuthFailed, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	s.token = body.AccessToken
	s.expiresAt = tokenExpiry(body)
	s.logger.Info("session established", "expires_at", s.expiresAt)
	return s.token, nil
}

// tokenExpiry derives the token deadline, preferring the JWT exp claim over
// the response's expires_in hint. The claim is read without verifying the
// signature; the server owns verification.
func tokenExpiry(body tokenResponse) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(body.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if body.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return time.Time{}
}
