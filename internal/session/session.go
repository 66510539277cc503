// Package session owns the cloud account session: login, token storage
// and the single-flight refresh cycle.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// AuthError means the credentials were rejected or the auth response was
// malformed. It is fatal to the session and not retried automatically.
type AuthError struct {
	Status int
	Msg    string
}

func (e AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("authentication failed: %s", e.Msg)
}

// TokenRefreshError means the refresh endpoint rejected the refresh token.
type TokenRefreshError struct {
	Status int
	Err    error
}

func (e TokenRefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed (%d)", e.Status)
}

func (e TokenRefreshError) Unwrap() error { return e.Err }

// Event identifies session lifecycle notifications.
type Event string

const (
	EventAuthenticated      Event = "authenticated"
	EventTokenRefreshed     Event = "tokenRefreshed"
	EventTokenRefreshFailed Event = "tokenRefreshFailed"
)

// Credentials are the vendor account login details.
type Credentials struct {
	Email    string
	Password string
}

// Tokens is the current token pair. Zero value means logged out.
type Tokens struct {
	Access        string
	Refresh       string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

// Options tune refresh behavior. Zero values take the protocol defaults.
type Options struct {
	// RefreshThreshold triggers a refresh when the access token expires
	// within this window.
	RefreshThreshold time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	// MaxRefreshFailures is the 401 ceiling beyond which the manager gives
	// up on the refresh token and performs a full re-authentication.
	MaxRefreshFailures int
}

func (o *Options) applyDefaults() {
	if o.RefreshThreshold <= 0 {
		o.RefreshThreshold = 5 * time.Minute
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.MaxRefreshFailures <= 0 {
		o.MaxRefreshFailures = 5
	}
}

// Manager owns the account session and its token lifecycle.
type Manager struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	opts       Options
	log        zerolog.Logger

	mu        sync.Mutex
	tokens    Tokens
	failures  int
	observers []func(Event)

	group singleflight.Group
}

// NewManager builds a session manager. The http.Client must be the shared
// rate-limited client so auth traffic is paced like everything else.
func NewManager(baseURL string, creds Credentials, client *http.Client, opts Options, log zerolog.Logger) *Manager {
	opts.applyDefaults()
	return &Manager{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: client,
		opts:       opts,
		log:        log.With().Str("component", "session").Logger(),
	}
}

// Subscribe registers a lifecycle observer. Observers are invoked
// synchronously on the goroutine that triggered the event.
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *Manager) notify(ev Event) {
	m.mu.Lock()
	observers := make([]func(Event), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// Tokens returns a snapshot of the current token pair.
func (m *Manager) Tokens() Tokens {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Logout destroys the session state.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.tokens = Tokens{}
	m.failures = 0
	m.mu.Unlock()
}

type tokenResponse struct {
	Data struct {
		Token struct {
			AccessToken   string `json:"accessToken"`
			Expire        string `json:"expire"`
			RefreshToken  string `json:"refreshToken"`
			RefreshExpire string `json:"refreshExpire"`
		} `json:"token"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Authenticate performs a full login with the stored credentials.
func (m *Manager) Authenticate(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"email":    m.creds.Email,
		"password": m.creds.Password,
	})

	tokens, err := m.postTokens(ctx, "/v1/users/auth/sign-in", body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.tokens = tokens
	m.failures = 0
	m.mu.Unlock()

	authSuccessTotal.Inc()
	tokenValid.Set(1)
	m.log.Info().Time("expiry", tokens.AccessExpiry).Msg("authenticated")
	m.notify(EventAuthenticated)
	return nil
}

// AccessToken returns a valid access token, refreshing or
// re-authenticating first when the current one is missing or expires
// within the refresh threshold.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	token := m.tokens.Access
	valid := token != "" && time.Until(m.tokens.AccessExpiry) > m.opts.RefreshThreshold
	m.mu.Unlock()

	if valid {
		return token, nil
	}
	if err := m.Refresh(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens.Access, nil
}

// Refresh renews the token pair. Concurrent callers share one in-flight
// refresh; none of them issues a duplicate network call.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.tokens.Refresh
	refreshExpiry := m.tokens.RefreshExpiry
	m.mu.Unlock()

	if refreshToken == "" || (!refreshExpiry.IsZero() && time.Now().After(refreshExpiry)) {
		return m.Authenticate(ctx)
	}

	for {
		body, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
		tokens, err := m.postTokens(ctx, "/v1/users/auth/refresh", body)
		if err == nil {
			m.mu.Lock()
			m.tokens = tokens
			m.failures = 0
			m.mu.Unlock()
			refreshSuccessTotal.Inc()
			tokenValid.Set(1)
			m.notify(EventTokenRefreshed)
			return nil
		}

		refreshFailureTotal.Inc()
		tokenValid.Set(0)
		m.notify(EventTokenRefreshFailed)

		authErr, rejected := err.(AuthError)
		if !rejected || authErr.Status != http.StatusUnauthorized {
			return TokenRefreshError{Err: err}
		}

		m.mu.Lock()
		m.failures++
		failures := m.failures
		m.mu.Unlock()

		if failures >= m.opts.MaxRefreshFailures {
			// The refresh token is not coming back. Start over.
			m.mu.Lock()
			m.failures = 0
			m.mu.Unlock()
			m.log.Warn().Int("failures", failures).Msg("refresh ceiling reached, re-authenticating")
			return m.Authenticate(ctx)
		}

		delay := time.Duration(math.Min(
			float64(m.opts.BackoffBase)*math.Pow(2, float64(failures)),
			float64(m.opts.BackoffMax),
		))
		m.log.Warn().Int("failures", failures).Dur("backoff", delay).Msg("refresh rejected, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) postTokens(ctx context.Context, path string, body []byte) (Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Tokens{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Tokens{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Tokens{}, AuthError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(payload))}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Tokens{}, AuthError{Msg: fmt.Sprintf("malformed auth response: %v", err)}
	}
	if parsed.Error != nil {
		return Tokens{}, AuthError{Msg: parsed.Error.Message}
	}
	token := parsed.Data.Token
	if token.AccessToken == "" {
		return Tokens{}, AuthError{Msg: "auth response missing access token"}
	}

	tokens := Tokens{
		Access:  token.AccessToken,
		Refresh: token.RefreshToken,
	}
	if token.Expire != "" {
		if at, err := time.Parse(time.RFC3339, token.Expire); err == nil {
			tokens.AccessExpiry = at
		}
	}
	if token.RefreshExpire != "" {
		if at, err := time.Parse(time.RFC3339, token.RefreshExpire); err == nil {
			tokens.RefreshExpiry = at
		}
	}
	return tokens, nil
}
