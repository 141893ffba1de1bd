// Package msauth owns the Microsoft identity platform token lifecycle for the
// bridge: silent session checks against cached refresh tokens, the interactive
// authorization-code flow with PKCE, and access token handout with expiry
// demotion.
package msauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/leadsuccess/dynamics-bridge/internal/configstore"
	"github.com/leadsuccess/dynamics-bridge/internal/metrics"
)

const (
	defaultAuthority    = "https://login.microsoftonline.com"
	defaultLoginTimeout = 5 * time.Minute
)

// State describes where the bridge stands with the identity provider.
type State string

const (
	StateUnconfigured   State = "unconfigured"
	StateDisconnected   State = "disconnected"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
	StateExpired        State = "expired"
)

// Account identifies the signed-in Dynamics user, parsed from the ID token.
type Account struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	ObjectID string `json:"objectId"`
}

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State   State    `json:"state"`
	Account *Account `json:"account,omitempty"`
}

// Handle represents an interactive sign-in in flight. AuthURL is where the
// user's browser must go; Done receives the final outcome exactly once.
type Handle struct {
	AuthURL string
	Done    <-chan error
}

type Options struct {
	AuthorityBaseURL string
	RedirectURL      string
	LoginTimeout     time.Duration
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

// Manager is the single authority on token state. All mutation goes through
// its mutex; callers only ever see copies.
type Manager struct {
	channel       InteractiveAuthChannel
	authorityBase string
	redirectURL   string
	loginTimeout  time.Duration
	httpClient    *http.Client
	logger        *slog.Logger

	mu          sync.Mutex
	cfg         configstore.ClientConfiguration
	configured  bool
	oauthCfg    *oauth2.Config
	tokenSource oauth2.TokenSource
	account     *Account
	state       State
}

func NewManager(channel InteractiveAuthChannel, opts Options) *Manager {
	authority := strings.TrimRight(strings.TrimSpace(opts.AuthorityBaseURL), "/")
	if authority == "" {
		authority = defaultAuthority
	}
	timeout := opts.LoginTimeout
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		channel:       channel,
		authorityBase: authority,
		redirectURL:   strings.TrimSpace(opts.RedirectURL),
		loginTimeout:  timeout,
		httpClient:    opts.HTTPClient,
		logger:        logger,
		state:         StateUnconfigured,
	}
}

// Configure installs a validated client configuration. Any cached tokens are
// invalidated because they were minted for the previous app registration.
func (m *Manager) Configure(cfg configstore.ClientConfiguration) error {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.configured = true
	m.oauthCfg = m.buildOAuthConfigLocked()
	m.tokenSource = nil
	m.account = nil
	m.state = StateDisconnected
	return nil
}

// ClearConfiguration drops the configuration and all session state.
func (m *Manager) ClearConfiguration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = configstore.ClientConfiguration{}
	m.configured = false
	m.oauthCfg = nil
	m.tokenSource = nil
	m.account = nil
	m.state = StateUnconfigured
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state}
	if m.account != nil {
		acct := *m.account
		st.Account = &acct
	}
	return st
}

// Configuration returns the active client configuration, if any.
func (m *Manager) Configuration() (configstore.ClientConfiguration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, m.configured
}

// CheckExistingSession probes whether a cached session can still mint tokens
// without user interaction. It never opens an interactive flow and never
// fails on a fresh install; "nothing to restore" is the answer, not an error.
func (m *Manager) CheckExistingSession(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if !m.configured {
		m.mu.Unlock()
		return false, nil
	}
	src := m.tokenSource
	m.mu.Unlock()

	if src == nil {
		return false, nil
	}
	if _, err := src.Token(); err != nil {
		m.demoteDisconnected()
		return false, nil
	}
	return true, nil
}

// StartConnect establishes a session, silently when the cached token source
// still mints tokens and interactively otherwise. An interactive handle
// carries the authorization URL to present to the user; the flow completes
// asynchronously when the redirect callback is delivered, and its lifetime is
// bounded by the login timeout, not by ctx. The caller's request ending must
// not tear down a sign-in the user has yet to complete.
func (m *Manager) StartConnect(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if !m.configured {
		m.mu.Unlock()
		return nil, ErrNotConfigured
	}
	if m.state == StateAuthenticating {
		m.mu.Unlock()
		return nil, ErrAuthInProgress
	}
	oauthCfg := m.oauthCfg
	src := m.tokenSource
	prevState := m.state
	m.state = StateAuthenticating
	m.mu.Unlock()

	if src != nil {
		if _, err := src.Token(); err == nil {
			m.setState(StateConnected)
			metrics.TokenAcquisitionsTotal.WithLabelValues("silent", "succeeded").Inc()
			done := make(chan error, 1)
			done <- nil
			return &Handle{Done: done}, nil
		}
		m.mu.Lock()
		m.tokenSource = nil
		m.account = nil
		m.mu.Unlock()
		prevState = StateDisconnected
	}

	verifier := oauth2.GenerateVerifier()
	flowState := uuid.NewString()
	authURL := oauthCfg.AuthCodeURL(flowState, oauth2.S256ChallengeOption(verifier))

	results, err := m.channel.Begin(flowState, authURL)
	if err != nil {
		m.setState(prevState)
		return nil, err
	}

	done := make(chan error, 1)
	go m.awaitCallback(oauthCfg, flowState, verifier, prevState, results, done)

	return &Handle{AuthURL: authURL, Done: done}, nil
}

// Connect runs the interactive flow to completion.
func (m *Manager) Connect(ctx context.Context) error {
	handle, err := m.StartConnect(ctx)
	if err != nil {
		return err
	}
	return <-handle.Done
}

func (m *Manager) awaitCallback(oauthCfg *oauth2.Config, flowState, verifier string, prevState State, results <-chan AuthResult, done chan<- error) {
	timer := time.NewTimer(m.loginTimeout)
	defer timer.Stop()

	var res AuthResult
	select {
	case res = <-results:
	case <-timer.C:
		res = AuthResult{Err: fmt.Errorf("%w: login timed out after %s", ErrAuthenticationCancelled, m.loginTimeout)}
		m.channel.Cancel(flowState)
	}

	if res.Err != nil {
		m.setState(prevState)
		metrics.TokenAcquisitionsTotal.WithLabelValues("interactive", "failed").Inc()
		m.logger.Warn("interactive sign-in failed", "error", res.Err)
		done <- res.Err
		return
	}

	token, err := oauthCfg.Exchange(m.oauthContext(context.Background()), res.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		m.setState(prevState)
		metrics.TokenAcquisitionsTotal.WithLabelValues("interactive", "failed").Inc()
		m.logger.Warn("token exchange failed", "error", err)
		done <- fmt.Errorf("token exchange failed: %w", err)
		return
	}

	account := accountFromToken(token)

	m.mu.Lock()
	m.tokenSource = oauthCfg.TokenSource(m.oauthContext(context.Background()), token)
	m.account = account
	m.state = StateConnected
	m.mu.Unlock()

	metrics.TokenAcquisitionsTotal.WithLabelValues("interactive", "succeeded").Inc()

	if account != nil {
		m.logger.Info("signed in to dynamics", "account", account.Username)
	} else {
		m.logger.Info("signed in to dynamics")
	}
	done <- nil
}

// Disconnect drops the local session. It always succeeds; there is no remote
// token revocation in this flow.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenSource = nil
	m.account = nil
	if m.configured {
		m.state = StateDisconnected
	} else {
		m.state = StateUnconfigured
	}
}

// AccessToken returns a currently valid bearer token, refreshing silently if
// needed. A failed refresh demotes the session to expired.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.configured {
		m.mu.Unlock()
		return "", ErrNotConfigured
	}
	src := m.tokenSource
	state := m.state
	m.mu.Unlock()

	if src == nil {
		if state == StateExpired {
			return "", ErrTokenExpired
		}
		return "", ErrNotAuthenticated
	}

	token, err := src.Token()
	if err != nil {
		m.demoteExpired()
		metrics.TokenAcquisitionsTotal.WithLabelValues("silent", "failed").Inc()
		return "", fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	return token.AccessToken, nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Manager) demoteExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenSource = nil
	m.account = nil
	if m.configured {
		m.state = StateExpired
	}
}

// demoteDisconnected drops a dead cached session without flagging it as an
// expired one; the caller was only probing, not relying on a live token.
func (m *Manager) demoteDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenSource = nil
	m.account = nil
	if m.configured {
		m.state = StateDisconnected
	}
}

// oauthContext injects the test HTTP client into oauth2 calls when set.
func (m *Manager) oauthContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) buildOAuthConfigLocked() *oauth2.Config {
	tenant := m.cfg.TenantID
	return &oauth2.Config{
		ClientID:    m.cfg.ClientID,
		RedirectURL: m.redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.authorityBase + "/" + tenant + "/oauth2/v2.0/authorize",
			TokenURL: m.authorityBase + "/" + tenant + "/oauth2/v2.0/token",
		},
		Scopes: []string{
			m.cfg.ResourceURL + "/user_impersonation",
			"openid",
			"profile",
			"offline_access",
		},
	}
}

// accountFromToken extracts the signed-in identity from the id_token claims.
// The token arrived over TLS from the token endpoint we called, so signature
// verification is not repeated here.
func accountFromToken(token *oauth2.Token) *Account {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}
	acct := &Account{}
	if v, ok := claims["name"].(string); ok {
		acct.Name = v
	}
	if v, ok := claims["preferred_username"].(string); ok {
		acct.Username = v
	}
	if v, ok := claims["oid"].(string); ok {
		acct.ObjectID = v
	}
	if acct.Name == "" && acct.Username == "" && acct.ObjectID == "" {
		return nil
	}
	return acct
}
