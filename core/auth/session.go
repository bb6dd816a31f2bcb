// Package auth holds the member credentials and keeps the access token
// fresh through the standard OAuth refresh loop.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"AuraFM/core/watch"
	"AuraFM/logger"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the current token pair.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the access token is present and unexpired.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && time.Now().Before(c.ExpiresAt)
}

const (
	refreshAhead      = time.Minute
	refreshRetryAfter = 30 * time.Second
)

// MemberSession owns the credentials and refreshes them ahead of expiry.
type MemberSession struct {
	mu       sync.Mutex
	creds    Credentials
	endpoint string
	httpc    *http.Client
	cell     *watch.Cell[Credentials]
}

// NewMemberSession creates a session refreshing against the token endpoint.
func NewMemberSession(endpoint, refreshToken string) *MemberSession {
	return &MemberSession{
		endpoint: endpoint,
		creds:    Credentials{RefreshToken: refreshToken},
		httpc:    &http.Client{Timeout: 15 * time.Second},
		cell:     watch.NewCell(Credentials{RefreshToken: refreshToken}),
	}
}

// CredentialsCell exposes the published token pair.
func (m *MemberSession) CredentialsCell() *watch.Cell[Credentials] { return m.cell }

// Current returns the current credentials.
func (m *MemberSession) Current() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// SetTokens installs a token pair, reading the expiry from the access
// token's exp claim. The signature is the server's to verify, not ours.
func (m *MemberSession) SetTokens(access, refresh string) error {
	expiresAt, err := tokenExpiry(access)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.creds = Credentials{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}
	creds := m.creds
	m.mu.Unlock()
	m.cell.Set(creds)
	return nil
}

func tokenExpiry(access string) (time.Time, error) {
	token, _, err := jwt.NewParser().ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim: %w", err)
	}
	return exp.Time, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Refresh exchanges the refresh token for a fresh pair.
func (m *MemberSession) Refresh(ctx context.Context) error {
	m.mu.Lock()
	refresh := m.creds.RefreshToken
	m.mu.Unlock()
	if refresh == "" {
		return fmt.Errorf("no refresh token")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.RefreshToken == "" {
		tr.RefreshToken = refresh
	}
	return m.SetTokens(tr.AccessToken, tr.RefreshToken)
}

// Run refreshes ahead of expiry until the context is cancelled.
func (m *MemberSession) Run(ctx context.Context) {
	for {
		m.mu.Lock()
		expiresAt := m.creds.ExpiresAt
		m.mu.Unlock()

		wait := time.Until(expiresAt) - refreshAhead
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := m.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("token refresh failed", logger.ErrorField(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(refreshRetryAfter):
			}
		}
	}
}
