package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// How long before the recorded expiry a token is considered stale.
const tokenExpirySlack = 30 * time.Second

// Fallback lifetime for tokens whose expiry cannot be read.
const tokenDefaultLifetime = 15 * time.Minute

type tokenState struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (t *tokenState) get() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token == "" || time.Now().After(t.expiresAt.Add(-tokenExpirySlack)) {
		return "", false
	}
	return t.token, true
}

func (t *tokenState) set(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.token = token
	t.expiresAt = tokenExpiry(token)
}

func (t *tokenState) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.token = ""
	t.expiresAt = time.Time{}
}

// tokenExpiry reads the exp claim without verifying the signature. The
// terminal is not the token's audience verifier, it only needs to know when
// to log in again.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return time.Now().Add(tokenDefaultLifetime)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(tokenDefaultLifetime)
	}
	return exp.Time
}

// ensureToken returns a usable bearer token, logging in to the ledger when
// the held one is missing or about to expire.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if token, ok := c.tokens.get(); ok {
		return token, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	c.tokens.set(token)
	c.logger.Debug("Terminal authenticated with ledger", "terminal_id", c.creds.TerminalID)
	return token, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"terminal_id": c.creds.TerminalID,
		"secret":      c.creds.Secret,
	})
	if err != nil {
		return "", NewError(CodeUnknown, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.LedgerAddr+"/auth/login/terminal", bytes.NewReader(body))
	if err != nil {
		return "", NewError(CodeUnknown, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", NewError(CodeUnauthorized, resp.StatusCode, fmt.Errorf("terminal login failed"))
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", NewError(CodeUnknown, resp.StatusCode, fmt.Errorf("failed to decode login response: %w", err))
	}
	if loginResp.Token == "" {
		return "", NewError(CodeUnauthorized, resp.StatusCode, fmt.Errorf("ledger returned empty token"))
	}

	return loginResp.Token, nil
}
