// Package ledgerapi is the HTTP client for the remote point ledger. It is the
// only place in the terminal that talks to the network.
package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
)

// Error codes. Timeout and unavailable are ambiguous: the ledger may have
// applied the operation. Rejected and unauthorized are definite answers.
const (
	CodeRejected     = "rejected"
	CodeTimeout      = "timeout"
	CodeUnavailable  = "unavailable"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not-found"
	CodeUnknown      = "unknown"
)

type Error struct {
	Code   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, status: %d, error: %v", e.Code, e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code string, status int, err error) *Error {
	return &Error{Code: code, Status: status, Err: err}
}

// Ambiguous reports whether the error leaves the server-side outcome unknown.
func Ambiguous(err error) bool {
	var lerr *Error
	if !errors.As(err, &lerr) {
		return true
	}
	return lerr.Code == CodeTimeout || lerr.Code == CodeUnavailable || lerr.Code == CodeUnknown
}

type Credentials struct {
	TerminalID string
	Secret     string
}

type Client struct {
	LedgerAddr string

	creds  Credentials
	client *http.Client
	tokens tokenState
	logger logger.Logger
}

func NewClient(addr string, creds Credentials, logger logger.Logger) *Client {
	return &Client{
		LedgerAddr: addr,
		creds:      creds,
		client:     &http.Client{},
		logger:     logger,
	}
}

type FinalizePaymentRequest struct {
	TransactionID  string `json:"transaction_id"`
	CustomerID     string `json:"customer_id"`
	GrossAmount    int64  `json:"gross_amount"`
	PointsRedeemed int64  `json:"points_redeemed"`
	PointsEarned   int64  `json:"points_earned"`
	IdempotencyKey string `json:"idempotency_key"`
}

type PaymentResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	BalanceAfter  int64  `json:"balance_after"`
}

type GrantPointsRequest struct {
	CustomerID     string `json:"customer_id"`
	Points         int64  `json:"points"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

type GrantResult struct {
	Status       string `json:"status"`
	BalanceAfter int64  `json:"balance_after"`
}

// GetProfile looks up a member's balance and rank.
func (c *Client) GetProfile(ctx context.Context, customerID string) (models.Customer, error) {
	var resp struct {
		CustomerID   string `json:"customer_id"`
		DisplayName  string `json:"display_name"`
		PointBalance int64  `json:"point_balance"`
		Rank         string `json:"rank"`
	}

	query := url.Values{"customer_id": {customerID}}
	err := c.do(ctx, http.MethodGet, "/user/profile", query, nil, &resp)
	if err != nil {
		return models.Customer{}, err
	}

	return models.Customer{
		ID:           resp.CustomerID,
		DisplayName:  resp.DisplayName,
		PointBalance: resp.PointBalance,
		Rank:         resp.Rank,
	}, nil
}

// InitiatePayment starts a payment session and returns its transaction id.
func (c *Client) InitiatePayment(ctx context.Context, customerID string, amount int64) (string, error) {
	req := map[string]any{"customer_id": customerID, "amount": amount}
	var resp struct {
		TransactionID string `json:"transaction_id"`
	}

	err := c.do(ctx, http.MethodPost, "/payments/initiate", nil, req, &resp)
	if err != nil {
		return "", err
	}

	return resp.TransactionID, nil
}

// FinalizePayment settles a payment. The ledger must apply a given idempotency
// key at most once.
func (c *Client) FinalizePayment(ctx context.Context, req FinalizePaymentRequest) (PaymentResult, error) {
	var resp PaymentResult
	err := c.do(ctx, http.MethodPost, "/payments/mock", nil, req, &resp)
	return resp, err
}

// PaymentStatus polls the outcome of a payment session.
func (c *Client) PaymentStatus(ctx context.Context, transactionID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}

	query := url.Values{"transaction_id": {transactionID}}
	err := c.do(ctx, http.MethodGet, "/payments/status", query, nil, &resp)
	if err != nil {
		return "", err
	}

	return resp.Status, nil
}

// GrantPoints credits points outside a payment. Idempotency key required.
func (c *Client) GrantPoints(ctx context.Context, req GrantPointsRequest) (GrantResult, error) {
	var resp GrantResult
	err := c.do(ctx, http.MethodPost, "/points/grant", nil, req, &resp)
	return resp, err
}

// PointsHistory returns the raw history payload so the cache layer can store
// it verbatim.
func (c *Client) PointsHistory(ctx context.Context, customerID string) ([]byte, error) {
	query := url.Values{"customer_id": {customerID}}
	return c.doRaw(ctx, http.MethodGet, "/points/history", query)
}

// FetchResource downloads a static terminal resource (branding, scripts) by
// its path on the ledger host.
func (c *Client) FetchResource(ctx context.Context, path string) ([]byte, error) {
	return c.doRaw(ctx, http.MethodGet, path, nil)
}

// Ping checks ledger reachability.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body any, out any) error {
	raw, err := c.roundTrip(ctx, method, path, query, body, true)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method string, path string, query url.Values) ([]byte, error) {
	return c.roundTrip(ctx, method, path, query, nil, true)
}

func (c *Client) roundTrip(ctx context.Context, method string, path string, query url.Values, body any, retryAuth bool) ([]byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	target := c.LedgerAddr + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, NewError(CodeUnknown, 0, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(CodeUnknown, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil

	case resp.StatusCode == http.StatusUnauthorized:
		c.tokens.invalidate()
		if retryAuth {
			return c.roundTrip(ctx, method, path, query, body, false)
		}
		return nil, NewError(CodeUnauthorized, resp.StatusCode, fmt.Errorf("ledger rejected terminal credentials"))

	case resp.StatusCode == http.StatusNotFound:
		return nil, NewError(CodeNotFound, resp.StatusCode, fmt.Errorf("%s", serverMessage(raw)))

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The ledger answered and declined: a definite outcome.
		return nil, NewError(CodeRejected, resp.StatusCode, fmt.Errorf("%s", serverMessage(raw)))

	default:
		c.logger.Warn("Unexpected ledger response", "status_code", resp.StatusCode, "path", path)
		return nil, NewError(CodeUnavailable, resp.StatusCode, fmt.Errorf("ledger unavailable: %s", serverMessage(raw)))
	}
}

// transportError classifies a failed round trip: deadline and timeout errors
// are ambiguous, everything else means the ledger was never reached.
func transportError(err error) *Error {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeTimeout, 0, err)
	case errors.As(err, &nerr) && nerr.Timeout():
		return NewError(CodeTimeout, 0, err)
	default:
		return NewError(CodeUnavailable, 0, fmt.Errorf("failed to reach ledger: %w", err))
	}
}

func serverMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return "ledger declined the request"
}
