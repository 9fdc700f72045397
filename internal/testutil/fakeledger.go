package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// FakeLedger is an in-memory stand-in for the remote point ledger. It honors
// the idempotency contract: one logical key is applied at most once, however
// many times it is submitted.
type FakeLedger struct {
	Server *httptest.Server

	mu        sync.Mutex
	balances  map[string]int64
	names     map[string]string
	ranks     map[string]string
	applied   map[string]int64 // idempotency key -> balance delta applied
	submits   map[string]int   // idempotency key -> submission count
	payments  map[string]string
	history   []historyEntry
	logins    int
	delay     time.Duration
	declining bool
}

type historyEntry struct {
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	ProcessedAt time.Time `json:"processed_at"`
}

func NewFakeLedger(t *testing.T) *FakeLedger {
	t.Helper()

	l := &FakeLedger{
		balances: map[string]int64{},
		names:    map[string]string{},
		ranks:    map[string]string{},
		applied:  map[string]int64{},
		submits:  map[string]int{},
		payments: map[string]string{},
		history:  []historyEntry{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login/terminal", l.handleLogin)
	mux.HandleFunc("GET /health", l.handleHealth)
	mux.HandleFunc("GET /user/profile", l.handleProfile)
	mux.HandleFunc("POST /payments/initiate", l.handleInitiate)
	mux.HandleFunc("POST /payments/mock", l.handleFinalize)
	mux.HandleFunc("GET /payments/status", l.handleStatus)
	mux.HandleFunc("POST /points/grant", l.handleGrant)
	mux.HandleFunc("GET /points/history", l.handleHistory)

	l.Server = httptest.NewServer(mux)
	t.Cleanup(l.Server.Close)

	return l
}

func (l *FakeLedger) URL() string {
	return l.Server.URL
}

func (l *FakeLedger) AddCustomer(id string, name string, balance int64, rank string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[id] = balance
	l.names[id] = name
	l.ranks[id] = rank
}

// SetDelay makes every endpoint take at least d. Set it past the processor
// deadline to simulate a dead link.
func (l *FakeLedger) SetDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = d
}

// SetDeclining makes payment and grant submissions answer with an explicit
// rejection.
func (l *FakeLedger) SetDeclining(declining bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.declining = declining
}

func (l *FakeLedger) Balance(customerID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[customerID]
}

// Submissions reports how many times a key was submitted; Applied reports the
// balance delta actually applied for it (at most once).
func (l *FakeLedger) Submissions(idempotencyKey string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits[idempotencyKey]
}

func (l *FakeLedger) Applied(idempotencyKey string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delta, ok := l.applied[idempotencyKey]
	return delta, ok
}

// Logins reports how many times a terminal authenticated.
func (l *FakeLedger) Logins() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logins
}

func (l *FakeLedger) pause() {
	l.mu.Lock()
	d := l.delay
	l.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (l *FakeLedger) handleLogin(w http.ResponseWriter, r *http.Request) {
	l.pause()

	l.mu.Lock()
	l.logins++
	l.mu.Unlock()

	var req struct {
		TerminalID string `json:"terminal_id"`
		Secret     string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TerminalID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad credentials"})
		return
	}

	claims := jwt.MapClaims{
		"sub": req.TerminalID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fake-ledger-secret"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (l *FakeLedger) handleHealth(w http.ResponseWriter, _ *http.Request) {
	l.pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (l *FakeLedger) handleProfile(w http.ResponseWriter, r *http.Request) {
	l.pause()

	customerID := r.URL.Query().Get("customer_id")

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[customerID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customer_id":   customerID,
		"display_name":  l.names[customerID],
		"point_balance": balance,
		"rank":          l.ranks[customerID],
	})
}

func (l *FakeLedger) handleInitiate(w http.ResponseWriter, r *http.Request) {
	l.pause()

	var req struct {
		CustomerID string `json:"customer_id"`
		Amount     int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	transactionID := uuid.NewString()

	l.mu.Lock()
	l.payments[transactionID] = "initiated"
	l.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": transactionID})
}

func (l *FakeLedger) handleFinalize(w http.ResponseWriter, r *http.Request) {
	l.pause()

	var req struct {
		TransactionID  string `json:"transaction_id"`
		CustomerID     string `json:"customer_id"`
		GrossAmount    int64  `json:"gross_amount"`
		PointsRedeemed int64  `json:"points_redeemed"`
		PointsEarned   int64  `json:"points_earned"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IdempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.submits[req.IdempotencyKey]++

	if l.declining {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "payment declined"})
		return
	}

	delta := req.PointsEarned - req.PointsRedeemed
	if _, seen := l.applied[req.IdempotencyKey]; !seen {
		l.applied[req.IdempotencyKey] = delta
		l.balances[req.CustomerID] += delta
		l.history = append(l.history, historyEntry{Type: "payment", Amount: req.GrossAmount, ProcessedAt: time.Now()})
	}
	l.payments[req.TransactionID] = "completed"

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": req.TransactionID,
		"status":         "completed",
		"balance_after":  l.balances[req.CustomerID],
	})
}

func (l *FakeLedger) handleStatus(w http.ResponseWriter, r *http.Request) {
	l.pause()

	transactionID := r.URL.Query().Get("transaction_id")

	l.mu.Lock()
	defer l.mu.Unlock()

	status, ok := l.payments[transactionID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transaction not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transaction_id": transactionID, "status": status})
}

func (l *FakeLedger) handleGrant(w http.ResponseWriter, r *http.Request) {
	l.pause()

	var req struct {
		CustomerID     string `json:"customer_id"`
		Points         int64  `json:"points"`
		Reason         string `json:"reason"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IdempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.submits[req.IdempotencyKey]++

	if l.declining {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "grant declined"})
		return
	}

	if _, seen := l.applied[req.IdempotencyKey]; !seen {
		l.applied[req.IdempotencyKey] = req.Points
		l.balances[req.CustomerID] += req.Points
		l.history = append(l.history, historyEntry{Type: "grant", Amount: req.Points, ProcessedAt: time.Now()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "completed",
		"balance_after": l.balances[req.CustomerID],
	})
}

func (l *FakeLedger) handleHistory(w http.ResponseWriter, _ *http.Request) {
	l.pause()

	l.mu.Lock()
	defer l.mu.Unlock()

	writeJSON(w, http.StatusOK, l.history)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
