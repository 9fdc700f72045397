package handlers

import (
	"context"
	"net/http"

	"github.com/biid/pointterminal/internal/handlers/middleware"
	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/service/processor"
	"github.com/biid/pointterminal/internal/service/terminal"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Machine terminalMachine
	PIN     pinService
	History historyReader
	Pending pendingReader
	Ledger  ledgerPinger
	Lock    *middleware.Lock
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	requireUnlocked := s.Lock.Middleware()
	withLock := func(h http.Handler) http.Handler {
		return requireUnlocked(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /unlock", handleUnlock(s.PIN, s.Lock, logger))

	api.Handle("POST /mode", withLock(handleMode(s.Machine, logger)))
	api.Handle("POST /read", withLock(handleBeginRead(s.Machine, logger)))
	api.Handle("POST /identify", withLock(handleIdentify(s.Machine, logger)))
	api.Handle("POST /amount", withLock(handleAmount(s.Machine, logger)))
	api.Handle("POST /redeem", withLock(handleRedeem(s.Machine, logger)))
	api.Handle("POST /accrual", withLock(handleAccrual(s.Machine, logger)))
	api.Handle("POST /reason", withLock(handleGrantReason(s.Machine, logger)))
	api.Handle("POST /confirm", withLock(handleConfirm(s.Machine, logger)))
	api.Handle("POST /edit", withLock(handleEdit(s.Machine, logger)))
	api.Handle("POST /cancel", withLock(handleCancel(s.Machine, logger)))
	api.Handle("POST /submit", withLock(handleSubmit(s.Machine, logger)))
	api.Handle("POST /retry", withLock(handleRetry(s.Machine, logger)))
	api.Handle("POST /abandon", withLock(handleAbandon(s.Machine, logger)))
	api.Handle("POST /home", withLock(handleHome(s.Machine, logger)))

	api.Handle("GET /session", handleSession(s.Machine, s.Lock))
	api.Handle("GET /history", handleHistory(s.Machine, s.History, logger))
	api.Handle("GET /pending", handlePending(s.Pending, logger))

	root := http.NewServeMux()
	root.Handle("/api/terminal/", http.StripPrefix("/api/terminal", api))
	root.Handle("GET /healthz", handleHealthz(s.Ledger, s.Pending, logger))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type terminalMachine interface {
	SwitchMode(mode string) error
	BeginRead(method string) error
	Identify(ctx context.Context, method string, code string) (models.Customer, error)
	SetAmount(amount int64) error
	EnableRedemption(enabled bool) error
	SetPointsRedeemed(points int64) error
	SetAccrual(enabled bool) error
	SetGrantReason(reason string) error
	Confirm() error
	Edit() error
	Cancel() error
	Submit(ctx context.Context) (processor.Outcome, error)
	Retry(ctx context.Context) (processor.Outcome, error)
	Abandon() error
	Home() error
	Snapshot() terminal.Snapshot
}

type pinService interface {
	// VerifyPIN has to return apperrors.ErrPINMismatch on a wrong entry
	VerifyPIN(ctx context.Context, pin string) error
}

type historyReader interface {
	// PointsHistory returns the raw history payload; stale reports whether
	// it was served from the offline cache
	PointsHistory(ctx context.Context, customerID string) (payload []byte, stale bool, err error)
}

type pendingReader interface {
	List(ctx context.Context, limit int) ([]models.PendingSyncRecord, error)
	Count(ctx context.Context) (int, error)
}

type ledgerPinger interface {
	Ping(ctx context.Context) error
}
