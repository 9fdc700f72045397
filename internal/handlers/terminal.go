package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/handlers/middleware"
	"github.com/biid/pointterminal/internal/handlers/render"
	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/service/processor"
	"github.com/biid/pointterminal/internal/service/terminal"
)

type customerView struct {
	CustomerID   string `json:"customer_id"`
	DisplayName  string `json:"display_name"`
	PointBalance int64  `json:"point_balance"`
	Rank         string `json:"rank"`
}

type sessionView struct {
	CustomerID     string    `json:"customer_id"`
	Mode           string    `json:"mode"`
	GrossAmount    int64     `json:"gross_amount"`
	PointsRedeemed int64     `json:"points_redeemed"`
	AccrualEnabled bool      `json:"accrual_enabled"`
	NetAmount      int64     `json:"net_amount"`
	PointsEarned   int64     `json:"points_earned"`
	GrantReason    string    `json:"grant_reason,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type outcomeView struct {
	Code          string `json:"code"`
	TransactionID string `json:"transaction_id,omitempty"`
	BalanceAfter  int64  `json:"balance_after"`
	Reason        string `json:"reason,omitempty"`
	Queued        bool   `json:"queued"`
}

type snapshotView struct {
	TerminalID      string        `json:"terminal_id"`
	State           string        `json:"state"`
	Mode            string        `json:"mode"`
	StepRemainingMS int64         `json:"step_remaining_ms"`
	Unlocked        bool          `json:"unlocked"`
	Customer        *customerView `json:"customer,omitempty"`
	Session         *sessionView  `json:"session,omitempty"`
	RedeemEnabled   bool          `json:"redeem_enabled"`
	MaxRedeemable   int64         `json:"max_redeemable"`
	QuickAmounts    []int64       `json:"quick_amounts"`
	IdentifiedVia   string        `json:"identified_via,omitempty"`
	Outcome         *outcomeView  `json:"outcome,omitempty"`
}

func snapshotResponse(snap terminal.Snapshot, unlocked bool) snapshotView {
	view := snapshotView{
		TerminalID:      snap.TerminalID,
		State:           snap.State,
		Mode:            snap.Mode,
		StepRemainingMS: snap.StepRemaining.Milliseconds(),
		Unlocked:        unlocked,
		RedeemEnabled:   snap.RedeemEnabled,
		MaxRedeemable:   snap.MaxRedeemable,
		QuickAmounts:    snap.QuickAmounts,
		IdentifiedVia:   snap.IdentifiedVia,
	}
	if snap.Customer != nil {
		view.Customer = &customerView{
			CustomerID:   snap.Customer.ID,
			DisplayName:  snap.Customer.DisplayName,
			PointBalance: snap.Customer.PointBalance,
			Rank:         snap.Customer.Rank,
		}
	}
	if snap.Session != nil {
		view.Session = &sessionView{
			CustomerID:     snap.Session.CustomerID,
			Mode:           snap.Session.Mode,
			GrossAmount:    snap.Session.GrossAmount,
			PointsRedeemed: snap.Session.PointsRedeemed,
			AccrualEnabled: snap.Session.AccrualEnabled,
			NetAmount:      snap.Session.NetAmount,
			PointsEarned:   snap.Session.PointsEarned,
			GrantReason:    snap.Session.GrantReason,
			Status:         snap.Session.Status,
			CreatedAt:      snap.Session.CreatedAt,
		}
	}
	if snap.Outcome != nil {
		view.Outcome = &outcomeView{
			Code:          snap.Outcome.Code,
			TransactionID: snap.Outcome.TransactionID,
			BalanceAfter:  snap.Outcome.BalanceAfter,
			Reason:        snap.Outcome.Reason,
			Queued:        snap.Outcome.Queued,
		}
	}
	return view
}

// machineError maps state machine failures onto the API. Transition and
// validation violations are client errors, everything else is internal.
func machineError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidTransition):
		render.ServiceError(w, "Action not allowed in the current state", http.StatusConflict)
	case errors.Is(err, apperrors.ErrNoActiveSession):
		render.ServiceError(w, "No active session", http.StatusConflict)
	case errors.Is(err, apperrors.ErrAmountInvalid):
		render.ServiceError(w, "Invalid amount", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrRedeemExceedsMax):
		render.ServiceError(w, "Redemption exceeds the maximum", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrCustomerNotFound):
		render.ServiceError(w, "Member not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrCodeUnreadable):
		render.ServiceError(w, "Could not read the member code", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrUnknownMethod):
		render.ServiceError(w, "Unknown identification method", http.StatusUnprocessableEntity)
	default:
		l.Error("Terminal action failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func renderSnapshot(w http.ResponseWriter, m terminalMachine) {
	render.JSON(w, snapshotResponse(m.Snapshot(), true))
}

func handleUnlock(pin pinService, lock *middleware.Lock, l logger.Logger) http.Handler {
	type request struct {
		PIN string `json:"pin" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = pin.VerifyPIN(r.Context(), req.PIN)
		switch {
		case err == nil:
			lock.Unlock()
			render.JSON(w, map[string]bool{"unlocked": true})
		case errors.Is(err, apperrors.ErrPINMismatch):
			render.ServiceError(w, "Wrong PIN", http.StatusUnauthorized)
		default:
			l.Error("Failed to verify operator PIN", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleMode(m terminalMachine, l logger.Logger) http.Handler {
	type request struct {
		Mode string `json:"mode" validate:"required,oneof=payment points_grant"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := m.SwitchMode(req.Mode); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleBeginRead(m terminalMachine, l logger.Logger) http.Handler {
	type request struct {
		Method string `json:"method" validate:"required,oneof=nfc qr manual"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := m.BeginRead(req.Method); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleIdentify(m terminalMachine, l logger.Logger) http.Handler {
	type request struct {
		Method string `json:"method" validate:"required,oneof=nfc qr manual"`
		Code   string `json:"code" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if _, err := m.Identify(r.Context(), req.Method, req.Code); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleAmount(m terminalMachine, l logger.Logger) http.Handler {
	type request struct {
		Amount int64 `json:"amount" validate:"gte=0"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := m.SetAmount(req.Amount); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleRedeem(m terminalMachine, l logger.Logger) http.Handler {
	type request struct {
		Enabled bool   `json:"enabled"`
		Points  *int64 `json:"points,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := m.EnableRedemption(req.Enabled); err != nil {
			machineError(w, l, err)
			return
		}
		if req.Enabled && req.Points != nil {
			if err := m.SetPointsRedeemed(*req.Points); err != nil {
				machineError(w, l, err)
				return
			}
		}
		renderSnapshot(w, m)
	})
}

func handleAccrual(m terminalMachine, l logger.Logger) http.Handler {
	type request struct {
		Enabled bool `json:"enabled"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := m.SetAccrual(req.Enabled); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleGrantReason(m terminalMachine, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason" validate:"required,oneof=purchase gift bonus other"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := m.SetGrantReason(req.Reason); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleConfirm(m terminalMachine, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.Confirm(); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleEdit(m terminalMachine, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.Edit(); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleCancel(m terminalMachine, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.Cancel(); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleSubmit(m terminalMachine, l logger.Logger) http.Handler {
	return submitHandler(m, l, m.Submit)
}

func handleRetry(m terminalMachine, l logger.Logger) http.Handler {
	return submitHandler(m, l, m.Retry)
}

// submitHandler serves both submit and retry: the ledger outcome, including a
// rejection or a queued timeout, is a successful API response with the
// outcome in the body.
func submitHandler(m terminalMachine, l logger.Logger, submit func(ctx context.Context) (processor.Outcome, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome, err := submit(r.Context())
		if err != nil {
			var transition bool
			for _, sentinel := range []error{
				apperrors.ErrInvalidTransition, apperrors.ErrNoActiveSession, apperrors.ErrAmountInvalid,
			} {
				if errors.Is(err, sentinel) {
					transition = true
					break
				}
			}
			if transition || outcome.Code == "" {
				machineError(w, l, err)
				return
			}
			l.Error("Submission finished with a local error", "error", err)
		}

		renderSnapshot(w, m)
	})
}

func handleAbandon(m terminalMachine, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.Abandon(); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleHome(m terminalMachine, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.Home(); err != nil {
			machineError(w, l, err)
			return
		}
		renderSnapshot(w, m)
	})
}

func handleSession(m terminalMachine, lock *middleware.Lock) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, snapshotResponse(m.Snapshot(), lock.Unlocked()))
	})
}
