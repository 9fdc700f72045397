package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/biid/pointterminal/internal/handlers/render"
	"github.com/biid/pointterminal/internal/logger"
)

const healthPingTimeout = 2 * time.Second

func handleHistory(m terminalMachine, history historyReader, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customerID := r.URL.Query().Get("customer_id")
		if customerID == "" {
			snap := m.Snapshot()
			if snap.Customer == nil {
				render.ServiceError(w, "No identified member", http.StatusConflict)
				return
			}
			customerID = snap.Customer.ID
		}

		payload, stale, err := history.PointsHistory(r.Context(), customerID)
		if err != nil {
			l.Error("Failed to load points history", "customer_id", customerID, "error", err)
			render.ServiceError(w, "History unavailable", http.StatusBadGateway)
			return
		}

		if stale {
			w.Header().Set("X-Served-From-Cache", "true")
		}
		render.Raw(w, payload)
	})
}

func handlePending(pending pendingReader, l logger.Logger) http.Handler {
	type record struct {
		ID             string    `json:"id"`
		IdempotencyKey string    `json:"idempotency_key"`
		CustomerID     string    `json:"customer_id"`
		Mode           string    `json:"mode"`
		NetAmount      int64     `json:"net_amount"`
		PointsEarned   int64     `json:"points_earned"`
		PointsRedeemed int64     `json:"points_redeemed"`
		RetryCount     int       `json:"retry_count"`
		CreatedAt      time.Time `json:"created_at"`
	}

	type response struct {
		Count   int      `json:"count"`
		Records []record `json:"records"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		records, err := pending.List(r.Context(), 0)
		if err != nil {
			l.Error("Failed to list pending queue", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		resp := response{Count: len(records), Records: make([]record, 0, len(records))}
		for _, pr := range records {
			resp.Records = append(resp.Records, record{
				ID:             pr.ID,
				IdempotencyKey: pr.Session.IdempotencyKey,
				CustomerID:     pr.Session.CustomerID,
				Mode:           pr.Session.Mode,
				NetAmount:      pr.Session.NetAmount,
				PointsEarned:   pr.Session.PointsEarned,
				PointsRedeemed: pr.Session.PointsRedeemed,
				RetryCount:     pr.RetryCount,
				CreatedAt:      pr.CreatedAt,
			})
		}

		render.JSON(w, resp)
	})
}

func handleHealthz(ledger ledgerPinger, pending pendingReader, l logger.Logger) http.Handler {
	type response struct {
		Status          string `json:"status"`
		LedgerReachable bool   `json:"ledger_reachable"`
		QueueDepth      int    `json:"queue_depth"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		resp := response{Status: "ok", LedgerReachable: true}

		if err := ledger.Ping(ctx); err != nil {
			resp.LedgerReachable = false
			resp.Status = "degraded"
		}

		depth, err := pending.Count(r.Context())
		if err != nil {
			l.Error("Failed to count pending queue", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		resp.QueueDepth = depth

		render.JSON(w, resp)
	})
}
