// Package cache applies the terminal's offline caching strategies to
// read-only ledger queries. Submissions never go through here.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/repository"
)

// Resource classes and their strategies:
// balance queries are network-first (freshness matters, brief staleness is
// tolerable), static assets are cache-first (they never change per
// transaction), scripts are stale-while-revalidate (fast boot, eventual
// freshness).
const (
	ClassBalance = "balance"
	ClassStatic  = "static"
	ClassScript  = "script"
)

const revalidateTimeout = 10 * time.Second

type Fetch func(ctx context.Context) ([]byte, error)

type Agent struct {
	store  repository.CacheRepo
	logger logger.Logger
}

func NewAgent(store repository.CacheRepo, logger logger.Logger) *Agent {
	return &Agent{store: store, logger: logger}
}

// Fetch resolves a resource with the strategy of its class. fromCache reports
// whether the payload was served from the local store.
func (a *Agent) Fetch(ctx context.Context, class string, endpoint string, key string, fetch Fetch) (payload []byte, fromCache bool, err error) {
	switch class {
	case ClassBalance:
		return a.NetworkFirst(ctx, endpoint, key, fetch)
	case ClassStatic:
		return a.CacheFirst(ctx, endpoint, key, fetch)
	case ClassScript:
		return a.StaleWhileRevalidate(ctx, endpoint, key, fetch)
	default:
		return nil, false, fmt.Errorf("unknown resource class %q", class)
	}
}

// NetworkFirst tries the ledger and falls back to the last cached value.
func (a *Agent) NetworkFirst(ctx context.Context, endpoint string, key string, fetch Fetch) ([]byte, bool, error) {
	payload, err := fetch(ctx)
	if err == nil {
		a.put(ctx, endpoint, key, payload)
		return payload, false, nil
	}

	entry, gerr := a.store.Get(ctx, endpoint, key)
	if gerr == nil {
		a.logger.Warn("Serving stale cached response, ledger unreachable",
			"endpoint", endpoint, "stored_at", entry.StoredAt, "error", err)
		return entry.Payload, true, nil
	}

	return nil, false, err
}

// CacheFirst serves the cached value when present and fetches once otherwise.
func (a *Agent) CacheFirst(ctx context.Context, endpoint string, key string, fetch Fetch) ([]byte, bool, error) {
	entry, err := a.store.Get(ctx, endpoint, key)
	if err == nil {
		return entry.Payload, true, nil
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}

	a.put(ctx, endpoint, key, payload)
	return payload, false, nil
}

// StaleWhileRevalidate serves the cached value immediately and refreshes it in
// the background. A miss fetches inline.
func (a *Agent) StaleWhileRevalidate(ctx context.Context, endpoint string, key string, fetch Fetch) ([]byte, bool, error) {
	entry, err := a.store.Get(ctx, endpoint, key)
	if err == nil {
		go a.revalidate(endpoint, key, fetch)
		return entry.Payload, true, nil
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}

	a.put(ctx, endpoint, key, payload)
	return payload, false, nil
}

func (a *Agent) revalidate(endpoint string, key string, fetch Fetch) {
	ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
	defer cancel()

	payload, err := fetch(ctx)
	if err != nil {
		a.logger.Debug("Background revalidation failed", "endpoint", endpoint, "error", err)
		return
	}

	a.put(ctx, endpoint, key, payload)
}

func (a *Agent) put(ctx context.Context, endpoint string, key string, payload []byte) {
	if err := a.store.Put(ctx, endpoint, key, payload, time.Now()); err != nil {
		a.logger.Error("Failed to store cache entry", "endpoint", endpoint, "error", err)
	}
}
