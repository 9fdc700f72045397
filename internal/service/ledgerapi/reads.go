package ledgerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/biid/pointterminal/internal/cache"
	"github.com/biid/pointterminal/internal/models"
)

// CachedReads routes the ledger's read-only queries through the terminal's
// offline cache so the terminal keeps functioning, read-only, while
// connectivity is down. Submissions never pass through here.
type CachedReads struct {
	client *Client
	cache  *cache.Agent
}

func NewCachedReads(client *Client, agent *cache.Agent) *CachedReads {
	return &CachedReads{client: client, cache: agent}
}

// GetProfile is network-first: balance freshness matters, but a briefly stale
// projection beats an unusable terminal.
func (r *CachedReads) GetProfile(ctx context.Context, customerID string) (models.Customer, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		customer, err := r.client.GetProfile(ctx, customerID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(customer)
	}

	payload, _, err := r.cache.NetworkFirst(ctx, "/user/profile", customerID, fetch)
	if err != nil {
		return models.Customer{}, err
	}

	var customer models.Customer
	if err := json.Unmarshal(payload, &customer); err != nil {
		return models.Customer{}, fmt.Errorf("failed to decode cached profile: %w", err)
	}
	return customer, nil
}

// PointsHistory is network-first. stale reports whether the payload came from
// the cache.
func (r *CachedReads) PointsHistory(ctx context.Context, customerID string) (payload []byte, stale bool, err error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		return r.client.PointsHistory(ctx, customerID)
	}

	return r.cache.NetworkFirst(ctx, "/points/history", customerID, fetch)
}

// Resource fetches a static terminal resource. Scripts and styles are served
// stale-while-revalidate; everything else is cache-first.
func (r *CachedReads) Resource(ctx context.Context, path string) ([]byte, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		return r.client.FetchResource(ctx, path)
	}

	class := cache.ClassStatic
	if strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".css") {
		class = cache.ClassScript
	}

	payload, _, err := r.cache.Fetch(ctx, class, "/resources", path, fetch)
	return payload, err
}
