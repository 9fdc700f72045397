package models

import (
	"time"
)

// CacheEntry is one cached read-endpoint response.
type CacheEntry struct {
	Endpoint string
	Key      string
	Payload  []byte
	StoredAt time.Time
}
