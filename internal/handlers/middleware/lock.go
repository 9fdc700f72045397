package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/biid/pointterminal/internal/handlers/render"
)

// Lock gates the transaction endpoints behind the operator unlock. A
// terminal with no provisioned PIN boots unlocked.
type Lock struct {
	unlocked atomic.Bool
}

func NewLock(startUnlocked bool) *Lock {
	l := &Lock{}
	l.unlocked.Store(startUnlocked)
	return l
}

func (l *Lock) Unlock() {
	l.unlocked.Store(true)
}

func (l *Lock) Unlocked() bool {
	return l.unlocked.Load()
}

func (l *Lock) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.unlocked.Load() {
				render.ServiceError(w, "Terminal is locked", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
