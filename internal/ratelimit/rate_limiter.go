// Package ratelimit applies a per-caller token bucket ahead of the
// front-end handlers, shielding the caches and origin stores from
// request storms.
package ratelimit

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/internal/syncx"
	"github.com/zhangzqs/govfs/pkg/log"
	"golang.org/x/time/rate"
)

type RateLimiter struct {
	rate  rate.Limit
	burst int
	users syncx.Map[string, *rate.Limiter]
}

type GetUserKeyFunc func(r *http.Request) (string, error)

// ByRemoteHost keys the bucket on the caller's address, the default for
// anonymous front-ends.
func ByRemoteHost(r *http.Request) (string, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, nil
	}
	return host, nil
}

func (l *RateLimiter) Middleware(getUserKey GetUserKeyFunc) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userKey, err := getUserKey(r)
			if err != nil {
				slog.ErrorContext(ctx, "could not retrieve user key", log.Error(errors.WithStack(err)))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			limiter, _ := l.users.LoadOrStore(userKey, rate.NewLimiter(l.rate, l.burst))

			if !limiter.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func New(rate rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		rate:  rate,
		burst: burst,
	}
}
