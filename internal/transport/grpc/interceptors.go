package grpc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RequestTimeout bounds every unary call that arrives without a deadline.
func RequestTimeout(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// BookRateLimiter limits Book calls per requester.
type BookRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *xsync.MapOf[string, *limiterEntry]
	now      func() time.Time
}

func NewBookRateLimiter(perMinute, burst int) *BookRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &BookRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:    burst,
		limiters: xsync.NewMapOf[string, *limiterEntry](),
		now:      time.Now,
	}
}

func (l *BookRateLimiter) allow(key string) bool {
	e, _ := l.limiters.LoadOrCompute(key, func() *limiterEntry {
		return &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
	})
	now := l.now()
	e.lastSeen.Store(now.UnixNano())
	return e.limiter.AllowN(now, 1)
}

// Prune forgets requesters idle for longer than idle.
func (l *BookRateLimiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle).UnixNano()
	removed := 0
	l.limiters.Range(func(key string, e *limiterEntry) bool {
		if e.lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (l *BookRateLimiter) Interceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod != BookMethod {
			return handler(ctx, req)
		}
		if !l.allow(requesterKey(ctx, req)) {
			return nil, status.Error(codes.ResourceExhausted, "too many booking attempts, slow down")
		}
		return handler(ctx, req)
	}
}

func requesterKey(ctx context.Context, req any) string {
	if r, ok := req.(*BookRequest); ok && r.RequesterID != "" {
		return "requester:" + r.RequesterID
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return "peer:" + p.Addr.String()
	}
	return "anonymous"
}
