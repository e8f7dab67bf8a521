package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callproxy/codec"
	"callproxy/endpoint"
	"callproxy/failure"
	"callproxy/method"
	"callproxy/result"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrTimeout is the failure of a call that exceeded Options.Timeout.
	ErrTimeout = fmt.Errorf("rpc: call timed out: %w", context.DeadlineExceeded)

	// ErrRateLimited is the failure of a call rejected by RateLimit.
	ErrRateLimited = errors.New("rpc: client rate limit exceeded")
)

// Timeout fails a call with ErrTimeout if it has not completed within
// opts.Timeout(). The wrapped invoker sees the deadline on its context.
func Timeout(next RemoteInvoker) RemoteInvoker {
	return Func(func(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
		cc codec.ClientCodec, m *method.Method, args []any) *result.Pending {
		d := opts.Timeout()
		if d <= 0 {
			return next.Invoke(ctx, ep, opts, cc, m, args)
		}
		ctx, cancel := context.WithTimeoutCause(ctx, d, ErrTimeout)
		out := result.New()
		context.AfterFunc(ctx, func() {
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrTimeout
			}
			out.Fail(err)
		})
		next.Invoke(ctx, ep, opts, cc, m, args).OnComplete(func(o result.Outcome) {
			out.Complete(o)
			cancel()
		})
		return out
	})
}

// Retry reissues a call whose attempt failed because the session closed, up
// to the budget of opts.Retry(), backing off exponentially. Other failures
// complete the call immediately.
func Retry(next RemoteInvoker) RemoteInvoker {
	return Func(func(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
		cc codec.ClientCodec, m *method.Method, args []any) *result.Pending {
		limit, base := opts.Retry()
		if limit <= 0 {
			return next.Invoke(ctx, ep, opts, cc, m, args)
		}
		out := result.New()
		var attempt func(n int)
		attempt = func(n int) {
			next.Invoke(ctx, ep, opts, cc, m, args).OnComplete(func(o result.Outcome) {
				if o.Err == nil || n >= limit || !failure.IsSessionClosed(o.Err) || ctx.Err() != nil {
					out.Complete(o)
					return
				}
				delay := base << n
				opts.Logger().Debug("retrying call",
					zap.Stringer("method", m), zap.Int("attempt", n+1), zap.Duration("delay", delay), zap.Error(o.Err))
				time.AfterFunc(delay, func() { attempt(n + 1) })
			})
		}
		attempt(0)
		return out
	})
}

// RateLimit returns a decorator admitting the call rate configured in opts
// with a token bucket shared by every call through the decorated invoker.
// Calls over the limit fail with ErrRateLimited without being issued.
func RateLimit(opts *endpoint.Options) Decorator {
	r, burst := opts.RateLimit()
	if r <= 0 {
		return func(next RemoteInvoker) RemoteInvoker { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(r), max(burst, 1))
	return func(next RemoteInvoker) RemoteInvoker {
		return Func(func(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
			cc codec.ClientCodec, m *method.Method, args []any) *result.Pending {
			if !limiter.Allow() {
				return result.Failed(ErrRateLimited)
			}
			return next.Invoke(ctx, ep, opts, cc, m, args)
		})
	}
}

// Logging logs the outcome and duration of every call.
func Logging(log *zap.Logger) Decorator {
	return func(next RemoteInvoker) RemoteInvoker {
		return Func(func(ctx context.Context, ep endpoint.Endpoint, opts *endpoint.Options,
			cc codec.ClientCodec, m *method.Method, args []any) *result.Pending {
			start := time.Now()
			p := next.Invoke(ctx, ep, opts, cc, m, args)
			p.OnComplete(func(o result.Outcome) {
				fields := []zap.Field{
					zap.Stringer("method", m),
					zap.String("locator", ep.Locator()),
					zap.Duration("duration", time.Since(start)),
				}
				if o.Err != nil {
					log.Warn("call failed", append(fields, zap.Error(o.Err))...)
					return
				}
				log.Debug("call completed", fields...)
			})
			return p
		})
	}
}
