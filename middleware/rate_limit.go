package middleware

import (
	"context"

	"callproxy/failure"
	"callproxy/message"

	"golang.org/x/time/rate"
)

// KindRateLimited is reported to callers rejected by RateLimit.
const KindRateLimited failure.Kind = "RateLimited"

// RateLimit admits r requests per second with the given burst, using a
// token bucket, and rejects the rest without calling the handler.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			if !limiter.Allow() {
				return errorResponse(req, string(KindRateLimited), "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
