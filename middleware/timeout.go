package middleware

import (
	"context"
	"time"

	"callproxy/failure"
	"callproxy/message"
)

// Timeout answers with a runtime failure if the handler does not finish
// within timeout. The handler sees the deadline on its context.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RPCMessage, 1)
			go func() { done <- next(ctx, req) }()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return errorResponse(req, string(failure.KindRuntime), "request timed out")
			}
		}
	}
}
