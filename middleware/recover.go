package middleware

import (
	"context"
	"fmt"

	"callproxy/failure"
	"callproxy/message"

	"go.uber.org/zap"
)

// Recover turns a handler panic into a fault response.
func Recover(log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) (resp *message.RPCMessage) {
			defer func() {
				if v := recover(); v != nil {
					log.Error("handler panic", zap.String("method", req.ServiceMethod), zap.Any("panic", v))
					resp = errorResponse(req, string(failure.KindFault), fmt.Sprintf("panic: %v", v))
				}
			}()
			return next(ctx, req)
		}
	}
}
