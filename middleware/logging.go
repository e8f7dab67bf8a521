package middleware

import (
	"context"
	"time"

	"callproxy/message"

	"go.uber.org/zap"
)

// Logging logs every request with its duration, at Warn level when the
// handler reports an error.
func Logging(log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.ServiceMethod),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Failed() {
				log.Warn("request failed", append(fields,
					zap.String("error", resp.Error), zap.String("kind", resp.ErrorKind))...)
			} else {
				log.Debug("request served", fields...)
			}
			return resp
		}
	}
}
