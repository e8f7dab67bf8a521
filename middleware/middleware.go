// Package middleware wraps server-side request handlers.
package middleware

import (
	"context"

	"callproxy/message"
)

type HandlerFunc func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares so that the first one listed runs outermost:
// Chain(A, B)(h) behaves as A(B(h)).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// errorResponse builds a failed response for req.
func errorResponse(req *message.RPCMessage, kind, text string) *message.RPCMessage {
	return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Error: text, ErrorKind: kind}
}
