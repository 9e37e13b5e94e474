package middleware

import "net/http"

// Middleware wraps an http.HandlerFunc with additional behavior.
type Middleware func(http.HandlerFunc) http.HandlerFunc

// Chain composes middlewares in order: Chain(m1, m2, ..., mn) executes
// m1 -> m2 -> ... -> mn -> handler -> mn -> ... -> m2 -> m1. The first
// argument is the outermost layer, the last is the innermost.
//
// With no middlewares, Chain returns a pass-through.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.HandlerFunc) http.HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// AsHandler adapts a Middleware to the func(http.Handler) http.Handler shape
// chi's Router.Use expects.
func AsHandler(m Middleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m(next.ServeHTTP)
	}
}
