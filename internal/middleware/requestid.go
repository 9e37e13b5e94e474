package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
)

// RequestID returns a middleware that tags each response with an
// X-Request-Id header: 8 random bytes, hex-encoded.
func RequestID() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			reqID := make([]byte, 8)
			if _, err := rand.Read(reqID); err != nil {
				log.Printf("[RequestID] crypto/rand failed: %v", err)
			}
			w.Header().Set("X-Request-Id", hex.EncodeToString(reqID))
			next(w, r)
		}
	}
}
