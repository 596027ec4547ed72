// Copyright 2025 Certen Protocol

package rpc

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID tags every request with a random correlation id, logged
// alongside any error the request produces and echoed back in the
// X-Request-Id response header. The id never reaches durable storage,
// it only threads a single request through the logs.
func WithRequestID(next http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[rpc] ", log.LstdFlags)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New()
		w.Header().Set("X-Request-Id", id.String())
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestID returns the correlation id WithRequestID attached to ctx, or
// the nil UUID if none was attached.
func requestID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(requestIDKey{}).(uuid.UUID)
	return id
}
