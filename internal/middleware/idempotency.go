// Package middleware holds HTTP middleware shared by the writer services.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

type storedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating requests. Keys are claimed with SET NX so concurrent retries with
// the same key race to a single execution; the loser gets a 409 until the
// winner's response lands in the cache.
func Idempotency(client *redis.Client) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "idempotency")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			cacheKey := "idempotency:" + r.Method + ":" + r.URL.Path + ":" + key

			if replayed := replay(ctx, client, cacheKey, w); replayed {
				return
			}

			claimed, err := client.SetNX(ctx, cacheKey, "in-flight", idempotencyTTL).Result()
			if err != nil {
				// Redis down: proceed without idempotency rather than block writes.
				logger.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				if replayed := replay(ctx, client, cacheKey, w); replayed {
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error":{"code":"CONFLICT","message":"request with this idempotency key is in flight"}}`))
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			stored, merr := json.Marshal(storedResponse{
				Status: capture.status,
				Header: capture.Header().Clone(),
				Body:   capture.body.Bytes(),
			})
			if merr != nil {
				logger.Error("marshal idempotent response failed", "error", merr)
				return
			}
			if err := client.Set(ctx, cacheKey, stored, idempotencyTTL).Err(); err != nil {
				logger.Warn("store idempotent response failed", "error", err)
			}
		})
	}
}

func replay(ctx context.Context, client *redis.Client, cacheKey string, w http.ResponseWriter) bool {
	raw, err := client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return false
	}
	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false
	}
	for name, values := range stored.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("X-Idempotent-Replay", "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
	return true
}
