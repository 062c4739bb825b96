package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-core/internal/logging"
	redisclient "github.com/hackgods/slot-booking-core/internal/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxBodyBytes      = 1 << 20
	maxKeyLength      = 200
)

// IdempotencyStore is the subset of redisclient.IdempotencyStore the
// middleware relies on.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, fingerprint string) (*redisclient.Claim, *redisclient.StoredResponse, error)
	Complete(ctx context.Context, c *redisclient.Claim, resp redisclient.StoredResponse) error
	Release(ctx context.Context, c *redisclient.Claim) error
}

// IdempotencyMiddleware replays the stored response for a POST retried with
// the same Idempotency-Key. Keys are scoped to the caller; anonymous callers
// must send a UUID. Requests without the header, or any request when store is
// nil, pass straight through. A store outage also passes through:
// slot exclusivity is enforced by Postgres, not here.
func IdempotencyMiddleware(store IdempotencyStore, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				writeError(w, http.StatusBadRequest, "invalid_input", "Idempotency-Key too long")
				return
			}
			// Anonymous callers share one namespace, so their keys must be
			// unguessable.
			p := PrincipalFromContext(r.Context())
			if p.Anonymous() {
				if _, err := uuid.Parse(key); err != nil {
					writeError(w, http.StatusBadRequest, "invalid_input", "Idempotency-Key must be a UUID for anonymous requests")
					return
				}
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", "could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := string(p.Role) + ":" + p.Subject + ":" + key

			fp := fingerprint(r, body)
			claim, stored, err := store.Begin(r.Context(), scoped, fp)
			switch {
			case errors.Is(err, redisclient.ErrInFlight):
				writeError(w, http.StatusConflict, "request_in_progress", "a request with this Idempotency-Key is still being processed")
				return
			case errors.Is(err, redisclient.ErrKeyReused):
				writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "Idempotency-Key was used for a different request")
				return
			case err != nil:
				logger.Warn("idempotency store unavailable, serving without replay",
					"error", err, "request_id", GetRequestID(r.Context()))
				next.ServeHTTP(w, r)
				return
			}

			if stored != nil {
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set(replayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The client already has its answer; bookkeeping must not be cut
			// short by a disconnect.
			ctx := context.WithoutCancel(r.Context())
			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, claim); err != nil {
					logger.Warn("release idempotency key", "error", err, "request_id", GetRequestID(r.Context()))
				}
				return
			}
			resp := redisclient.StoredResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				Fingerprint: fp,
			}
			if err := store.Complete(ctx, claim, resp); err != nil {
				logger.Warn("store idempotent response", "error", err, "request_id", GetRequestID(r.Context()))
			}
		})
	}
}

func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// capturingWriter writes through to the client while keeping a copy of
// the status and body.
type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
