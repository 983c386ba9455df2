package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

const IdempotencyHeader = "Idempotency-Key"

// Replay windows. Money-moving commands keep their keys for a week.
const (
	ReplayWindow      = 24 * time.Hour
	MoneyReplayWindow = 7 * 24 * time.Hour
)

const maxIdempotencyKeyLen = 128

type replayState string

const (
	replayPending  replayState = "pending"
	replayComplete replayState = "complete"
)

// replayEntry is what the store holds under one key. A pending entry marks a
// request still running; a complete one carries the response to replay.
type replayEntry struct {
	State       replayState `json:"state"`
	BodyHash    string      `json:"body_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Idempotency guards mutating routes behind the Idempotency-Key header.
type Idempotency struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func NewIdempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) *Idempotency {
	return &Idempotency{store: store, logg: logg}
}

// Require reserves the key before the handler runs so concurrent duplicates
// never reach it, then stores the response for replay within window. Server
// failures release the reservation and stay retryable under the same key.
func (m *Idempotency) Require(window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || m.store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, m.logg, w, pkgerrors.Reason(pkgerrors.CodeValidation, "missing_idempotency_key",
					"Idempotency-Key header required").WithDetail("max_length", maxIdempotencyKeyLen))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			bodyHash := digest(body)
			key := m.store.IdempotencyKey(replayScope(r), clientKey)

			pending, err := json.Marshal(replayEntry{State: replayPending, BodyHash: bodyHash})
			if err != nil {
				responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency entry"))
				return
			}
			reserved, err := m.store.SetNX(ctx, key, string(pending), window)
			if err != nil {
				responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				m.replay(w, r, key, bodyHash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			func() {
				defer func() {
					if p := recover(); p != nil {
						m.release(ctx, key)
						panic(p)
					}
				}()
				next.ServeHTTP(capture, r)
			}()

			status := capture.Status()
			if status >= http.StatusInternalServerError {
				m.release(ctx, key)
				return
			}
			m.complete(r, key, window, replayEntry{
				State:       replayComplete,
				BodyHash:    bodyHash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
		})
	}
}

func (m *Idempotency) replay(w http.ResponseWriter, r *http.Request, key, bodyHash string) {
	ctx := r.Context()
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the holder failed and released the key between our SetNX and Get
		responses.WriteError(ctx, m.logg, w, pkgerrors.Reason(pkgerrors.CodeConflict, pkgerrors.ReasonRetry,
			"request with this key was released, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency entry"))
		return
	}

	var entry replayEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		responses.WriteError(ctx, m.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency entry"))
		return
	}
	if entry.BodyHash != bodyHash {
		responses.WriteError(ctx, m.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency,
			"idempotency key already used with a different body"))
		return
	}
	if entry.State != replayComplete {
		responses.WriteError(ctx, m.logg, w, pkgerrors.Reason(pkgerrors.CodeConflict, "in_progress",
			"request with this key is still being processed"))
		return
	}

	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
}

func (m *Idempotency) release(ctx context.Context, key string) {
	if err := m.store.Del(context.WithoutCancel(ctx), key); err != nil && m.logg != nil {
		m.logg.Error(ctx, "idempotency.release_failed", err)
	}
}

// complete overwrites the pending reservation with the finished response. A
// failed write only costs replay; the handler's effects already happened.
func (m *Idempotency) complete(r *http.Request, key string, window time.Duration, entry replayEntry) {
	ctx := r.Context()
	payload, err := json.Marshal(entry)
	if err == nil {
		err = m.store.Set(ctx, key, string(payload), window)
	}
	if err != nil && m.logg != nil {
		m.logg.Error(ctx, "idempotency.store_failed", err)
	}
}

// replayScope isolates keys per caller and per concrete resource path.
func replayScope(r *http.Request) string {
	caller := "anonymous"
	if actor, ok := ActorFromContext(r.Context()); ok {
		caller = actor.UserID.String()
	}
	return caller + "|" + r.Method + "|" + r.URL.Path
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
