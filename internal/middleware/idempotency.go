package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/tyresync/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20
	maxIdempotencyKeyLen = 255
)

// idempotencyEntry is a stored HTTP response.
type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency deduplicates POST, PATCH, PUT and DELETE requests carrying an
// Idempotency-Key header. A retried write replays the stored response instead
// of committing again, so observers are not pushed a second refresh.
// Only 2xx responses are stored; a concurrent request with a key that is
// still in flight gets 409.
type Idempotency struct {
	cache cache.Cache
	ttl   time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewIdempotency creates the middleware backed by c.
func NewIdempotency(c cache.Cache, ttl time.Duration) *Idempotency {
	return &Idempotency{cache: c, ttl: ttl, inflight: make(map[string]struct{})}
}

// Handler returns the middleware.
func (m *Idempotency) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(headerIdempotencyKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			writeMiddlewareError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}
		cacheKey := "idem:" + r.Method + ":" + r.URL.Path + ":" + key

		if m.replay(w, r, cacheKey) {
			return
		}

		if !m.acquire(cacheKey) {
			writeMiddlewareError(w, http.StatusConflict, "request with this idempotency key is in progress")
			return
		}
		defer m.release(cacheKey)

		// A request that finished while we waited for the slot is replayed.
		if m.replay(w, r, cacheKey) {
			return
		}

		outer := w.Header().Clone()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
		next.ServeHTTP(rec, r)

		if rec.statusCode < 200 || rec.statusCode > 299 || rec.body.Len() > maxIdempotencyBody {
			return
		}
		data, err := json.Marshal(idempotencyEntry{
			StatusCode: rec.statusCode,
			Headers:    handlerHeaders(outer, w.Header()),
			Body:       rec.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := m.cache.Set(r.Context(), cacheKey, data, m.ttl); err != nil {
			slog.Warn("idempotency: failed to store response", "key", key, "error", err)
		}
	})
}

func (m *Idempotency) replay(w http.ResponseWriter, r *http.Request, cacheKey string) bool {
	raw, found, err := m.cache.Get(r.Context(), cacheKey)
	if err != nil {
		slog.Warn("idempotency: cache lookup failed", "error", err)
		return false
	}
	if !found {
		return false
	}
	var cached idempotencyEntry
	if err := json.Unmarshal(raw, &cached); err != nil {
		slog.Warn("idempotency: corrupt cache entry", "error", err)
		return false
	}
	for k, vals := range cached.Headers {
		w.Header()[k] = slices.Clone(vals)
	}
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return true
}

// handlerHeaders returns the headers the wrapped handler set or changed.
// Headers written by outer middleware (CORS, request ID) are left out; they
// run again on replay.
func handlerHeaders(outer, final http.Header) http.Header {
	h := make(http.Header)
	for k, vals := range final {
		if !slices.Equal(outer[k], vals) {
			h[k] = slices.Clone(vals)
		}
	}
	return h
}

func (m *Idempotency) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return false
	}
	m.inflight[key] = struct{}{}
	return true
}

func (m *Idempotency) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}

// responseRecorder tees the response body so it can be stored.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func writeMiddlewareError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
