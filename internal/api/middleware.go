package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmguero-android/timelimit-android-sub001/internal/serverdb"
)

type contextKey int

const (
	ctxKeyDevice contextKey = iota
	ctxKeyLogger
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
	maxBodyBytes    = 10 << 20
)

func deviceFrom(ctx context.Context) *serverdb.Device {
	d, _ := ctx.Value(ctxKeyDevice).(*serverdb.Device)
	return d
}

// logFor returns the request logger, or the default logger outside a request.
func logFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// traceRequest tags the request with an id, reusing one a proxy already set,
// and scopes a logger to it.
func traceRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), ctxKeyLogger, slog.Default().With("rid", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe counts each request by status class and logs it once done.
func observe(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sc := &statusCapture{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sc, r)

			m.RecordRequest()
			level := slog.LevelInfo
			switch {
			case sc.code >= 500:
				m.RecordError()
				level = slog.LevelError
			case sc.code >= 400:
				m.RecordClientError()
				level = slog.LevelWarn
			}
			logFor(r.Context()).Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sc.code,
				"dur", time.Since(start).String(),
			)
		})
	}
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logFor(r.Context()).Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

type statusCapture struct {
	http.ResponseWriter
	code int
}

func (sc *statusCapture) WriteHeader(code int) {
	sc.code = code
	sc.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (sc *statusCapture) Unwrap() http.ResponseWriter {
	return sc.ResponseWriter
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// requireDevice resolves the bearer token to a device of a family. Unknown
// and removed devices get a 401, which clients answer with the removal probe.
func (s *Server) requireDevice(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing device token")
			return
		}

		device, err := s.store.VerifyDeviceToken(token)
		if err != nil {
			logFor(r.Context()).Error("verify device token", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to verify token")
			return
		}
		if device == nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid device token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyDevice, device)
		ctx = context.WithValue(ctx, ctxKeyLogger, logFor(ctx).With("fid", device.FamilyID, "did", device.ID))
		handler(w, r.WithContext(ctx))
	}
}

// chain applies middleware in order, the first being outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
