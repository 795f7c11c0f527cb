package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pkgerrors "github.com/hackportal/hackportal-backend/pkg/errors"
	"github.com/hackportal/hackportal-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams configure the worker ops surface.
type RouterParams struct {
	Env      string
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Checks   map[string]Pinger
}

type successEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewRouter serves /health/live, /health/ready and /metrics.
func NewRouter(p RouterParams) http.Handler {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(recoverer(logg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthLive(p.Env))
		r.Get("/ready", healthReady(p.Env, logg, p.Checks))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func healthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-HackPortal-Env", env)
		writeJSON(w, http.StatusOK, successEnvelope{Data: map[string]string{"status": "live"}})
	}
}

func healthReady(env string, logg *logger.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-HackPortal-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				failed[name] = err.Error()
				logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "health.ready.failed")
			}
		}
		if len(failed) > 0 {
			writeError(w, pkgerrors.New(pkgerrors.CodeStoreUnavailable, "dependencies unavailable").WithDetails(failed))
			return
		}
		writeJSON(w, http.StatusOK, successEnvelope{Data: map[string]string{"status": "ready"}})
	}
}

func recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					logg.Error(logg.WithFields(r.Context(), map[string]any{"panic": rec}), "panic.recovered", err)
					writeError(w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, typed *pkgerrors.Error) {
	meta := pkgerrors.MetadataFor(typed.Code())
	payload := errorEnvelope{Error: apiError{Code: string(typed.Code()), Message: meta.PublicMessage}}
	if details := typed.Details(); details != nil {
		payload.Error.Details = details
	}
	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
