// Package api provides the HTTP server for the collection ledger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/collectnet/collect/internal/app/collection"
	"github.com/collectnet/collect/internal/domain"
	"github.com/collectnet/collect/internal/infra/observability"
)

// CallerHeader carries the authenticated owner address of the caller. An
// identity-aware proxy in front of the server is expected to set it.
const CallerHeader = "X-Collect-Caller"

// TraceHeader echoes the trace id of the request's spans.
const TraceHeader = "X-Trace-Id"

// Version is reported by /api/version.
const Version = "0.1.0"

// Server is the collection ledger HTTP API server.
type Server struct {
	svc            *collection.Service
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(svc *collection.Service) *Server {
	return &Server{svc: svc, timeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTimeout overrides the per-request timeout.
func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)
	r.Use(traceMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.svc.Stats())
	})

	r.Get("/api/traces", s.handleTraces)

	r.Route("/api/companies", func(r chi.Router) {
		r.Post("/", s.handleRegisterCompany)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCompany)
			r.Post("/trucks", s.handleRegisterTruck)
			r.Get("/trucks", s.handleListTrucks)

			r.Post("/requests", s.handleSubmitRequest)
			r.Get("/requests", s.handleListRequests)
			r.Delete("/requests/{requestID}", s.handleCancelRequest)

			r.Post("/collections", s.handleSettle)
			r.Get("/collections", s.handleListCollections)
			r.Get("/collections/{collectionID}", s.handleGetCollection)
		})
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/", s.handleRegisterUser)
		r.Get("/{id}", s.handleGetUser)
	})

	r.Route("/api/trucks/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetTruck)
		r.Post("/users", s.handleAssignUser)
	})

	r.Route("/api/accounts/{kind}/{id}", func(r chi.Router) {
		r.Post("/deposit", s.handleDeposit)
		r.Post("/withdraw", s.handleWithdraw)
		r.Get("/events", s.handleBalanceEvents)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// caller returns the identity asserted for the request.
func caller(r *http.Request) domain.Address {
	return domain.Address(r.Header.Get(CallerHeader))
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a service error to its HTTP status. Unauthorized
// errors also report which ownership check failed.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]interface{}{
		"message": err.Error(),
		"type":    errorType(err),
	}
	if reason, ok := domain.ReasonOf(err); ok {
		body["reason"] = string(reason)
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInsufficientCapacity), errors.Is(err, domain.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, domain.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidInput):
		return "invalid_request"
	default:
		return "error"
	}
}

// traceMiddleware seeds the trace id of the request's spans with the chi
// request id.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(TraceHeader, id)
			r = r.WithContext(observability.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+CallerHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
