// Package collection is the application layer around the settlement core.
//
// The service:
//  1. Hydrates companies, users and trucks from the store once and keeps the
//     live pointers, so every caller shares the same per-entity locks
//  2. Runs ledger, registry and settlement operations through the domain
//  3. Persists each change from inside the domain's commit hook, so a store
//     failure rolls the in-memory change back
//  4. Logs, traces and records metrics per operation
package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collectnet/collect/internal/domain"
	"github.com/collectnet/collect/internal/infra/logger"
	"github.com/collectnet/collect/internal/infra/observability"
)

// Store is the persistence the service needs: the domain collaborator plus
// the read-side queries used for listings.
type Store interface {
	domain.Store
	CommitBalanceChange(ctx context.Context, acct domain.Account, e domain.BalanceEvent) error
	ListTruckIDs(ctx context.Context, companyID string) ([]string, error)
	BalanceEvents(ctx context.Context, ref domain.AccountRef, limit int) ([]domain.BalanceEvent, error)
}

// UUIDSource mints random UUIDv4 identifiers.
type UUIDSource struct{}

// NewID returns a fresh UUID string.
func (UUIDSource) NewID() string { return uuid.NewString() }

// Config controls service behavior.
type Config struct {
	CommitTimeout time.Duration // Upper bound on a single store commit (default: 5s)
	EventsLimit   int           // Default page size for balance event listings (default: 100)
}

// DefaultConfig returns safe service defaults.
func DefaultConfig() Config {
	return Config{
		CommitTimeout: 5 * time.Second,
		EventsLimit:   100,
	}
}

// Service exposes the collection ledger to the API and CLI.
type Service struct {
	mu        sync.Mutex
	config    Config
	store     Store
	engine    *domain.Engine
	clock     domain.Clock
	ids       domain.IDSource
	log       *zap.Logger
	tracer    *observability.Tracer
	users     map[string]*domain.User
	companies map[string]*domain.Company
	trucks    map[string]*domain.Truck
	settled   int64
	rejected  int64
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(c domain.Clock) Option { return func(s *Service) { s.clock = c } }

// WithIDs overrides the UUID id source.
func WithIDs(ids domain.IDSource) Option { return func(s *Service) { s.ids = ids } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithTracer sets the span tracer.
func WithTracer(t *observability.Tracer) Option { return func(s *Service) { s.tracer = t } }

// New creates a service backed by store.
func New(cfg Config, store Store, opts ...Option) *Service {
	s := &Service{
		config:    cfg,
		store:     store,
		clock:     domain.SystemClock,
		ids:       UUIDSource{},
		users:     make(map[string]*domain.User),
		companies: make(map[string]*domain.Company),
		trucks:    make(map[string]*domain.Truck),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = observability.NewTracer(observability.DefaultTracerConfig())
	}
	s.log = logger.Component(s.log, "collection")
	s.engine = domain.NewEngine(s.clock, s.ids)
	return s
}

// ─── Entity Cache ───────────────────────────────────────────────────────────

func (s *Service) company(ctx context.Context, id string) (*domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.companies[id]; ok {
		return c, nil
	}
	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	s.companies[id] = c
	return c, nil
}

func (s *Service) user(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.users[id] = u
	return u, nil
}

func (s *Service) truck(ctx context.Context, id string) (*domain.Truck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trucks[id]; ok {
		return t, nil
	}
	t, err := s.store.GetTruck(ctx, id)
	if err != nil {
		return nil, err
	}
	s.trucks[id] = t
	return t, nil
}

// AccountKind selects users or companies for balance operations.
type AccountKind string

const (
	KindUser    AccountKind = "user"
	KindCompany AccountKind = "company"
)

func (s *Service) account(ctx context.Context, kind AccountKind, id string) (domain.Account, error) {
	switch kind {
	case KindUser:
		return s.user(ctx, id)
	case KindCompany:
		return s.company(ctx, id)
	default:
		return nil, fmt.Errorf("account kind %q: %w", kind, domain.ErrInvalidInput)
	}
}

func (s *Service) commitCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.CommitTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.CommitTimeout)
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stats summarizes settlement activity since the service started.
type Stats struct {
	Settled   int64 `json:"settled"`
	Rejected  int64 `json:"rejected"`
	Companies int   `json:"companies_cached"`
	Users     int   `json:"users_cached"`
	Trucks    int   `json:"trucks_cached"`
}

// Stats returns current statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Settled:   s.settled,
		Rejected:  s.rejected,
		Companies: len(s.companies),
		Users:     len(s.users),
		Trucks:    len(s.trucks),
	}
}

// isClientError reports whether err is a domain rejection rather than an
// infrastructure failure.
func isClientError(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrInsufficientCapacity) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrDuplicateID)
}

// Traces returns the most recent finished spans, oldest first.
func (s *Service) Traces(limit int) []observability.Span {
	return s.tracer.Spans(limit)
}

func (s *Service) logResult(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if id := observability.TraceIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	switch {
	case err == nil:
		s.log.Info(msg, fields...)
	case isClientError(err):
		s.log.Warn(msg+" rejected", append(fields, zap.Error(err))...)
	default:
		s.log.Error(msg+" failed", append(fields, zap.Error(err))...)
	}
}
