// Package observability holds the Prometheus metrics for the collection
// ledger and helpers for classifying domain errors into metric labels.
package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/collectnet/collect/internal/domain"
)

// ─── Result Labels ──────────────────────────────────────────────────────────

const (
	ResultOK                   = "ok"
	ResultUnauthorized         = "unauthorized"
	ResultInsufficientBalance  = "insufficient_balance"
	ResultInsufficientCapacity = "insufficient_capacity"
	ResultNotFound             = "not_found"
	ResultInvalid              = "invalid"
	ResultError                = "error"
)

// Result maps an operation error to a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, domain.ErrUnauthorized):
		return ResultUnauthorized
	case errors.Is(err, domain.ErrInsufficientBalance):
		return ResultInsufficientBalance
	case errors.Is(err, domain.ErrInsufficientCapacity):
		return ResultInsufficientCapacity
	case errors.Is(err, domain.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidInput):
		return ResultInvalid
	default:
		return ResultError
	}
}

// ─── Settlement Metrics ─────────────────────────────────────────────────────

// Settlements counts settlement attempts by result.
var Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "collect",
	Subsystem: "settlement",
	Name:      "attempts_total",
	Help:      "Settlement attempts by result",
}, []string{"result"})

// SettledWeight observes the weight of each successful collection.
var SettledWeight = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "collect",
	Subsystem: "settlement",
	Name:      "weight",
	Help:      "Weight of settled collections",
	Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
})

// ChargesTransferred sums fees moved from users to companies.
var ChargesTransferred = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "collect",
	Subsystem: "settlement",
	Name:      "charges_transferred_total",
	Help:      "Total charges transferred from users to companies",
})

// CommitRollbacks counts settlements undone because persistence failed.
var CommitRollbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "collect",
	Subsystem: "settlement",
	Name:      "commit_rollbacks_total",
	Help:      "Settlements rolled back after a failed commit",
})

// ─── Request & Balance Metrics ──────────────────────────────────────────────

// RequestOps counts request registry operations.
var RequestOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "collect",
	Subsystem: "requests",
	Name:      "operations_total",
	Help:      "Request registry operations by op and result",
}, []string{"op", "result"})

// BalanceOps counts deposits and withdrawals.
var BalanceOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "collect",
	Subsystem: "balance",
	Name:      "operations_total",
	Help:      "Balance ledger operations by op and result",
}, []string{"op", "result"})

// BalanceVolume sums amounts moved by deposits and withdrawals.
var BalanceVolume = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "collect",
	Subsystem: "balance",
	Name:      "volume_total",
	Help:      "Amount moved by balance ledger operations",
}, []string{"op"})
