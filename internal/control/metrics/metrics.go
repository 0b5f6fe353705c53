package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WalletsSynced tracks completed wallet syncs per chain and outcome
	WalletsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basis_wallets_synced_total",
			Help: "Total number of wallet syncs",
		},
		[]string{"chain", "outcome"},
	)

	// TransactionsFetched tracks raw transactions fetched per chain
	TransactionsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basis_transactions_fetched_total",
			Help: "Total number of raw transactions fetched",
		},
		[]string{"chain"},
	)

	// ParseFailures tracks per-transaction parse failures per chain
	ParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basis_parse_failures_total",
			Help: "Total number of per-transaction parse failures",
		},
		[]string{"chain"},
	)

	// SyncDuration tracks wallet sync latency per chain
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basis_sync_duration_seconds",
			Help:    "Wallet sync duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// PriceLookups tracks historical price lookups by outcome
	PriceLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basis_price_lookups_total",
			Help: "Total number of historical price lookups",
		},
		[]string{"outcome"},
	)

	// ReportsGenerated tracks cost-basis reports per method
	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basis_reports_generated_total",
			Help: "Total number of cost basis reports generated",
		},
		[]string{"method"},
	)
)
