package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pool metrics
	GroupPools = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_group_pools",
			Help: "Number of pools per mint group",
		},
		[]string{"mint"},
	)

	PoolRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_pool_refresh_duration_seconds",
		Help:    "Duration of one group refresh (both fetch phases plus decode)",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8, 1.5},
	})

	PoolDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_pool_decode_errors_total",
			Help: "Pools omitted from a refresh",
		},
		[]string{"kind"},
	)

	PoolSnapshots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_pool_snapshots",
		Help: "Pools with a published snapshot",
	})

	MintCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_mint_cache_size",
		Help: "Current number of entries in the mint info cache",
	})

	// Search metrics
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_search_duration_seconds",
		Help:    "Route search duration per group cycle",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	CandidatesEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_candidates_evaluated",
		Help:    "Input amounts quoted per pool pair",
		Buckets: []float64{4, 8, 16, 32, 48, 64, 96},
	})

	RoutesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_routes_found_total",
			Help: "Profitable routes found",
		},
		[]string{"mint"},
	)

	LastRouteProfit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_last_route_profit",
			Help: "Expected profit of the last route, base mint units",
		},
		[]string{"mint"},
	)

	// Cycle metrics
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_cycle_duration_seconds",
		Help:    "Duration of one group cycle from refresh to submission",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 4},
	})

	CyclesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_cycles_skipped_total",
			Help: "Cycles that ended before submission",
		},
		[]string{"reason"},
	)

	// Submission metrics
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_submissions_total",
			Help: "Per endpoint submission outcomes",
		},
		[]string{"endpoint", "status"},
	)

	SubmitAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_submit_attempts",
		Help:    "Send attempts per endpoint and transaction",
		Buckets: []float64{1, 2, 3, 5, 8},
	})

	SubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_submit_duration_seconds",
		Help:    "Duration of one broadcast over every endpoint",
		Buckets: prometheus.DefBuckets,
	})

	// Simulation metrics
	SimulationRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_simulation_requests_total",
		Help: "Total number of transaction simulations",
	})

	SimulationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_simulation_failures_total",
			Help: "Total number of failed transaction simulations",
		},
		[]string{"reason"},
	)

	ComputeUnits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_compute_units",
		Help:    "Compute units consumed by simulated transactions",
		Buckets: []float64{50000, 100000, 200000, 300000, 400000, 600000, 1000000},
	})

	// Chain state metrics
	BlockhashRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_blockhash_refreshes_total",
			Help: "Blockhash fetches by outcome",
		},
		[]string{"status"},
	)

	PriorityFee = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_priority_fee_micro_lamports",
		Help: "Compute unit price applied to the last plan",
	})

	LookupTablesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_lookup_tables_loaded",
		Help: "Address lookup tables currently cached",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arb_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
