package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UnitsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_units_created_total",
		Help: "Units inserted by manufacturer order preparation.",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_unit_transitions_total",
		Help: "Successful unit status transitions by target status.",
	}, []string{"target"})

	CASConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_unit_cas_conflicts_total",
		Help: "Status writes lost to a concurrent writer.",
	})

	PackingCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_packing_completions_total",
		Help: "Packing session completions by result (ok, mismatch, conflict).",
	}, []string{"result"})

	ManifestRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_fulfillment_manifest_rows_total",
		Help: "Fulfillment manifest rows by outcome (matched, unmatched).",
	}, []string{"outcome"})

	ArtifactFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_artifact_generation_failures_total",
		Help: "Visual-code generations that failed and were left retryable.",
	})
)
