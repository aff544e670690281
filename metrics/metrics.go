// Package metrics holds the Prometheus collectors shared by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DescriptionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagerelay_description_calls_total",
			Help: "Total number of description calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	DescriptionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagerelay_description_attempts_total",
			Help: "Total number of upstream attempts made by description providers",
		},
		[]string{"provider"},
	)

	DescriptionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagerelay_description_duration_seconds",
			Help:    "Duration of description calls including retries",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 30},
		},
		[]string{"provider"},
	)

	EnginePolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagerelay_engine_polls_total",
			Help: "Total number of generation engine polls by stage and result",
		},
		[]string{"stage", "result"},
	)

	Jobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagerelay_jobs_total",
			Help: "Total number of generation jobs by final status",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imagerelay_job_duration_seconds",
			Help:    "Duration of generation jobs from submission to final status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)
