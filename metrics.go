package automaton

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "automaton",
		Name:      "spawns_total",
		Help:      "Spawn attempts by outcome.",
	}, []string{"outcome"})

	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "automaton",
		Name:      "polls_total",
		Help:      "Status polls by resulting status.",
	}, []string{"status"})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "automaton",
		Name:      "messages_total",
		Help:      "Inbox deliveries by outcome.",
	}, []string{"outcome"})

	spawnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "automaton",
		Name:      "spawn_duration_seconds",
		Help:      "Wall time of successful spawns.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// outcome labels err for the counters.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrChildNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "failed"
	}
}
