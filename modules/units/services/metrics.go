package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var unitWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "units",
	Subsystem: "write",
	Name:      "conflicts_total",
	Help:      "Total number of unit write conflicts broken down by kind.",
}, []string{"kind"})

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	unitWriteConflicts.WithLabelValues(kind).Inc()
}
