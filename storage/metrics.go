package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts store operations by operation and result
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maclib_storage_operations_total",
		Help: "Total library store operations by operation and result",
	}, []string{"op", "result"})

	// backupsRetained tracks the number of backups left after rotation
	backupsRetained = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maclib_storage_backups_retained",
		Help: "Number of library backups on disk after the last rotation",
	})
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
