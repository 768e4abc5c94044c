package catalog

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/maclib/library"
)

var (
	// mutationsTotal counts controller mutations by operation and result
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maclib_mutations_total",
		Help: "Total library mutations by operation and result",
	}, []string{"op", "result"})

	standardsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maclib_standards",
		Help: "Number of standards in the loaded library",
	})

	clustersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maclib_clusters",
		Help: "Number of clusters in the loaded library",
	})
)

// observeMutation records a mutation outcome: ok, rejected (caller error)
// or error (persistence failure).
func observeMutation(op string, err error) {
	var result string
	switch {
	case err == nil:
		result = "ok"
	case errors.Is(err, library.ErrValidation),
		errors.Is(err, library.ErrNotFound),
		errors.Is(err, library.ErrInvalidFormat):
		result = "rejected"
	default:
		result = "error"
	}
	mutationsTotal.WithLabelValues(op, result).Inc()
}
