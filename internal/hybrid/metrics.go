package hybrid

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Cleaner
	cleanerRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridindex_cleaner_runs_total",
		Help: "The total number of cleaner runs",
	}, []string{"result"})

	cleanerRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridindex_cleaner_rotations_total",
		Help: "The total number of generation rotations of plain indexes",
	}, []string{"index"})

	cleanerPurged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridindex_cleaner_purged_entries_total",
		Help: "The total number of entries removed by the cleaner",
	}, []string{"index"})

	cleanerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridindex_cleaner_failures_total",
		Help: "The total number of failed index cleanups",
	}, []string{"index"})

	cleanerWatermark = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hybridindex_cleaner_last_watermark",
		Help: "The last async lane watermark the cleaner acted upon",
	}, []string{"index"})

	// Writer
	constraintViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridindex_writer_constraint_violations_total",
		Help: "The total number of commits rejected by a unique index",
	}, []string{"index"})
)

func init() {
	prometheus.MustRegister(cleanerRuns)
	prometheus.MustRegister(cleanerRotations)
	prometheus.MustRegister(cleanerPurged)
	prometheus.MustRegister(cleanerFailures)
	prometheus.MustRegister(cleanerWatermark)
	prometheus.MustRegister(constraintViolations)
}
