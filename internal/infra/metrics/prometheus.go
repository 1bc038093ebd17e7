package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framestudio_jobs_processed_total",
		Help: "Total number of extraction jobs finished, by outcome",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framestudio_job_processing_duration_seconds",
		Help:    "Duration of extraction pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framestudio_frames_extracted_total",
		Help: "Total number of frames captured across all jobs",
	})

	EncodeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framestudio_encode_failures_total",
		Help: "Steps skipped because the raster could not be encoded",
	}, []string{"format"})

	ActiveExtractions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framestudio_active_extractions",
		Help: "Number of extraction jobs currently running",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framestudio_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})

	RelayBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framestudio_relay_bytes_total",
		Help: "Bytes streamed through the video relay",
	})

	RelayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framestudio_relay_requests_total",
		Help: "Relay requests, by response code",
	}, []string{"code"})
)
