package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "dynamicsbridge"
)

var (
	transferDurationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}

	// Transfer Metrics
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Count of lead transfer attempts by outcome.",
	}, []string{"status"})

	TransferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transfer_duration_seconds",
		Help:      "Time taken by a lead transfer from creation through attachments, any outcome.",
		Buckets:   transferDurationBuckets,
	})

	AttachmentTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attachment_transfers_total",
		Help:      "Count of attachment uploads by outcome.",
	}, []string{"status"})

	// Auth Metrics
	TokenAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_acquisitions_total",
		Help:      "Count of access token acquisitions by mode and outcome.",
	}, []string{"mode", "status"})
)

// NewTransferTimer times one transfer against TransferDuration.
func NewTransferTimer() *prometheus.Timer {
	return prometheus.NewTimer(TransferDuration)
}
