package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"

	"github.com/victornm/emstudy/internal/errors"
)

const namespace = "emstudy"

var (
	submissionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "started_total",
		Help:      "Number of quiz attempts started.",
	})

	submissionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "closed_total",
		Help:      "Number of submissions closed with a score.",
	})

	submissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "rejected_total",
		Help:      "Number of submission operations that failed, by operation and error code.",
	}, []string{"operation", "code"})

	submissionScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "score_percent",
		Help:      "Distribution of submission scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
)

func SubmissionStarted() {
	submissionsStarted.Inc()
}

func SubmissionClosed(percent float64) {
	submissionsClosed.Inc()
	submissionScore.Observe(percent)
}

// SubmissionRejected counts a failed operation under the code carried by err.
func SubmissionRejected(operation string, err error) {
	code := codes.Code(errors.Convert(err).Code)
	submissionsRejected.WithLabelValues(operation, code.String()).Inc()
}
