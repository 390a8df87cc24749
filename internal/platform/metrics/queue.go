package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(queueResultsTotal) }

var queueResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_queue_results_total",
		Help: "Queued notifications processed by the dispatcher, by result.",
	},
	[]string{"result"}, // delivered, failed, expired, invalid
)

// IncQueueResult はディスパッチャーの処理結果を記録します。
func IncQueueResult(result string) {
	queueResultsTotal.WithLabelValues(result).Inc()
}
