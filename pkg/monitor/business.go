package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	TxStepTotal         *prometheus.CounterVec
	TxResultTotal       *prometheus.CounterVec
	TxFlowDuration      *prometheus.HistogramVec
	ApprovalTotal       *prometheus.CounterVec
	ReadFailureTotal    *prometheus.CounterVec
	BalanceRefreshTotal prometheus.Counter
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		TxStepTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zeur_tx_step_total",
			Help: "Transaction orchestrator step transitions",
		}, []string{"operation", "step"}),
		TxResultTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zeur_tx_result_total",
			Help: "Terminal transaction results",
		}, []string{"operation", "result"}),
		TxFlowDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zeur_tx_flow_duration_seconds",
			Help:    "Time from execute to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"operation"}),
		ApprovalTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zeur_approval_total",
			Help: "Approval transactions submitted",
		}, []string{"mode"}),
		ReadFailureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zeur_read_failure_total",
			Help: "Failed contract reads",
		}, []string{"call"}),
		BalanceRefreshTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zeur_balance_refresh_total",
			Help: "Balance oracle refreshes",
		}),
	}
}

// 以下 helper 在 Business 未初始化时 (CLI / 单元测试) 直接忽略

func ObserveStep(operation, step string) {
	if Business == nil {
		return
	}
	Business.TxStepTotal.WithLabelValues(operation, step).Inc()
}

func ObserveResult(operation, result string, elapsed time.Duration) {
	if Business == nil {
		return
	}
	Business.TxResultTotal.WithLabelValues(operation, result).Inc()
	Business.TxFlowDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func ObserveApproval(mode string) {
	if Business == nil {
		return
	}
	Business.ApprovalTotal.WithLabelValues(mode).Inc()
}

func ObserveReadFailure(call string) {
	if Business == nil {
		return
	}
	Business.ReadFailureTotal.WithLabelValues(call).Inc()
}

func ObserveBalanceRefresh() {
	if Business == nil {
		return
	}
	Business.BalanceRefreshTotal.Inc()
}
