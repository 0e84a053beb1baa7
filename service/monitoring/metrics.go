/*
 * @module service/monitoring/metrics
 * @description 流水线运行指标采集，暴露 Prometheus 计数器与直方图供 /metrics 端点抓取
 * @architecture 分层架构 - 基础设施层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 运行/阶段开始与结束 -> 指标记录 -> promhttp 暴露
 * @rules 指标名统一使用 dataprep_ 前缀，标签取值必须是有限集合
 * @dependencies github.com/prometheus/client_golang
 * @refs main.go
 */

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataprep_pipeline_runs_total",
			Help: "流水线运行总数，按触发方式和最终状态统计",
		},
		[]string{"trigger_type", "status"},
	)

	pipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataprep_pipeline_run_duration_seconds",
			Help:    "流水线单次运行耗时",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"status"},
	)

	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataprep_stage_executions_total",
			Help: "阶段执行总数，按阶段和终态统计",
		},
		[]string{"stage", "status"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataprep_stage_duration_seconds",
			Help:    "阶段执行耗时",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"stage"},
	)

	activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataprep_active_runs",
			Help: "当前处于 pending 或 running 状态的运行数",
		},
	)

	cleanupRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataprep_cleanup_removed_total",
			Help: "清理任务删除的资源数，按资源类型统计",
		},
		[]string{"resource"},
	)
)

// RecordRunStarted 记录一次运行开始
func RecordRunStarted() {
	activeRuns.Inc()
}

// RecordRunCompleted 记录一次运行结束
func RecordRunCompleted(triggerType, status string, duration time.Duration) {
	activeRuns.Dec()
	pipelineRunsTotal.WithLabelValues(triggerType, status).Inc()
	pipelineRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStageCompleted 记录一个阶段进入终态
func RecordStageCompleted(stageID, status string, duration time.Duration) {
	stageExecutionsTotal.WithLabelValues(stageID, status).Inc()
	stageDuration.WithLabelValues(stageID).Observe(duration.Seconds())
}

// RecordCleanupRemoved 记录清理任务删除的资源数
func RecordCleanupRemoved(resource string, count int) {
	if count <= 0 {
		return
	}
	cleanupRemovedTotal.WithLabelValues(resource).Add(float64(count))
}
