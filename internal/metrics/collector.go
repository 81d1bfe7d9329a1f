// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 任务指标
	taskExecutionsTotal *prometheus.CounterVec
	taskDuration        *prometheus.HistogramVec

	// 能力指标
	capabilityCallsTotal *prometheus.CounterVec
	capabilityDuration   *prometheus.HistogramVec
	capabilityCache      *prometheus.CounterVec

	// 生成指标
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// 归档指标
	archiveRotatedFiles *prometheus.CounterVec
	archiveWritesTotal  *prometheus.CounterVec

	// 经理决策
	managerDecisions *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器. registerer 为 nil 时使用默认 Registry.
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_runs_total",
			Help:      "Total number of crew runs",
		},
		[]string{"crew", "process", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_run_duration_seconds",
			Help:      "Crew run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"crew", "process"},
	)

	// 任务指标
	c.taskExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_executions_total",
			Help:      "Total number of task executions by terminal state",
		},
		[]string{"crew", "task", "status"},
	)

	c.taskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"crew", "task"},
	)

	// 能力指标
	c.capabilityCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Total number of capability invocations",
		},
		[]string{"capability", "status"},
	)

	c.capabilityDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_duration_seconds",
			Help:      "Capability invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	c.capabilityCache = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_cache_total",
			Help:      "Capability result cache lookups",
		},
		[]string{"capability", "result"},
	)

	// 生成指标
	c.generationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of generation calls",
		},
		[]string{"role", "status"},
	)

	c.generationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"role"},
	)

	// 归档指标
	c.archiveRotatedFiles = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_rotated_files_total",
			Help:      "Files moved into archive folders",
		},
		[]string{"folder"},
	)

	c.archiveWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "Sink writes performed by the archive manager",
		},
		[]string{"status"},
	)

	c.managerDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manager_decisions_total",
			Help:      "Hierarchical manager decisions",
		},
		[]string{"action"},
	)

	c.logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🚀 运行与任务指标
// =============================================================================

// RecordRun 记录一次运行
func (c *Collector) RecordRun(crew, process, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(crew, process, status).Inc()
	c.runDuration.WithLabelValues(crew, process).Observe(duration.Seconds())
}

// RecordTask 记录任务进入终态
func (c *Collector) RecordTask(crew, task, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.taskExecutionsTotal.WithLabelValues(crew, task, status).Inc()
	c.taskDuration.WithLabelValues(crew, task).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 能力与生成指标
// =============================================================================

// RecordCapability 记录能力调用
func (c *Collector) RecordCapability(name, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.capabilityCallsTotal.WithLabelValues(name, status).Inc()
	c.capabilityDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordCapabilityCache 记录结果缓存命中或未命中
func (c *Collector) RecordCapabilityCache(name string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.capabilityCache.WithLabelValues(name, result).Inc()
}

// RecordGeneration 记录生成调用
func (c *Collector) RecordGeneration(role, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.generationsTotal.WithLabelValues(role, status).Inc()
	c.generationDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 归档与经理指标
// =============================================================================

// RecordArchiveRotation 记录移入归档目录的文件数
func (c *Collector) RecordArchiveRotation(folder string, files int) {
	if c == nil || files <= 0 {
		return
	}
	c.archiveRotatedFiles.WithLabelValues(folder).Add(float64(files))
}

// RecordArchiveWrite 记录 sink 写入结果
func (c *Collector) RecordArchiveWrite(status string) {
	if c == nil {
		return
	}
	c.archiveWritesTotal.WithLabelValues(status).Inc()
}

// RecordManagerDecision 记录经理决策
func (c *Collector) RecordManagerDecision(action string) {
	if c == nil {
		return
	}
	c.managerDecisions.WithLabelValues(action).Inc()
}

// Status 把错误折叠为指标使用的状态标签.
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
