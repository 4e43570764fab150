package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/pipeline"
	"github.com/rushteam/inferkit/usecase"
)

const metricsNamespace = "inferkit"

// Metrics 推理服务的 Prometheus 指标。
//
// 请求级指标由 HTTP 中间件记录；节点耗时与错误通过 usecase.StageObserver 接入；
// 编码回退、解释降级、缓存命中通过 pipeline.Hooks 接入。
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	StageDuration    *prometheus.HistogramVec
	StageErrors      *prometheus.CounterVec
	EncoderFallbacks *prometheus.CounterVec
	ExplainDegraded  *prometheus.CounterVec
	CacheResults     *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到独立的 Registry（附带 Go 运行时与进程指标）
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of prediction requests",
			},
			[]string{"usecase", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of prediction requests",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms ~ 8s
			},
			[]string{"usecase"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"usecase", "stage"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "stage_errors_total",
				Help:      "Total number of pipeline stage failures",
			},
			[]string{"usecase", "stage", "kind"},
		),
		EncoderFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "encoder_fallbacks_total",
				Help:      "Total number of categorical values mapped to the fallback class",
			},
			[]string{"usecase", "column"},
		),
		ExplainDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "explain_degraded_total",
				Help:      "Total number of explanations degraded by a feature-name length mismatch",
			},
			[]string{"usecase"},
		),
		CacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_results_total",
				Help:      "Total number of prediction cache lookups",
			},
			[]string{"usecase", "result"}, // hit, miss
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.StageDuration,
		m.StageErrors,
		m.EncoderFallbacks,
		m.ExplainDegraded,
		m.CacheResults,
	)
	return m
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层 Registry（测试用）
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRequest 记录一次预测请求
func (m *Metrics) ObserveRequest(useCase string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(useCase, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(useCase).Observe(elapsed.Seconds())
}

// Observer 返回节点观察器
func (m *Metrics) Observer() usecase.StageObserver {
	if m == nil {
		return nil
	}
	return func(useCase string, node pipeline.Node, elapsed time.Duration, err error) {
		m.StageDuration.WithLabelValues(useCase, node.Name()).Observe(elapsed.Seconds())
		if err != nil {
			m.StageErrors.WithLabelValues(useCase, node.Name(), core.ErrorKind(err)).Inc()
		}
	}
}

// Hooks 返回节点事件钩子
func (m *Metrics) Hooks() pipeline.Hooks {
	if m == nil {
		return pipeline.Hooks{}
	}
	return pipeline.Hooks{
		EncoderFallback: func(useCase, column string) {
			m.EncoderFallbacks.WithLabelValues(useCase, column).Inc()
		},
		ExplainDegraded: func(useCase string) {
			m.ExplainDegraded.WithLabelValues(useCase).Inc()
		},
		CacheResult: func(useCase string, hit bool) {
			result := "miss"
			if hit {
				result = "hit"
			}
			m.CacheResults.WithLabelValues(useCase, result).Inc()
		},
	}
}
