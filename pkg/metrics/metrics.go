// Package metrics 提供申请提交链路的 Prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "polylab"

	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
	OutcomeReplayed  = "replayed"
)

// Manager 指标管理器，nil 接收者上的方法均为空操作
type Manager struct {
	registry *prometheus.Registry

	submissions        *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	requestsCreated    *prometheus.CounterVec
	assignmentsCreated prometheus.Counter
	splitSubmissions   prometheus.Counter
	droppedSelections  *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Option 指标管理器选项
type Option func(*options)

type options struct {
	registry       *prometheus.Registry
	buckets        []float64
	processMetrics bool
}

// WithRegistry 使用指定 Registry（测试中传入独立实例避免重复注册）
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithBuckets 自定义耗时直方图分桶
func WithBuckets(b []float64) Option {
	return func(o *options) { o.buckets = b }
}

// WithProcessMetrics 额外注册 Go 运行时与进程指标
func WithProcessMetrics() Option {
	return func(o *options) { o.processMetrics = true }
}

// NewManager 创建指标管理器并注册全部指标
func NewManager(opts ...Option) *Manager {
	o := &options{buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.processMetrics {
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auto := promauto.With(o.registry)
	m := &Manager{registry: o.registry}

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "total",
		Help:      "申请提交次数，按结果与错误分类统计",
	}, []string{"outcome", "kind"})

	m.submissionDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "duration_seconds",
		Help:      "申请提交耗时",
		Buckets:   o.buckets,
	}, []string{"outcome"})

	m.requestsCreated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "requests_created_total",
		Help:      "已提交的申请单数量，按能力组与优先级统计",
	}, []string{"capability", "priority"})

	m.assignmentsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "assignments_created_total",
		Help:      "已提交的测试任务数量",
	})

	m.splitSubmissions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "split_total",
		Help:      "跨多个能力组拆分的提交次数",
	})

	m.droppedSelections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "dropped_total",
		Help:      "被忽略的方法或样品选择（无法解析的方法、不在样品清单中的样品名）",
	}, []string{"reason"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP 请求次数",
	}, []string{"method", "path", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP 请求耗时",
		Buckets:   o.buckets,
	}, []string{"method", "path"})

	return m
}

// Handler 返回 /metrics 处理器
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 Registry
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSubmission 记录一次提交的结果与耗时
func (m *Manager) ObserveSubmission(outcome, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome, kind).Inc()
	m.submissionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordRequestCreated 记录一张已提交的申请单及其测试任务数
func (m *Manager) RecordRequestCreated(capability, priority string, assignments int) {
	if m == nil {
		return
	}
	m.requestsCreated.WithLabelValues(capability, priority).Inc()
	m.assignmentsCreated.Add(float64(assignments))
}

// RecordSplit 记录一次跨能力组拆分
func (m *Manager) RecordSplit() {
	if m == nil {
		return
	}
	m.splitSubmissions.Inc()
}

// RecordDropped 记录被忽略的选择
func (m *Manager) RecordDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedSelections.WithLabelValues(reason).Add(float64(n))
}

// ObserveHTTP 记录一次 HTTP 请求
func (m *Manager) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
