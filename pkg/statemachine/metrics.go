package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 指标标签使用定义标识而非实例标识，避免每个会话产生新的时间序列
var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "已提交的状态转换数",
	}, []string{"machine", "from", "to"})

	eventsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_events_ignored_total",
		Help: "没有匹配转换而被忽略的事件数",
	}, []string{"machine", "kind"})

	staleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_stale_events_total",
		Help: "被丢弃的过期调用结算和定时器事件数",
	}, []string{"machine", "kind"})

	invocationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_invocations_total",
		Help: "启动的调用数",
	}, []string{"machine", "src"})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_invocation_duration_seconds",
		Help:    "调用从启动到结算或取消的耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"machine", "src", "outcome"})

	snapshotFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_snapshot_write_failures_total",
		Help: "快照持久化失败次数",
	}, []string{"machine"})

	activeSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statemachine_active_sessions",
		Help: "当前活动的会话数",
	}, []string{"machine"})
)
