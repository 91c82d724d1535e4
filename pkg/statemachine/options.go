package statemachine

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// DiscardHook 过期的调用结算或定时器事件被丢弃时调用
type DiscardHook func(machineID string, ev Event, reason string)

type options struct {
	id          string
	logger      *logger.Logger
	clock       clockwork.Clock
	executor    Executor
	persister   Persister
	discardHook DiscardHook
	tracer      trace.Tracer
	baseCtx     context.Context
}

// Option 状态机实例选项
type Option func(*options)

// WithID 设置实例标识
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger 设置日志器
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock 设置时钟（测试中使用 clockwork.NewFakeClock）
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithExecutor 设置异步调用的执行器
func WithExecutor(e Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithPersister 设置快照持久化观察者
func WithPersister(p Persister) Option {
	return func(o *options) {
		o.persister = p
	}
}

// WithDiscardHook 设置过期事件的诊断回调
func WithDiscardHook(h DiscardHook) Option {
	return func(o *options) {
		o.discardHook = h
	}
}

// WithTracer 设置链路追踪器，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// withBaseContext 子状态机继承父调用的 context，父状态退出时一并取消
func withBaseContext(ctx context.Context) Option {
	return func(o *options) {
		o.baseCtx = ctx
	}
}

func defaultOptions() options {
	return options{
		logger:   logger.Default(),
		clock:    clockwork.NewRealClock(),
		executor: GoExecutor{},
		baseCtx:  context.Background(),
	}
}
