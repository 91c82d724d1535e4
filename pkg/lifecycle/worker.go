package lifecycle

import "context"

// RunFunc 协程运行函数，ctx 结束时应尽快返回
type RunFunc func(ctx context.Context) error

// StopFunc 协程停止函数，用于关闭监听之类不响应 ctx 的资源
type StopFunc func(ctx context.Context) error

// HookFunc 启动或退出钩子
type HookFunc func(ctx context.Context) error

// Worker 受管理的协程
type Worker struct {
	name     string
	runFunc  RunFunc
	stopFunc StopFunc
}

// WorkerOption 协程配置选项
type WorkerOption func(*Worker)

// WithStopFunc 设置停止函数
func WithStopFunc(stopFunc StopFunc) WorkerOption {
	return func(w *Worker) {
		w.stopFunc = stopFunc
	}
}

// Name 返回协程名称
func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) stop(ctx context.Context) error {
	if w.stopFunc == nil {
		return nil
	}
	return w.stopFunc(ctx)
}
