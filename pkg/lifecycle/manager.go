package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// Manager 进程生命周期管理器
// 启动钩子 -> 并发运行全部协程 -> 收到信号、ctx 结束或任一协程出错 ->
// 按注册的逆序调用停止函数 -> 等待协程退出 -> 退出钩子
type Manager struct {
	mu              sync.Mutex
	workers         []*Worker
	names           map[string]bool
	onStartup       []HookFunc
	onShutdown      []HookFunc
	signals         []os.Signal
	shutdownTimeout time.Duration
	log             *logger.Logger
	running         bool
}

// NewManager 创建生命周期管理器
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		names:           make(map[string]bool),
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		shutdownTimeout: 30 * time.Second,
		log:             logger.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddWorker 添加协程，必须在 Run 之前调用
func (m *Manager) AddWorker(name string, runFunc RunFunc, opts ...WorkerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	if m.names[name] {
		return fmt.Errorf("%s: %w", name, ErrWorkerExists)
	}

	w := &Worker{name: name, runFunc: runFunc}
	for _, opt := range opts {
		opt(w)
	}
	m.names[name] = true
	m.workers = append(m.workers, w)
	return nil
}

// OnStartup 注册启动钩子，任一钩子失败则不启动协程
func (m *Manager) OnStartup(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStartup = append(m.onStartup, fn)
}

// OnShutdown 注册退出钩子，按注册顺序执行，错误合并返回
func (m *Manager) OnShutdown(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = append(m.onShutdown, fn)
}

// Run 启动管理器并阻塞到退出完成
// 协程因 ctx 结束返回的 context.Canceled/DeadlineExceeded 不算错误
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	workers := append([]*Worker(nil), m.workers...)
	startup := append([]HookFunc(nil), m.onStartup...)
	shutdown := append([]HookFunc(nil), m.onShutdown...)
	m.mu.Unlock()

	if len(m.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, m.signals...)
		defer stop()
	}

	for _, fn := range startup {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			m.log.Info("协程启动", logger.String("worker", w.name))
			err := w.runFunc(gctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				m.log.Error("协程异常退出", logger.String("worker", w.name), logger.Err(err))
				return fmt.Errorf("%s: %w", w.name, err)
			}
			m.log.Info("协程退出", logger.String("worker", w.name))
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var runErr error
	finished := false
	select {
	case runErr = <-done:
		finished = true
	case <-gctx.Done():
		m.log.Info("开始退出", logger.Err(context.Cause(gctx)))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	var errs error
	for i := len(workers) - 1; i >= 0; i-- {
		if err := workers[i].stop(shutdownCtx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", workers[i].name, err))
		}
	}

	if !finished {
		select {
		case runErr = <-done:
		case <-shutdownCtx.Done():
			m.log.Error("退出超时", logger.Duration("timeout", m.shutdownTimeout))
			return multierr.Combine(ErrShutdownTimeout, errs)
		}
	}

	for _, fn := range shutdown {
		errs = multierr.Append(errs, fn(shutdownCtx))
	}
	return multierr.Combine(runErr, errs)
}
