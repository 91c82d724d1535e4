package lifecycle

import (
	"os"
	"time"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// Option 管理器配置选项
type Option func(*Manager)

// WithSignals 设置触发退出的信号，不传表示不监听信号
func WithSignals(signals ...os.Signal) Option {
	return func(m *Manager) {
		m.signals = signals
	}
}

// WithShutdownTimeout 设置退出超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.shutdownTimeout = timeout
	}
}

// WithLogger 设置日志器
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}
