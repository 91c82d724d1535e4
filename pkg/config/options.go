package config

import (
	"time"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// Option 配置管理器选项
type Option func(*settings)

type settings struct {
	appName      string
	serializer   Serializer
	forceFormat  Serializer
	formats      []Serializer
	defaultPaths []string
	watch        bool
	debounce     time.Duration
	log          *logger.Logger
}

// WithAppName 设置应用名称（用于默认配置文件名）
func WithAppName(name string) Option {
	return func(s *settings) {
		s.appName = name
	}
}

// WithSerializer 设置无后缀文件使用的格式
func WithSerializer(ser Serializer) Option {
	return func(s *settings) {
		s.serializer = ser
	}
}

// WithForceFormat 强制指定配置格式（无视文件后缀）
func WithForceFormat(ser Serializer) Option {
	return func(s *settings) {
		s.forceFormat = ser
	}
}

// WithDefaultPaths 设置默认配置文件查找路径，支持 {{.AppName}} 和 {{.ExecDir}}
func WithDefaultPaths(paths ...string) Option {
	return func(s *settings) {
		s.defaultPaths = paths
	}
}

// WithConfigWatch 启用配置文件监听（文件变化自动重载）
func WithConfigWatch(enable bool, debounce time.Duration) Option {
	return func(s *settings) {
		s.watch = enable
		s.debounce = debounce
		if debounce <= 0 {
			s.debounce = 500 * time.Millisecond
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) {
		s.log = l
	}
}
