// Package appconfig 结账服务的应用配置
package appconfig

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/junbin-yang/go-checkoutflow/internal/backend"
	"github.com/junbin-yang/go-checkoutflow/internal/checkout"
	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
	"github.com/junbin-yang/go-checkoutflow/pkg/storage"
)

// AppName 配置文件的默认名称
const AppName = "checkoutflow"

// Config 应用配置
type Config struct {
	Log      logger.Config      `yaml:"log" json:"log"`
	Storage  storage.Config     `yaml:"storage" json:"storage"`
	Checkout checkout.Policy    `yaml:"checkout" json:"checkout"`
	Backend  backend.MockConfig `yaml:"backend" json:"backend"`
	Metrics  MetricsConfig      `yaml:"metrics" json:"metrics"`
	Executor ExecutorConfig     `yaml:"executor" json:"executor"`
	Session  SessionConfig      `yaml:"session" json:"session"`
	Shutdown time.Duration      `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// MetricsConfig Prometheus 指标端点
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr" env:"METRICS_ADDR"` // 为空不启动
	Path string `yaml:"path" json:"path"`
}

// ExecutorConfig 异步调用执行器，Workers 为 0 时每个调用一个协程
type ExecutorConfig struct {
	Workers int `yaml:"workers" json:"workers" env:"EXECUTOR_WORKERS"`
}

// SessionConfig 演示会话
type SessionConfig struct {
	ID     string `yaml:"id" json:"id" env:"SESSION_ID"`
	Forget bool   `yaml:"forget" json:"forget"` // 结束后删除快照
}

// Default 默认配置：内存存储，模拟后端使用默认延迟，不注入故障
func Default() Config {
	return Config{
		Log:      logger.Config{Level: "info", Output: "stdout"},
		Storage:  storage.Config{Backend: storage.BackendMemory},
		Checkout: checkout.DefaultPolicy(),
		Metrics:  MetricsConfig{Path: "/metrics"},
		Session:  SessionConfig{ID: "demo"},
		Shutdown: 10 * time.Second,
	}
}

// BackendConfig 返回补齐默认延迟的模拟后端配置
func (c Config) BackendConfig() backend.MockConfig {
	cfg := c.Backend
	if cfg.Latency == nil {
		cfg.Latency = backend.DefaultLatency()
	}
	return cfg
}

// Validate 校验配置，所有问题合并返回
func (c Config) Validate() error {
	var errs error
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendFile, storage.BackendBadger, storage.BackendSQLite:
		if c.Storage.Path == "" {
			errs = multierr.Append(errs, fmt.Errorf("storage.path is required for %s", c.Storage.Backend))
		}
	case storage.BackendRedis:
		if c.Storage.Redis.Addr == "" {
			errs = multierr.Append(errs, errors.New("storage.redis.addr is required"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("storage.backend: unknown %q", c.Storage.Backend))
	}

	if c.Checkout.MaxRetries < 0 {
		errs = multierr.Append(errs, errors.New("checkout.max_retries must not be negative"))
	}
	if c.Executor.Workers < 0 {
		errs = multierr.Append(errs, errors.New("executor.workers must not be negative"))
	}
	for op, rate := range c.Backend.Faults.Rate {
		if rate < 0 || rate > 1 {
			errs = multierr.Append(errs, fmt.Errorf("backend.faults.rate.%s: %v not in [0,1]", op, rate))
		}
	}
	for op := range c.Backend.Faults.Fail {
		if !knownOp(op) {
			errs = multierr.Append(errs, fmt.Errorf("backend.faults.fail: unknown operation %q", op))
		}
	}
	if c.Session.ID == "" {
		errs = multierr.Append(errs, errors.New("session.id is required"))
	}
	return errs
}

func knownOp(op backend.Op) bool {
	for _, o := range backend.Ops {
		if o == op {
			return true
		}
	}
	return false
}
