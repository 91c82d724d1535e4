package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	RotateSize  = "size"
	RotateDaily = "daily"
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level" env:"LOG_LEVEL"`
	Output     string `yaml:"output" json:"output" env:"LOG_OUTPUT"` // stdout | stderr | file
	File       string `yaml:"file" json:"file" env:"LOG_FILE"`
	Rotate     string `yaml:"rotate" json:"rotate"` // size | daily
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// NewWithConfig 按配置创建日志器
// 文件输出按大小滚动（lumberjack）或按天滚动（rotatelogs）
func NewWithConfig(cfg Config, opts ...Option) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	return New(out, level, opts...), nil
}

func openOutput(cfg Config) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "file":
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	if cfg.File == "" {
		return nil, fmt.Errorf("log output file requires a file path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	switch strings.ToLower(cfg.Rotate) {
	case "", RotateSize:
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}, nil
	case RotateDaily:
		w, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(time.Duration(orDefault(cfg.MaxAgeDays, 7))*24*time.Hour),
		)
		if err != nil {
			return nil, fmt.Errorf("open rotatelogs: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown log rotation %q", cfg.Rotate)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
