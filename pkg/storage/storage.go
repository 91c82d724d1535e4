// Package storage 提供快照存储的多种后端：内存、文件、Badger、SQLite 和 Redis
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 键不存在
var ErrNotFound = errors.New("storage: key not found")

// ErrClosed 存储已关闭
var ErrClosed = errors.New("storage: closed")

// Storage 键值存储，值为不透明的字节串
type Storage interface {
	Write(ctx context.Context, key string, data []byte) error
	// Read 键不存在时返回 ErrNotFound
	Read(ctx context.Context, key string) ([]byte, error)
	// Clear 删除键，键不存在不是错误
	Clear(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config 存储配置
type Config struct {
	Backend string      `yaml:"backend" json:"backend" env:"STORAGE_BACKEND"`
	Path    string      `yaml:"path" json:"path" env:"STORAGE_PATH"` // 文件目录、Badger 目录或 SQLite 文件
	Redis   RedisConfig `yaml:"redis" json:"redis"`
}

// Open 按配置打开存储后端
func Open(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return OpenFile(cfg.Path)
	case BackendBadger:
		return OpenBadger(cfg.Path)
	case BackendSQLite:
		return OpenSQLite(cfg.Path, DefaultSQLiteConfig())
	case BackendRedis:
		return OpenRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

func validKey(key string) error {
	if key == "" {
		return errors.New("storage: empty key")
	}
	return nil
}
