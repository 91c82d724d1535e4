package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// ErrNoConfigFile 默认路径下找不到配置文件
var ErrNoConfigFile = errors.New("no config file found")

// Validator 配置类型实现该接口时，每次加载后校验
type Validator interface {
	Validate() error
}

// Manager 配置管理器
// 加载顺序：默认值 -> 配置文件 -> 环境变量覆盖 -> 校验
type Manager[T any] struct {
	s        settings
	defaults T

	mu         sync.RWMutex
	path       string
	serializer Serializer
	current    T
	loaded     bool
	callbacks  []func(old, new T)

	watcher   *fsnotify.Watcher
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager 创建配置管理器，defaults 为文件中缺省字段的默认值
func NewManager[T any](defaults T, opts ...Option) *Manager[T] {
	s := settings{
		appName:    "app",
		serializer: YAMLSerializer{},
		formats:    []Serializer{YAMLSerializer{}, JSONSerializer{}},
		defaultPaths: []string{
			"./{{.AppName}}",
			"./configs/{{.AppName}}",
			"{{.ExecDir}}/{{.AppName}}",
			"/etc/{{.AppName}}/{{.AppName}}",
		},
		debounce: 500 * time.Millisecond,
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Manager[T]{
		s:        s,
		defaults: defaults,
		current:  defaults,
		quit:     make(chan struct{}),
	}
}

// Load 加载配置文件，path 为空时按默认路径查找
func (m *Manager[T]) Load(path string) (T, error) {
	var ser Serializer
	if path != "" {
		if err := validateConfigPath(path); err != nil {
			return m.defaults, fmt.Errorf("invalid config path: %w", err)
		}
		ser = m.chooseSerializer(path)
	} else {
		var err error
		if path, ser, err = m.findDefaultConfigPath(); err != nil {
			return m.defaults, err
		}
	}

	cfg, err := m.decode(path, ser)
	if err != nil {
		return m.defaults, err
	}

	m.mu.Lock()
	m.path = path
	m.serializer = ser
	m.current = cfg
	m.loaded = true
	m.mu.Unlock()

	m.s.log.Info("配置已加载", logger.String("path", path), logger.String("format", ser.Name()))

	if m.s.watch {
		if err := m.startWatch(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Get 返回当前配置
func (m *Manager[T]) Get() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Path 返回已加载的配置文件路径
func (m *Manager[T]) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Save 原子写回配置文件
func (m *Manager[T]) Save() error {
	m.mu.RLock()
	path, ser, cfg, loaded := m.path, m.serializer, m.current, m.loaded
	m.mu.RUnlock()
	if !loaded {
		return errors.New("config not loaded")
	}

	data, err := ser.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config failed: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config failed: %w", err)
	}
	return nil
}

// Reload 重新读取配置文件，成功后按注册顺序触发变更回调
func (m *Manager[T]) Reload() error {
	m.mu.RLock()
	path, ser, loaded := m.path, m.serializer, m.loaded
	m.mu.RUnlock()
	if !loaded {
		return errors.New("config not loaded")
	}

	cfg, err := m.decode(path, ser)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.current
	m.current = cfg
	callbacks := make([]func(old, new T), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(old, cfg)
	}
	return nil
}

// OnChange 注册配置变更回调
func (m *Manager[T]) OnChange(fn func(old, new T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Close 停止监听
func (m *Manager[T]) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.quit)
		m.mu.Lock()
		w := m.watcher
		m.watcher = nil
		m.mu.Unlock()
		if w != nil {
			err = w.Close()
		}
		m.wg.Wait()
	})
	return err
}

/* ------------------------------ 内部方法 ------------------------------ */

func (m *Manager[T]) decode(path string, ser Serializer) (T, error) {
	cfg := m.defaults

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err := ser.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal failed (%s): %w", ser.Name(), err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, fmt.Errorf("apply env overrides failed: %w", err)
	}
	if v, ok := any(&cfg).(Validator); ok {
		if err := v.Validate(); err != nil {
			return cfg, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

// chooseSerializer 强制格式 > 后缀识别 > 默认
func (m *Manager[T]) chooseSerializer(path string) Serializer {
	if m.s.forceFormat != nil {
		return m.s.forceFormat
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range m.s.formats {
		for _, e := range format.Exts() {
			if e == ext {
				return format
			}
		}
	}
	return m.s.serializer
}

func (m *Manager[T]) findDefaultConfigPath() (string, Serializer, error) {
	execPath, _ := os.Executable()
	vars := map[string]string{
		"AppName": m.s.appName,
		"ExecDir": filepath.Dir(execPath),
	}

	for _, tpl := range m.s.defaultPaths {
		base := replacePathVars(tpl, vars)
		if validateConfigPath(base) == nil {
			return base, m.chooseSerializer(base), nil
		}
		for _, format := range m.s.formats {
			for _, ext := range format.Exts() {
				if full := base + ext; validateConfigPath(full) == nil {
					return full, m.chooseSerializer(full), nil
				}
			}
		}
	}
	return "", nil, fmt.Errorf("%s: %w", m.s.appName, ErrNoConfigFile)
}

// startWatch 监听配置文件所在目录，编辑器重命名替换文件时也能收到事件
func (m *Manager[T]) startWatch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("add watch path failed: %w", err)
	}
	m.watcher = w

	m.wg.Add(1)
	go m.watchLoop(w, filepath.Clean(m.path))
	return nil
}

func (m *Manager[T]) watchLoop(w *fsnotify.Watcher, target string) {
	defer m.wg.Done()

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(m.s.debounce)
			}

		case <-debounce.C:
			if err := m.Reload(); err != nil {
				m.s.log.Warn("配置自动重载失败", logger.String("path", target), logger.Err(err))
			} else {
				m.s.log.Info("配置已自动重载", logger.String("path", target))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.s.log.Warn("配置监听错误", logger.Err(err))

		case <-m.quit:
			return
		}
	}
}

// replacePathVars 替换路径模板变量
func replacePathVars(tpl string, vars map[string]string) string {
	result := tpl
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{{."+k+"}}", v)
	}
	return result
}

// validateConfigPath 校验配置路径合法性
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("stat path failed: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("path is a directory: %s", path)
	}
	return nil
}
