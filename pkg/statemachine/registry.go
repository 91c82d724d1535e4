package statemachine

import "sync"

// Registry 按名称注册动作、守卫和服务
// 状态定义只引用名称，构建定义时统一解析
type Registry[C any] struct {
	mu       sync.RWMutex
	actions  map[string]Action[C]
	guards   map[string]Guard[C]
	services map[string]Service
}

// NewRegistry 创建空注册表
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{
		actions:  make(map[string]Action[C]),
		guards:   make(map[string]Guard[C]),
		services: make(map[string]Service),
	}
}

// Action 注册动作，同名覆盖
func (r *Registry[C]) Action(name string, fn Action[C]) *Registry[C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
	return r
}

// Guard 注册守卫，同名覆盖
func (r *Registry[C]) Guard(name string, fn Guard[C]) *Registry[C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[name] = fn
	return r
}

// Service 注册异步服务，同名覆盖
func (r *Registry[C]) Service(name string, fn Service) *Registry[C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = fn
	return r
}

func (r *Registry[C]) action(name string) (Action[C], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}

func (r *Registry[C]) guard(name string) (Guard[C], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.guards[name]
	return fn, ok
}

func (r *Registry[C]) service(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.services[name]
	return fn, ok
}
