package statemachine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sessions 会话管理器，每个会话一个独立的状态机实例，实例之间不共享任何状态
type Sessions[C any] struct {
	def  *Definition[C]
	opts []Option

	mu       sync.RWMutex
	machines map[string]*Machine[C]
}

// NewSessions 创建会话管理器，opts 应用到每个新建实例
func NewSessions[C any](def *Definition[C], opts ...Option) *Sessions[C] {
	return &Sessions[C]{
		def:      def,
		opts:     opts,
		machines: make(map[string]*Machine[C]),
	}
}

// Create 以新的会话标识创建并启动实例
func (s *Sessions[C]) Create(opts ...Option) (*Machine[C], error) {
	return s.CreateWithID(uuid.NewString(), opts...)
}

// CreateWithID 以指定会话标识创建并启动实例
func (s *Sessions[C]) CreateWithID(id string, opts ...Option) (*Machine[C], error) {
	all := append(append([]Option{}, s.opts...), opts...)
	all = append(all, WithID(id))
	return s.add(id, NewMachine(s.def, all...))
}

// Restore 从持久化记录恢复会话
func (s *Sessions[C]) Restore(rec Record, opts ...Option) (*Machine[C], error) {
	all := append(append([]Option{}, s.opts...), opts...)
	m, err := Restore(s.def, rec, all...)
	if err != nil {
		return nil, err
	}
	return s.add(m.ID(), m)
}

func (s *Sessions[C]) add(id string, m *Machine[C]) (*Machine[C], error) {
	s.mu.Lock()
	if _, exists := s.machines[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", id, ErrDuplicateSession)
	}
	s.machines[id] = m
	s.mu.Unlock()

	if err := m.Start(); err != nil {
		s.mu.Lock()
		delete(s.machines, id)
		s.mu.Unlock()
		m.Stop()
		return nil, err
	}
	activeSessions.WithLabelValues(s.def.ID()).Inc()
	return m, nil
}

// Get 获取会话实例
func (s *Sessions[C]) Get(id string) (*Machine[C], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[id]
	return m, ok
}

// Send 向指定会话发送事件
func (s *Sessions[C]) Send(id string, ev Event) error {
	m, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	m.Send(ev)
	return nil
}

// Broadcast 向所有会话发送相同事件
func (s *Sessions[C]) Broadcast(ev Event) {
	for _, m := range s.list() {
		m.Send(ev)
	}
}

// Remove 停止并移除会话
func (s *Sessions[C]) Remove(id string) error {
	s.mu.Lock()
	m, ok := s.machines[id]
	delete(s.machines, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	m.Stop()
	activeSessions.WithLabelValues(s.def.ID()).Dec()
	return nil
}

// Snapshots 获取所有会话的快照
func (s *Sessions[C]) Snapshots() map[string]Snapshot[C] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make(map[string]Snapshot[C], len(s.machines))
	for id, m := range s.machines {
		snaps[id] = m.Snapshot()
	}
	return snaps
}

// States 获取所有会话的当前状态
func (s *Sessions[C]) States() map[string]StateID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make(map[string]StateID, len(s.machines))
	for id, m := range s.machines {
		states[id] = m.Current()
	}
	return states
}

// ResetAll 重置所有会话
func (s *Sessions[C]) ResetAll() {
	for _, m := range s.list() {
		m.Reset()
	}
}

// StopAll 停止并移除所有会话
func (s *Sessions[C]) StopAll() {
	s.mu.Lock()
	machines := s.machines
	s.machines = make(map[string]*Machine[C])
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range machines {
		wg.Add(1)
		go func(m *Machine[C]) {
			defer wg.Done()
			m.Stop()
		}(m)
	}
	wg.Wait()
	activeSessions.WithLabelValues(s.def.ID()).Sub(float64(len(machines)))
}

// Count 返回会话数量
func (s *Sessions[C]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.machines)
}

func (s *Sessions[C]) list() []*Machine[C] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	machines := make([]*Machine[C], 0, len(s.machines))
	for _, m := range s.machines {
		machines = append(machines, m)
	}
	return machines
}
