package statemachine

import "time"

// TransitionConfig 候选转换
// Guard 为空表示无条件；Target 为空表示内部转换（不退出、不进入）
type TransitionConfig struct {
	Guard   string
	Target  StateID
	Actions []string
}

// DelayConfig 延时转换：进入状态 Delay 之后按顺序尝试候选转换
type DelayConfig struct {
	Delay       time.Duration
	Transitions []TransitionConfig
}

// InvokeConfig 进入状态时启动的异步调用
// Src 与 Child 二选一
type InvokeConfig[C any] struct {
	Src     string          // 已注册的服务名
	Input   func(c C) any   // 服务输入投影
	Child   ChildSpec[C]    // 子状态机
	OnDone  []TransitionConfig
	OnError []TransitionConfig
	Forward []EventType // 转发给子状态机的事件
	// OnChild 子状态机通知的处理，键为子状态机 NotifyParent 中的事件类型
	OnChild map[EventType][]TransitionConfig
}

// StateConfig 状态的声明式配置，Children 非空即为复合状态
type StateConfig[C any] struct {
	ID       StateID
	Initial  StateID
	Entry    []string
	Exit     []string
	On       map[EventType][]TransitionConfig
	Always   []TransitionConfig
	After    []DelayConfig
	Invoke   *InvokeConfig[C]
	Terminal bool
	Output   func(c C) Output
	// NotifyParent 作为子状态机运行时，进入该状态后通知父状态机的事件
	NotifyParent []EventType
	Children     []*StateConfig[C]
}

// State 添加子状态并返回，便于链式构建
func (s *StateConfig[C]) State(id StateID) *StateConfig[C] {
	child := &StateConfig[C]{ID: id}
	s.Children = append(s.Children, child)
	return child
}

// Transition 添加事件转换
func (s *StateConfig[C]) Transition(event EventType, trans ...TransitionConfig) *StateConfig[C] {
	if s.On == nil {
		s.On = make(map[EventType][]TransitionConfig)
	}
	s.On[event] = append(s.On[event], trans...)
	return s
}

// Goto 添加无守卫、无动作的简单转换
func (s *StateConfig[C]) Goto(event EventType, target StateID) *StateConfig[C] {
	return s.Transition(event, TransitionConfig{Target: target})
}
