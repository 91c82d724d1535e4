package statemachine

import (
	"context"
	"fmt"
)

// ChildSpec 描述父状态进入时启动的子状态机
// 子状态机到达终止状态时，其输出以 done 事件交给父状态机；
// 进入声明了 NotifyParent 的状态时，通知以 child 事件交给父状态机
type ChildSpec[P any] interface {
	Name() string
	spawn(ctx context.Context, parent P, opts []Option, done func(Output), notify func(Event)) (childInstance, error)
}

type childInstance interface {
	Send(ev Event)
	Stop()
}

type childSpec[P, Q any] struct {
	def   *Definition[Q]
	input func(parent P, child Q) Q
	start []Event
}

// SpawnChild 声明子状态机
// input 从父上下文构造子状态机的初始上下文，start 为启动后立即发送的事件
func SpawnChild[P, Q any](def *Definition[Q], input func(parent P, child Q) Q, start ...Event) ChildSpec[P] {
	return &childSpec[P, Q]{def: def, input: input, start: start}
}

func (s *childSpec[P, Q]) Name() string {
	return s.def.ID()
}

// spawn 启动子状态机，输入投影或启动过程中的 panic 转为错误
func (s *childSpec[P, Q]) spawn(ctx context.Context, parent P, opts []Option, done func(Output), notify func(Event)) (child childInstance, err error) {
	var m *Machine[Q]
	defer func() {
		if r := recover(); r != nil {
			if m != nil {
				m.Stop()
			}
			child, err = nil, fmt.Errorf("spawn %s: panic: %v", s.def.ID(), r)
		}
	}()

	seed := s.def.Context()
	if s.input != nil {
		seed = s.input(parent, seed)
	}

	m = NewMachineFrom(s.def, seed, opts...)
	m.onDone = done
	m.onNotify = notify
	if err := m.Start(); err != nil {
		m.Stop()
		return nil, err
	}
	for _, ev := range s.start {
		m.Send(ev)
	}
	return m, nil
}
