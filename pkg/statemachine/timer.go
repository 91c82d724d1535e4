package statemachine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type armedTimer struct {
	state StateID
	delay time.Duration
	timer clockwork.Timer
}

// timerScheduler 延时转换的定时器
// 每个定时器有唯一令牌，状态退出时取消；已在队列中的触发事件靠令牌识别为过期
type timerScheduler struct {
	clock clockwork.Clock
	push  func(Event) bool

	mu    sync.Mutex
	seq   uint64
	armed map[uint64]*armedTimer
}

func newTimerScheduler(clock clockwork.Clock, push func(Event) bool) *timerScheduler {
	return &timerScheduler{
		clock: clock,
		push:  push,
		armed: make(map[uint64]*armedTimer),
	}
}

// arm 为状态布置一个延时
func (s *timerScheduler) arm(state StateID, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	token := s.seq
	ev := Event{Type: AfterEvent(state, d), Kind: KindTimer, origin: state, token: token}
	s.armed[token] = &armedTimer{
		state: state,
		delay: d,
		timer: s.clock.AfterFunc(d, func() { s.push(ev) }),
	}
}

// fire 触发事件对应的定时器仍然有效时移除并返回 true
func (s *timerScheduler) fire(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.armed[ev.token]
	if !ok || t.state != ev.origin {
		return false
	}
	delete(s.armed, ev.token)
	return true
}

// cancel 取消状态的全部定时器
func (s *timerScheduler) cancel(state StateID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, t := range s.armed {
		if t.state == state {
			t.timer.Stop()
			delete(s.armed, token)
		}
	}
}

// stopAll 取消全部定时器
func (s *timerScheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, t := range s.armed {
		t.timer.Stop()
		delete(s.armed, token)
	}
}

func (s *timerScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}
