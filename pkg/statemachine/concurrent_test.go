package statemachine

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

func TestSessions_Isolation(t *testing.T) {
	s := NewSessions(newJobDef(t, fetchBlocking), WithLogger(logger.Nop()))
	defer s.StopAll()

	a, err := s.CreateWithID("a")
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	b, err := s.Create()
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if b.ID() == "" || b.ID() == "a" {
		t.Errorf("自动生成的标识错误: %q", b.ID())
	}

	if err := s.Send("a", NewEvent("START", nil)); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	waitState(t, a, "fetching")
	if b.Current() != "idle" {
		t.Errorf("会话之间不应共享状态: %v", b.Current())
	}

	states := s.States()
	if states["a"] != "fetching" || states[b.ID()] != "idle" {
		t.Errorf("状态汇总错误: %v", states)
	}
	if snaps := s.Snapshots(); snaps["a"].Context.Attempts != 1 || snaps[b.ID()].Context.Attempts != 0 {
		t.Errorf("快照汇总错误: %+v", snaps)
	}
}

func TestSessions_Errors(t *testing.T) {
	s := NewSessions(newJobDef(t, fetchOK), WithLogger(logger.Nop()))
	defer s.StopAll()

	if _, err := s.CreateWithID("dup"); err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if _, err := s.CreateWithID("dup"); !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("期望 ErrDuplicateSession, got %v", err)
	}
	if err := s.Send("missing", NewEvent("START", nil)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("期望 ErrSessionNotFound, got %v", err)
	}
	if err := s.Remove("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("期望 ErrSessionNotFound, got %v", err)
	}

	if err := s.Remove("dup"); err != nil {
		t.Errorf("移除失败: %v", err)
	}
	if _, ok := s.Get("dup"); ok {
		t.Error("移除后不应存在")
	}
}

func TestSessions_BroadcastAndReset(t *testing.T) {
	s := NewSessions(newJobDef(t, fetchBlocking), WithLogger(logger.Nop()))
	defer s.StopAll()

	var machines []*Machine[jobCtx]
	for i := range 5 {
		m, err := s.CreateWithID(fmt.Sprintf("s%d", i))
		if err != nil {
			t.Fatalf("创建会话失败: %v", err)
		}
		machines = append(machines, m)
	}

	s.Broadcast(NewEvent("START", nil))
	for _, m := range machines {
		waitState(t, m, "fetching")
	}

	s.ResetAll()
	for _, m := range machines {
		waitState(t, m, "idle")
	}
}

func TestSessions_ConcurrentCreateAndStop(t *testing.T) {
	s := NewSessions(newJobDef(t, fetchOK), WithLogger(logger.Nop()))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			if _, err := s.CreateWithID(id); err != nil {
				t.Errorf("创建会话失败: %v", err)
				return
			}
			_ = s.Send(id, NewEvent("START", nil))
		}(i)
	}
	wg.Wait()

	if s.Count() != 20 {
		t.Errorf("会话数量错误: %d", s.Count())
	}
	s.StopAll()
	if s.Count() != 0 {
		t.Errorf("停止后会话数量错误: %d", s.Count())
	}
}

func TestSessions_Restore(t *testing.T) {
	s := NewSessions(newJobDef(t, fetchOK), WithLogger(logger.Nop()))
	defer s.StopAll()

	m, err := s.Restore(Record{Machine: "job", Instance: "r1", Value: "failed", Context: []byte(`{"attempts":1}`)})
	if err != nil {
		t.Fatalf("恢复会话失败: %v", err)
	}
	if got, ok := s.Get("r1"); !ok || got != m {
		t.Fatal("恢复的会话应以记录中的标识登记")
	}

	m.Send(NewEvent("RETRY", nil))
	snap := waitState(t, m, "done")
	if snap.Context.Attempts != 2 {
		t.Errorf("恢复的上下文应保留: %+v", snap.Context)
	}
}
