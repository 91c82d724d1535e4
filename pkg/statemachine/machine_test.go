package statemachine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

func TestMachine_InvokeDone(t *testing.T) {
	m := startMachine(t, newJobDef(t, fetchOK))
	if m.Current() != "idle" {
		t.Fatalf("初始状态错误: %v", m.Current())
	}

	m.Send(NewEvent("START", nil))
	snap := waitFor(t, m, func(s Snapshot[jobCtx]) bool { return s.Done })

	if snap.Value != "done" || snap.Context.Result != "ok" {
		t.Errorf("结果错误: %+v", snap)
	}
	if snap.Output == nil || !snap.Output.Success || snap.Output.Data != "ok" {
		t.Errorf("输出错误: %+v", snap.Output)
	}
	if inv, timers := m.Pending(); inv != 0 || timers != 0 {
		t.Errorf("终止后不应有未结算的调用或定时器: %d %d", inv, timers)
	}
}

func TestMachine_InvokeErrorAndRetry(t *testing.T) {
	m := startMachine(t, newJobDef(t, fetchFail))

	m.Send(NewEvent("START", nil))
	snap := waitState(t, m, "failed")
	if snap.Context.Error != "unreachable" {
		t.Errorf("错误信息未写入上下文: %+v", snap.Context)
	}

	m.Send(NewEvent("RETRY", nil))
	waitFor(t, m, func(s Snapshot[jobCtx]) bool { return s.Value == "failed" && s.Context.Attempts == 2 })
	m.Send(NewEvent("RETRY", nil))
	waitFor(t, m, func(s Snapshot[jobCtx]) bool { return s.Value == "failed" && s.Context.Attempts == 3 })
	m.Send(NewEvent("RETRY", nil))

	snap = waitState(t, m, "gaveUp")
	if snap.Output.Error != "gave up: unreachable" {
		t.Errorf("输出错误: %+v", snap.Output)
	}
}

func TestMachine_ServicePanicBecomesError(t *testing.T) {
	m := startMachine(t, newJobDef(t, func(context.Context, any) (any, error) { panic("kaboom") }))

	m.Send(NewEvent("START", nil))
	snap := waitState(t, m, "failed")
	if snap.Context.Error != "service panic: kaboom" {
		t.Errorf("错误信息错误: %q", snap.Context.Error)
	}
}

// gatedFetch 第 n 次调用等待 gates[n-1] 关闭后返回，忽略取消
type gatedFetch struct {
	gates []chan struct{}
}

func newGatedFetch(n int) *gatedFetch {
	g := &gatedFetch{}
	for range n {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedFetch) fetch(_ context.Context, input any) (any, error) {
	n := input.(int)
	<-g.gates[n-1]
	return fmt.Sprintf("attempt-%d", n), nil
}

type discardRecorder struct {
	mu     sync.Mutex
	events []string
	ch     chan struct{}
}

func newDiscardRecorder() *discardRecorder {
	return &discardRecorder{ch: make(chan struct{}, 16)}
}

func (r *discardRecorder) hook(_ string, ev Event, reason string) {
	r.mu.Lock()
	r.events = append(r.events, string(ev.Type)+"|"+reason)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *discardRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(testTimeout):
		t.Fatal("等待丢弃事件超时")
	}
}

func (r *discardRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestMachine_StaleSettlementDiscarded(t *testing.T) {
	g := newGatedFetch(2)
	rec := newDiscardRecorder()
	m := startMachine(t, newJobDef(t, g.fetch), WithDiscardHook(rec.hook))

	m.Send(NewEvent("START", nil))
	m.Send(NewEvent("CANCEL", nil))
	m.Send(NewEvent("START", nil))
	waitFor(t, m, func(s Snapshot[jobCtx]) bool { return s.Value == "fetching" && s.Context.Attempts == 2 })

	// 第一次调用在状态退出后才返回
	close(g.gates[0])
	rec.wait(t)
	if got := rec.list(); !slices.Equal(got, []string{"done.invoke.fetching|stale invocation"}) {
		t.Errorf("丢弃记录错误: %v", got)
	}
	if snap := m.Snapshot(); snap.Value != "fetching" || snap.Context.Result != "" {
		t.Errorf("过期结算不应改变状态: %+v", snap)
	}

	close(g.gates[1])
	snap := waitState(t, m, "done")
	if snap.Context.Result != "attempt-2" {
		t.Errorf("应采用当前调用的结果: %q", snap.Context.Result)
	}
}

func TestMachine_TimerFires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := startMachine(t, newJobDef(t, fetchBlocking), WithClock(clock))

	m.Send(NewEvent("START", nil))
	waitState(t, m, "fetching")
	if inv, timers := m.Pending(); inv != 1 || timers != 1 {
		t.Errorf("应有一个调用和一个定时器: %d %d", inv, timers)
	}

	blockUntil(t, clock, 1)
	clock.Advance(5 * time.Second)

	snap := waitState(t, m, "timedOut")
	if snap.Output == nil || snap.Output.Error != "timeout" {
		t.Errorf("输出错误: %+v", snap.Output)
	}
	if inv, timers := m.Pending(); inv != 0 || timers != 0 {
		t.Errorf("超时后调用应被取消: %d %d", inv, timers)
	}
}

func TestMachine_TimerSurvivesInnerTransitions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := startMachine(t, newJobDef(t, fetchBlocking), WithClock(clock))

	m.Send(NewEvent("START", nil))
	m.Send(NewEvent("PAUSE", nil))
	m.Send(NewEvent("RESUME", nil))
	waitFor(t, m, func(s Snapshot[jobCtx]) bool { return s.Value == "fetching" && m.QueueLength() == 0 })

	// running 未退出，定时器保持
	if _, timers := m.Pending(); timers != 1 {
		t.Errorf("定时器数量错误: %d", timers)
	}
	blockUntil(t, clock, 1)
	clock.Advance(5 * time.Second)
	waitState(t, m, "timedOut")
}

func TestMachine_TimerCancelledOnExit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := startMachine(t, newJobDef(t, fetchBlocking), WithClock(clock))

	m.Send(NewEvent("START", nil))
	waitState(t, m, "fetching")
	m.Send(NewEvent("CANCEL", nil))
	waitState(t, m, "idle")

	if inv, timers := m.Pending(); inv != 0 || timers != 0 {
		t.Errorf("退出后不应有未结算的调用或定时器: %d %d", inv, timers)
	}
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if m.Current() != "idle" {
		t.Errorf("已取消的定时器不应触发: %v", m.Current())
	}
}

func TestTimerScheduler_StaleFire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan Event, 1)
	s := newTimerScheduler(clock, func(ev Event) bool {
		fired <- ev
		return true
	})

	s.arm("running", time.Second)
	clock.Advance(time.Second)
	ev := <-fired
	if ev.Type != "after.1000.running" || ev.Origin() != "running" {
		t.Errorf("触发事件错误: %+v", ev)
	}

	// 触发事件入队后状态被退出
	s.cancel("running")
	if s.fire(ev) {
		t.Error("已取消的定时器事件应视为过期")
	}

	s.arm("running", time.Second)
	clock.Advance(time.Second)
	ev = <-fired
	if !s.fire(ev) {
		t.Error("有效的定时器事件应被接受")
	}
	if s.fire(ev) {
		t.Error("定时器事件只能被接受一次")
	}
}

func TestMachine_PersistBeforeNotify(t *testing.T) {
	var mu sync.Mutex
	var records []Record
	persister := PersisterFunc(func(rec Record) {
		mu.Lock()
		records = append(records, rec)
		mu.Unlock()
	})

	m := NewMachine(newJobDef(t, fetchOK), WithPersister(persister), WithID("job-1"))
	var mismatches []string
	m.Subscribe(func(s Snapshot[jobCtx]) {
		mu.Lock()
		defer mu.Unlock()
		last := records[len(records)-1]
		if last.Value != s.Value {
			mismatches = append(mismatches, fmt.Sprintf("%s != %s", last.Value, s.Value))
		}
	})
	if err := m.Start(); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	defer m.Stop()

	m.Send(NewEvent("START", nil))
	waitState(t, m, "done")

	mu.Lock()
	defer mu.Unlock()
	if len(mismatches) > 0 {
		t.Errorf("通知订阅者时快照应已写入: %v", mismatches)
	}
	var states []StateID
	for _, rec := range records {
		states = append(states, rec.Value)
		if rec.Machine != "job" || rec.Instance != "job-1" {
			t.Errorf("记录标识错误: %+v", rec)
		}
	}
	if want := []StateID{"idle", "fetching", "done"}; !slices.Equal(states, want) {
		t.Errorf("快照序列错误: got %v, want %v", states, want)
	}
	if last := records[len(records)-1]; !last.Done || last.Output == nil || !last.Output.Success {
		t.Errorf("终止快照错误: %+v", last)
	}
}

func TestMachine_ActionPanicKeepsState(t *testing.T) {
	m := startMachine(t, newJobDef(t, fetchBlocking))

	m.Send(NewEvent("EXPLODE", nil))
	m.Send(NewEvent("START", nil))
	snap := waitState(t, m, "fetching")
	if snap.Context.Attempts != 1 {
		t.Errorf("异常后应继续处理后续事件: %+v", snap.Context)
	}
}

func TestMachine_TerminalDropsEventsUntilReset(t *testing.T) {
	m := startMachine(t, newJobDef(t, fetchOK))

	m.Send(NewEvent("START", nil))
	waitState(t, m, "done")
	if !m.Done() {
		t.Fatal("应处于终止状态")
	}

	m.Send(NewEvent("PING", nil))
	m.Reset()
	snap := waitState(t, m, "idle")
	if m.Done() || snap.Output != nil {
		t.Errorf("重置后应清除终止标记: %+v", snap)
	}
	if snap.Context.Attempts != 0 || len(snap.Context.Trace) != 0 {
		t.Errorf("重置应恢复初始上下文, PING 应被丢弃: %+v", snap.Context)
	}
}

func TestMachine_ResetCancelsInvocation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := startMachine(t, newJobDef(t, fetchBlocking), WithClock(clock))

	m.Send(NewEvent("START", nil))
	waitState(t, m, "fetching")
	m.Reset()
	waitState(t, m, "idle")
	if inv, timers := m.Pending(); inv != 0 || timers != 0 {
		t.Errorf("重置后不应有未结算的调用或定时器: %d %d", inv, timers)
	}
}

func TestMachine_AlreadyStarted(t *testing.T) {
	m := startMachine(t, newJobDef(t, fetchOK))
	if err := m.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("期望 ErrAlreadyStarted, got %v", err)
	}
}

func TestMachine_SendAfterStop(t *testing.T) {
	m := startMachine(t, newJobDef(t, fetchBlocking))
	m.Send(NewEvent("START", nil))
	waitState(t, m, "fetching")

	m.Stop()
	m.Stop()
	m.Send(NewEvent("CANCEL", nil))
	if m.QueueLength() != 0 {
		t.Error("停止后事件应被丢弃")
	}
	if inv, _ := m.Pending(); inv != 0 {
		t.Error("停止后调用应被取消")
	}
}

func TestMachine_EventsProcessedInOrder(t *testing.T) {
	m := startMachine(t, newJobDef(t, fetchBlocking))

	for range 10 {
		m.Send(NewEvent("PING", nil))
	}
	snap := waitFor(t, m, func(s Snapshot[jobCtx]) bool { return len(s.Context.Trace) == 10 })
	for i, name := range snap.Context.Trace {
		if name != "rootPing" {
			t.Errorf("第 %d 个动作错误: %s", i, name)
		}
	}
}

func TestMachine_ForgedSyntheticEventsDiscarded(t *testing.T) {
	g := newGatedFetch(1)
	clock := clockwork.NewFakeClock()
	rec := newDiscardRecorder()
	m := startMachine(t, newJobDef(t, g.fetch), WithClock(clock), WithDiscardHook(rec.hook))

	m.Send(NewEvent("START", nil))
	waitState(t, m, "fetching")

	forged := []Event{
		NewEvent(DoneEvent("fetching"), "forged"),
		NewEvent(ErrorEvent("fetching"), nil),
		NewEvent(AfterEvent("running", 5*time.Second), nil),
	}
	for _, ev := range forged {
		m.Send(ev)
	}
	for range forged {
		rec.wait(t)
	}

	want := []string{
		"done.invoke.fetching|reserved event type",
		"error.invoke.fetching|reserved event type",
		"after.5000.running|reserved event type",
	}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("丢弃记录错误: %v", got)
	}
	if snap := m.Snapshot(); snap.Value != "fetching" || snap.Context.Result != "" || snap.Context.Error != "" {
		t.Errorf("外部事件不能冒充结算或定时器: %+v", snap)
	}
	if inv, timers := m.Pending(); inv != 1 || timers != 1 {
		t.Errorf("真实的调用和定时器应保持挂起: %d %d", inv, timers)
	}

	close(g.gates[0])
	snap := waitState(t, m, "done")
	if snap.Context.Result != "attempt-1" {
		t.Errorf("应采用真实调用的结果: %q", snap.Context.Result)
	}
}

func TestMachine_ObserverPanicDoesNotStopCommit(t *testing.T) {
	var persisted sync.Map
	persister := PersisterFunc(func(rec Record) {
		persisted.Store(rec.Value, true)
		if rec.Value == "fetching" {
			panic("disk full")
		}
	})
	m := NewMachine(newJobDef(t, fetchOK), WithPersister(persister), WithLogger(logger.Nop()))
	m.Subscribe(func(s Snapshot[jobCtx]) {
		if s.Value == "fetching" {
			panic("subscriber bug")
		}
	})
	if err := m.Start(); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	defer m.Stop()

	m.Send(NewEvent("START", nil))
	snap := waitState(t, m, "done")
	if snap.Context.Result != "ok" || snap.Context.Attempts != 1 {
		t.Errorf("回调异常后转换应照常提交: %+v", snap.Context)
	}
	for _, state := range []StateID{"idle", "fetching", "done"} {
		if _, ok := persisted.Load(state); !ok {
			t.Errorf("快照 %s 未写入", state)
		}
	}
}

func TestMachine_InputPanicBecomesError(t *testing.T) {
	reg := NewRegistry[jobCtx]().
		Action("assignError", func(c jobCtx, ev Event) jobCtx {
			c.Error = ev.Error
			return c
		}).
		Service("fetch", fetchOK)

	root := &StateConfig[jobCtx]{ID: "job", Initial: "fetching"}
	root.State("fetching").Invoke = &InvokeConfig[jobCtx]{
		Src:     "fetch",
		Input:   func(jobCtx) any { panic("bad input") },
		OnError: []TransitionConfig{{Target: "failed", Actions: []string{"assignError"}}},
	}
	root.State("failed")

	def, err := NewDefinition("job", jobCtx{}, root, reg)
	if err != nil {
		t.Fatalf("构建定义失败: %v", err)
	}

	m := startMachine(t, def)
	snap := waitState(t, m, "failed")
	if snap.Context.Error != "input panic: bad input" {
		t.Errorf("错误信息错误: %q", snap.Context.Error)
	}
}
