package statemachine

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"
)

type reviewCtx struct {
	Author   string
	Decision string
	Note     string
}

type approvalCtx struct {
	Author string
	Pinged int
}

func newApprovalDef(t *testing.T) *Definition[approvalCtx] {
	t.Helper()
	reg := NewRegistry[approvalCtx]().
		Action("ping", func(c approvalCtx, _ Event) approvalCtx {
			c.Pinged++
			return c
		})

	root := &StateConfig[approvalCtx]{ID: "approval", Initial: "waiting"}
	root.State("waiting").
		Transition("PING", TransitionConfig{Actions: []string{"ping"}}).
		Goto("APPROVE", "approved").
		Goto("REJECT", "rejected")

	approved := root.State("approved")
	approved.Terminal = true
	approved.Output = func(c approvalCtx) Output {
		return Output{Success: true, Data: "approved for " + c.Author}
	}

	rejected := root.State("rejected")
	rejected.Terminal = true
	rejected.Output = func(approvalCtx) Output { return Output{Error: "rejected"} }

	def, err := NewDefinition("approval", approvalCtx{}, root, reg)
	if err != nil {
		t.Fatalf("构建子定义失败: %v", err)
	}
	return def
}

func newReviewDef(t *testing.T) *Definition[reviewCtx] {
	t.Helper()
	reg := NewRegistry[reviewCtx]().
		Action("assignDecision", func(c reviewCtx, ev Event) reviewCtx {
			c.Decision, _ = ev.Output().Data.(string)
			return c
		}).
		Action("assignNote", func(c reviewCtx, ev Event) reviewCtx {
			c.Note = ev.Output().Error
			return c
		}).
		Guard("approved", func(_ reviewCtx, ev Event) bool { return ev.Output().Success })

	child := SpawnChild(newApprovalDef(t), func(p reviewCtx, q approvalCtx) approvalCtx {
		q.Author = p.Author
		return q
	}, NewEvent("PING", nil))

	root := &StateConfig[reviewCtx]{ID: "review", Initial: "draft"}
	root.State("draft").Goto("SUBMIT", "awaiting")

	awaiting := root.State("awaiting")
	awaiting.Goto("WITHDRAW", "draft")
	awaiting.Invoke = &InvokeConfig[reviewCtx]{
		Child: child,
		OnDone: []TransitionConfig{
			{Guard: "approved", Target: "published", Actions: []string{"assignDecision"}},
			{Target: "draft", Actions: []string{"assignNote"}},
		},
		Forward: []EventType{"APPROVE", "REJECT"},
	}
	root.State("published").Terminal = true

	def, err := NewDefinition("review", reviewCtx{Author: "ada"}, root, reg)
	if err != nil {
		t.Fatalf("构建父定义失败: %v", err)
	}
	return def
}

func TestChild_ForwardAndComplete(t *testing.T) {
	m := startMachine(t, newReviewDef(t))

	m.Send(NewEvent("SUBMIT", nil))
	waitState(t, m, "awaiting")
	if inv, _ := m.Pending(); inv != 1 {
		t.Fatalf("子状态机应作为调用挂起: %d", inv)
	}
	if m.Can("APPROVE") {
		t.Error("转发事件不是父状态机自己的规则")
	}

	m.Send(NewEvent("APPROVE", nil))
	snap := waitState(t, m, "published")
	if snap.Context.Decision != "approved for ada" {
		t.Errorf("子状态机输出错误: %q", snap.Context.Decision)
	}
}

func TestChild_FailureOutput(t *testing.T) {
	m := startMachine(t, newReviewDef(t))

	m.Send(NewEvent("SUBMIT", nil))
	waitState(t, m, "awaiting")
	m.Send(NewEvent("REJECT", nil))

	snap := waitFor(t, m, func(s Snapshot[reviewCtx]) bool { return s.Context.Note != "" })
	if snap.Value != "draft" || snap.Context.Note != "rejected" {
		t.Errorf("失败输出应由守卫分流: %+v", snap)
	}
	if inv, _ := m.Pending(); inv != 0 {
		t.Errorf("子状态机结束后不应有挂起的调用: %d", inv)
	}
}

func TestChild_StoppedWhenParentExits(t *testing.T) {
	rec := newDiscardRecorder()
	m := startMachine(t, newReviewDef(t), WithDiscardHook(rec.hook))

	m.Send(NewEvent("SUBMIT", nil))
	waitState(t, m, "awaiting")
	m.Send(NewEvent("WITHDRAW", nil))
	waitState(t, m, "draft")

	if inv, _ := m.Pending(); inv != 0 {
		t.Errorf("父状态退出后子状态机应被停止: %d", inv)
	}

	// 不在 awaiting 时 APPROVE 没有去处
	m.Send(NewEvent("APPROVE", nil))
	m.Send(NewEvent("SUBMIT", nil))
	waitState(t, m, "awaiting")
	m.Send(NewEvent("APPROVE", nil))
	waitState(t, m, "published")

	select {
	case <-rec.ch:
		t.Errorf("不应产生过期结算: %v", rec.list())
	case <-time.After(20 * time.Millisecond):
	}
}

type buildCtx struct {
	Stage    string
	Progress []string
	Error    string
}

type stageCtx struct {
	Step int
}

// newStagedDef 子状态机进入 compiling 和 linking 时通知父状态机，
// explode 为 true 时子状态机的初始进入动作 panic，queued 收到 HOLD 时阻塞到 hold 关闭
func newStagedDef(t *testing.T, explode bool, hold <-chan struct{}) *Definition[buildCtx] {
	t.Helper()
	creg := NewRegistry[stageCtx]().
		Action("begin", func(c stageCtx, _ Event) stageCtx {
			if explode {
				panic("toolchain missing")
			}
			c.Step++
			return c
		})

	croot := &StateConfig[stageCtx]{ID: "stages", Initial: "compiling"}
	compiling := croot.State("compiling")
	compiling.Entry = []string{"begin"}
	compiling.NotifyParent = []EventType{"COMPILING"}
	compiling.Goto("NEXT", "linking")
	linking := croot.State("linking")
	linking.NotifyParent = []EventType{"LINKING"}
	linking.Goto("NEXT", "linked")
	linked := croot.State("linked")
	linked.Terminal = true
	linked.Output = func(stageCtx) Output { return Output{Success: true} }

	stages, err := NewDefinition("stages", stageCtx{}, croot, creg)
	if err != nil {
		t.Fatalf("构建子定义失败: %v", err)
	}

	progress := func(c buildCtx, ev Event) buildCtx {
		c.Progress = append(append([]string(nil), c.Progress...), string(ev.Type))
		if sc, ok := Payload[stageCtx](ev); ok {
			c.Stage = fmt.Sprintf("step-%d", sc.Step)
		}
		return c
	}
	reg := NewRegistry[buildCtx]().
		Action("progress", progress).
		Action("hold", func(c buildCtx, _ Event) buildCtx {
			<-hold
			return c
		}).
		Action("assignError", func(c buildCtx, ev Event) buildCtx {
			c.Error = ev.Error
			return c
		})

	root := &StateConfig[buildCtx]{ID: "build", Initial: "queued"}
	root.State("queued").
		Goto("BUILD", "building").
		Transition("HOLD", TransitionConfig{Actions: []string{"hold"}})
	building := root.State("building")
	building.Goto("ABORT", "queued")
	building.Invoke = &InvokeConfig[buildCtx]{
		Child:   SpawnChild[buildCtx, stageCtx](stages, nil),
		Forward: []EventType{"NEXT"},
		OnDone:  []TransitionConfig{{Target: "built"}},
		OnError: []TransitionConfig{{Target: "broken", Actions: []string{"assignError"}}},
		OnChild: map[EventType][]TransitionConfig{
			"COMPILING": {{Actions: []string{"progress"}}},
			"LINKING":   {{Actions: []string{"progress"}}},
		},
	}
	root.State("built").Terminal = true
	root.State("broken")

	def, err := NewDefinition("build", buildCtx{}, root, reg)
	if err != nil {
		t.Fatalf("构建父定义失败: %v", err)
	}
	return def
}

func TestChild_NotifyParent(t *testing.T) {
	m := startMachine(t, newStagedDef(t, false, nil))

	m.Send(NewEvent("BUILD", nil))
	snap := waitFor(t, m, func(s Snapshot[buildCtx]) bool { return len(s.Context.Progress) == 1 })
	if snap.Value != "building" || snap.Context.Stage != "step-1" {
		t.Errorf("通知应在父状态内处理并携带子上下文: %+v", snap)
	}

	m.Send(NewEvent("NEXT", nil))
	snap = waitFor(t, m, func(s Snapshot[buildCtx]) bool { return len(s.Context.Progress) == 2 })
	if want := []string{"child.building.COMPILING", "child.building.LINKING"}; !slices.Equal(snap.Context.Progress, want) {
		t.Errorf("通知序列错误: %v", snap.Context.Progress)
	}
	if inv, _ := m.Pending(); inv != 1 {
		t.Errorf("通知不结算子状态机: %d", inv)
	}

	m.Send(NewEvent("NEXT", nil))
	waitState(t, m, "built")
}

func TestChild_StaleNotificationDiscarded(t *testing.T) {
	hold := make(chan struct{})
	rec := newDiscardRecorder()
	m := startMachine(t, newStagedDef(t, false, hold), WithDiscardHook(rec.hook))

	// 分发协程阻塞期间 BUILD 和 ABORT 先后入队，子状态机的通知排在 ABORT 之后
	m.Send(NewEvent("HOLD", nil))
	m.Send(NewEvent("BUILD", nil))
	m.Send(NewEvent("ABORT", nil))
	close(hold)
	rec.wait(t)
	if got := rec.list(); !slices.Equal(got, []string{"child.building.COMPILING|stale child event"}) {
		t.Errorf("丢弃记录错误: %v", got)
	}
	if snap := m.Snapshot(); snap.Value != "queued" || len(snap.Context.Progress) != 0 {
		t.Errorf("过期通知不应改变上下文: %+v", snap)
	}
}

func TestChild_ForgedNotificationDiscarded(t *testing.T) {
	rec := newDiscardRecorder()
	m := startMachine(t, newStagedDef(t, false, nil), WithDiscardHook(rec.hook))

	m.Send(NewEvent("BUILD", nil))
	waitFor(t, m, func(s Snapshot[buildCtx]) bool { return len(s.Context.Progress) == 1 })

	m.Send(NewEvent(ChildEvent("building", "LINKING"), stageCtx{Step: 9}))
	rec.wait(t)
	if got := rec.list(); !slices.Equal(got, []string{"child.building.LINKING|reserved event type"}) {
		t.Errorf("丢弃记录错误: %v", got)
	}
	if snap := m.Snapshot(); len(snap.Context.Progress) != 1 || snap.Context.Stage != "step-1" {
		t.Errorf("外部事件不能冒充子状态机通知: %+v", snap.Context)
	}
}

func TestChild_SpawnPanicBecomesError(t *testing.T) {
	m := startMachine(t, newStagedDef(t, true, nil))

	m.Send(NewEvent("BUILD", nil))
	snap := waitState(t, m, "broken")
	if !strings.Contains(snap.Context.Error, "panic: toolchain missing") {
		t.Errorf("子状态机启动异常应转为错误: %q", snap.Context.Error)
	}
	if inv, _ := m.Pending(); inv != 0 {
		t.Errorf("启动失败后不应有挂起的调用: %d", inv)
	}
}
