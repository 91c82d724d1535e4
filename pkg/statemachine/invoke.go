package statemachine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// invocationHandle 一次进行中的调用
type invocationHandle struct {
	id      uint64
	state   StateID
	src     string
	cancel  context.CancelFunc
	child   childInstance
	forward map[EventType]bool
	started time.Time
}

// invocationManager 管理实例的调用，同一时刻最多一个活动句柄
// 结算事件携带句柄令牌和来源状态，与活动句柄不一致即为过期结算
type invocationManager[C any] struct {
	m *Machine[C]

	mu   sync.Mutex
	seq  uint64
	live *invocationHandle
}

// start 为进入的状态启动调用，旧句柄被替换并取消
func (im *invocationManager[C]) start(node *StateNode[C], c C) {
	inv := node.invoke

	im.mu.Lock()
	old := im.live
	im.seq++
	ctx, cancel := context.WithCancel(im.m.runCtx)
	h := &invocationHandle{
		id:      im.seq,
		state:   node.ID,
		src:     inv.src,
		cancel:  cancel,
		forward: inv.forward,
		started: im.m.opts.clock.Now(),
	}
	im.live = h
	im.mu.Unlock()

	if old != nil {
		im.release(old, "superseded")
	}

	invocationsStarted.WithLabelValues(im.m.def.ID(), h.src).Inc()
	im.m.log.Debug("启动调用",
		logger.String("machine", im.m.id),
		logger.String("state", string(node.ID)),
		logger.String("src", h.src),
		logger.Uint64("token", h.id),
	)

	if inv.child != nil {
		im.spawnChild(ctx, h, inv.child, c)
		return
	}

	input, err := projectInput(inv, c)
	if err != nil {
		im.m.queue.push(Event{
			Type:   ErrorEvent(h.state),
			Kind:   KindError,
			Data:   err,
			Error:  err.Error(),
			origin: h.state,
			token:  h.id,
		})
		return
	}
	svc := inv.service
	task := func() {
		result, err := callService(ctx, svc, input)
		if err != nil {
			im.m.queue.push(Event{
				Type:   ErrorEvent(h.state),
				Kind:   KindError,
				Data:   err,
				Error:  err.Error(),
				origin: h.state,
				token:  h.id,
			})
			return
		}
		im.m.queue.push(Event{
			Type:   DoneEvent(h.state),
			Kind:   KindDone,
			Data:   result,
			origin: h.state,
			token:  h.id,
		})
	}
	if err := im.m.opts.executor.Go(task); err != nil {
		im.m.queue.push(Event{
			Type:   ErrorEvent(h.state),
			Kind:   KindError,
			Data:   err,
			Error:  err.Error(),
			origin: h.state,
			token:  h.id,
		})
	}
}

func (im *invocationManager[C]) spawnChild(ctx context.Context, h *invocationHandle, spec ChildSpec[C], c C) {
	done := func(out Output) {
		im.m.queue.push(Event{
			Type:   DoneEvent(h.state),
			Kind:   KindChildDone,
			Data:   out,
			Error:  out.Error,
			origin: h.state,
			token:  h.id,
		})
	}

	notify := func(ev Event) {
		im.m.queue.push(Event{
			Type:   ChildEvent(h.state, ev.Type),
			Kind:   KindChildEvent,
			Data:   ev.Data,
			origin: h.state,
			token:  h.id,
		})
	}

	child, err := spec.spawn(ctx, c, im.m.childOptions(ctx, h.state), done, notify)
	if err != nil {
		im.m.log.Error("子状态机启动失败",
			logger.String("machine", im.m.id),
			logger.String("state", string(h.state)),
			logger.Err(err),
		)
		im.m.queue.push(Event{
			Type:   ErrorEvent(h.state),
			Kind:   KindError,
			Data:   err,
			Error:  err.Error(),
			origin: h.state,
			token:  h.id,
		})
		return
	}

	im.mu.Lock()
	if im.live == h {
		h.child = child
		im.mu.Unlock()
		return
	}
	im.mu.Unlock()
	child.Stop()
}

// settle 结算事件与活动句柄匹配时清除句柄并返回 true
func (im *invocationManager[C]) settle(ev Event) bool {
	im.mu.Lock()
	h := im.live
	if h == nil || h.id != ev.token || h.state != ev.origin {
		im.mu.Unlock()
		return false
	}
	im.live = nil
	im.mu.Unlock()

	outcome := "done"
	switch {
	case ev.Kind == KindError:
		outcome = "error"
	case ev.Kind == KindChildDone && !ev.Output().Success:
		outcome = "failed"
	}
	im.observe(h, outcome)

	h.cancel()
	if h.child != nil {
		h.child.Stop()
	}
	return true
}

// current 子状态机通知是否来自活动句柄，不结算句柄
func (im *invocationManager[C]) current(ev Event) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	h := im.live
	return h != nil && h.id == ev.token && h.state == ev.origin
}

// cancel 取消指定状态的调用
func (im *invocationManager[C]) cancel(state StateID) {
	im.mu.Lock()
	h := im.live
	if h == nil || h.state != state {
		im.mu.Unlock()
		return
	}
	im.live = nil
	im.mu.Unlock()

	im.release(h, "state exited")
}

// stop 取消所有调用
func (im *invocationManager[C]) stop(reason string) {
	im.mu.Lock()
	h := im.live
	im.live = nil
	im.mu.Unlock()

	if h != nil {
		im.release(h, reason)
	}
}

// forward 把事件转发给活动的子状态机，已转发返回 true
func (im *invocationManager[C]) forward(ev Event) bool {
	im.mu.Lock()
	h := im.live
	im.mu.Unlock()

	if h == nil || h.child == nil || !h.forward[ev.Type] {
		return false
	}
	im.m.log.Debug("事件转发给子状态机",
		logger.String("machine", im.m.id),
		logger.String("state", string(h.state)),
		logger.String("event", string(ev.Type)),
	)
	h.child.Send(ev)
	return true
}

func (im *invocationManager[C]) pending() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.live == nil {
		return 0
	}
	return 1
}

func (im *invocationManager[C]) release(h *invocationHandle, reason string) {
	h.cancel()
	if h.child != nil {
		h.child.Stop()
	}
	im.observe(h, "cancelled")
	im.m.log.Debug("取消调用",
		logger.String("machine", im.m.id),
		logger.String("state", string(h.state)),
		logger.String("src", h.src),
		logger.String("reason", reason),
	)
}

func (im *invocationManager[C]) observe(h *invocationHandle, outcome string) {
	invocationDuration.WithLabelValues(im.m.def.ID(), h.src, outcome).
		Observe(im.m.opts.clock.Since(h.started).Seconds())
}

// projectInput 计算服务输入，panic 转为错误
func projectInput[C any](inv *invocation[C], c C) (input any, err error) {
	if inv.input == nil {
		return c, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("input panic: %v", r)
		}
	}()
	return inv.input(c), nil
}

// callService 执行服务，panic 转为错误
func callService(ctx context.Context, svc Service, input any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("service panic: %v", r)
		}
	}()
	return svc(ctx, input)
}
