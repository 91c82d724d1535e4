package statemachine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// Snapshot 实例当前位置：叶子状态、从根到叶子的路径和上下文
type Snapshot[C any] struct {
	Value   StateID   `json:"value"`
	Path    []StateID `json:"path"`
	Context C         `json:"context"`
	Done    bool      `json:"done"`
	Output  *Output   `json:"output,omitempty"`
}

// Machine 状态机实例
// 单个分发协程按先进先出逐个处理事件，一个事件的转换、动作、调用启动、
// 定时器布置和快照发布全部完成后才处理下一个
type Machine[C any] struct {
	def  *Definition[C]
	opts options
	id   string
	log  *logger.Logger

	mu      sync.RWMutex
	leaf    *StateNode[C]
	context C
	done    bool
	output  *Output
	started bool

	seed     C
	restored bool

	queue   *eventQueue
	invokes *invocationManager[C]
	timers  *timerScheduler

	subMu  sync.Mutex
	subs   map[uint64]func(Snapshot[C])
	subSeq uint64

	// 作为子状态机运行时由父状态机设置
	onDone   func(Output)
	onNotify func(Event)

	runCtx   context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ StateMachine = (*Machine[struct{}])(nil)

// NewMachine 以定义中声明的初始上下文创建实例
func NewMachine[C any](def *Definition[C], opts ...Option) *Machine[C] {
	return NewMachineFrom(def, def.Context(), opts...)
}

// NewMachineFrom 以指定初始上下文创建实例
func NewMachineFrom[C any](def *Definition[C], initial C, opts ...Option) *Machine[C] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = def.ID() + ":" + uuid.NewString()
	}

	m := &Machine[C]{
		def:     def,
		opts:    o,
		id:      o.id,
		log:     o.logger,
		seed:    initial,
		context: initial,
		queue:   newEventQueue(),
		subs:    make(map[uint64]func(Snapshot[C])),
		stopCh:  make(chan struct{}),
	}
	m.runCtx, m.cancel = context.WithCancel(o.baseCtx)
	m.invokes = &invocationManager[C]{m: m}
	m.timers = newTimerScheduler(o.clock, m.queue.push)
	return m
}

// ID 返回实例标识
func (m *Machine[C]) ID() string { return m.id }

// Definition 返回实例的定义
func (m *Machine[C]) Definition() *Definition[C] { return m.def }

// Start 进入初始状态（恢复的实例进入快照位置）并启动分发协程
func (m *Machine[C]) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	leaf, context, restored := m.leaf, m.context, m.restored
	m.mu.Unlock()

	var step Step[C]
	var err error
	if restored {
		step = resumeStep(leaf, context)
	} else {
		step, err = m.def.Start(m.seed)
		if err != nil {
			return err
		}
	}
	m.commit(step, Event{Type: EventInit, Kind: KindUser})

	m.wg.Add(1)
	go m.loop()
	return nil
}

// Send 事件入队，不阻塞
func (m *Machine[C]) Send(ev Event) {
	if !m.queue.push(ev) {
		m.log.Debug("实例已停止，事件被丢弃", logger.String("machine", m.id), logger.String("event", string(ev.Type)))
	}
}

// Reset 重置到初始状态和初始上下文，取消所有定时器、调用和子状态机
func (m *Machine[C]) Reset() {
	m.queue.push(Event{Type: eventReset, Kind: kindReset})
}

// Stop 停止分发协程并释放资源，不要在订阅回调中调用
func (m *Machine[C]) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.queue.close()
		m.timers.stopAll()
		m.invokes.stop("machine stopped")
		m.cancel()
	})
}

// Current 返回当前叶子状态
func (m *Machine[C]) Current() StateID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.leaf == nil {
		return ""
	}
	return m.leaf.ID
}

// Done 是否已进入终止状态
func (m *Machine[C]) Done() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// Can 检查当前状态（含祖先）是否声明了该事件
func (m *Machine[C]) Can(t EventType) bool {
	return m.def.Can(m.Current(), t)
}

// Snapshot 同步读取当前位置和上下文
func (m *Machine[C]) Snapshot() Snapshot[C] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// QueueLength 返回待处理事件数
func (m *Machine[C]) QueueLength() int {
	return m.queue.len()
}

// Pending 返回当前未结算的调用数和已布置的定时器数
func (m *Machine[C]) Pending() (invocations, timers int) {
	return m.invokes.pending(), m.timers.pending()
}

// Subscribe 订阅每次提交后的快照，返回取消订阅函数
// 回调在分发协程中同步执行
func (m *Machine[C]) Subscribe(fn func(Snapshot[C])) func() {
	m.subMu.Lock()
	m.subSeq++
	id := m.subSeq
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// WaitFor 阻塞直到快照满足条件或 ctx 结束
func (m *Machine[C]) WaitFor(ctx context.Context, pred func(Snapshot[C]) bool) (Snapshot[C], error) {
	ch := make(chan Snapshot[C], 1)
	unsubscribe := m.Subscribe(func(s Snapshot[C]) {
		if pred(s) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if s := m.Snapshot(); pred(s) {
		return s, nil
	}

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return m.Snapshot(), ctx.Err()
	}
}

// loop 处理事件队列
func (m *Machine[C]) loop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.queue.notify:
		}

		for {
			select {
			case <-m.stopCh:
				return
			default:
			}

			ev, ok := m.queue.pop()
			if !ok {
				break
			}
			m.process(ev)
		}
	}
}

// process 完整处理一个事件
func (m *Machine[C]) process(ev Event) {
	ctx, span := m.startProcessSpan(ev)
	defer span.End()

	committed := false
	defer func() {
		if r := recover(); r != nil {
			msg := "事件处理异常，状态保持不变"
			if committed {
				msg = "提交转换时异常，状态已更新"
			}
			m.log.Error(msg,
				logger.String("machine", m.id),
				logger.String("event", string(ev.Type)),
				logger.Any("panic", r),
			)
		}
	}()

	if ev.Kind == kindReset {
		m.reset()
		return
	}

	if ev.forged() {
		m.discard(ev, "reserved event type")
		return
	}

	if m.Done() {
		m.log.Debug("终止状态不再接受事件", logger.String("machine", m.id), logger.String("event", string(ev.Type)))
		return
	}

	switch ev.Kind {
	case KindDone, KindError, KindChildDone:
		if !m.invokes.settle(ev) {
			m.discard(ev, "stale invocation")
			return
		}
	case KindTimer:
		if !m.timers.fire(ev) {
			m.discard(ev, "stale timer")
			return
		}
	case KindChildEvent:
		if !m.invokes.current(ev) {
			m.discard(ev, "stale child event")
			return
		}
	default:
		if m.invokes.forward(ev) {
			return
		}
	}

	m.mu.RLock()
	from, context := m.leaf.ID, m.context
	m.mu.RUnlock()

	step, err := m.def.Transition(from, context, ev)
	if err != nil {
		m.log.Error("状态转换失败", logger.String("machine", m.id), logger.String("event", string(ev.Type)), logger.Err(err))
		return
	}
	if !step.Matched {
		eventsIgnored.WithLabelValues(m.def.ID(), ev.Kind.String()).Inc()
		m.log.Debug("没有匹配的转换，事件被忽略",
			logger.String("machine", m.id),
			logger.String("state", string(from)),
			logger.String("event", string(ev.Type)),
		)
		return
	}

	committed = true
	m.commit(step, ev)
	annotateSpan(ctx, step.From, step.To)
}

// commit 提交转换结果：
// 取消退出状态的定时器和调用 -> 更新位置和上下文 -> 启动进入状态的调用和定时器 -> 发布快照
func (m *Machine[C]) commit(step Step[C], ev Event) {
	for _, n := range step.exited {
		m.timers.cancel(n.ID)
		m.invokes.cancel(n.ID)
	}

	m.mu.Lock()
	m.leaf = step.leaf
	m.context = step.Context
	m.done = step.Done
	if step.Done {
		out := Output{Success: true}
		if step.leaf.output != nil {
			out = step.leaf.output(step.Context)
		}
		m.output = &out
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if step.Done {
		m.timers.stopAll()
		m.invokes.stop("terminal state")
	} else {
		for _, n := range step.entered {
			if n.invoke != nil {
				m.invokes.start(n, step.Context)
			}
			for _, d := range n.delays {
				m.timers.arm(n.ID, d)
			}
		}
	}

	transitionsTotal.WithLabelValues(m.def.ID(), string(step.From), string(step.To)).Inc()
	m.log.Debug("状态转换",
		logger.String("machine", m.id),
		logger.String("event", string(ev.Type)),
		logger.String("from", string(step.From)),
		logger.String("to", string(step.To)),
		logger.Strings("actions", step.Actions),
	)

	m.publish(snap)

	if m.onNotify != nil {
		for _, n := range step.entered {
			for _, t := range n.notify {
				m.onNotify(Event{Type: t, Kind: KindUser, Data: step.Context})
			}
		}
	}

	if step.Done && m.onDone != nil {
		m.onDone(*snap.Output)
	}
}

// reset 回到初始状态
func (m *Machine[C]) reset() {
	m.timers.stopAll()
	m.invokes.stop("reset")

	step, err := m.def.Start(m.seed)
	if err != nil {
		m.log.Error("重置失败", logger.String("machine", m.id), logger.Err(err))
		return
	}
	step.From = m.Current()

	m.mu.Lock()
	m.output = nil
	m.mu.Unlock()

	m.commit(step, Event{Type: eventReset, Kind: kindReset})
}

// publish 持久化快照并通知订阅者
// 持久化和订阅回调中的 panic 只记录日志，不影响已提交的转换
func (m *Machine[C]) publish(snap Snapshot[C]) {
	if m.opts.persister != nil {
		rec, err := newRecord(m.def.ID(), m.id, snap, m.opts.clock.Now())
		if err != nil {
			snapshotFailures.WithLabelValues(m.def.ID()).Inc()
			m.log.Warn("快照序列化失败", logger.String("machine", m.id), logger.Err(err))
		} else {
			m.guard("persister", func() { m.opts.persister.Persist(rec) })
		}
	}

	m.subMu.Lock()
	subs := make([]func(Snapshot[C]), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		m.guard("subscriber", func() { fn(snap) })
	}
}

// guard 执行观察者回调，panic 转为错误日志
func (m *Machine[C]) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if name == "persister" {
				snapshotFailures.WithLabelValues(m.def.ID()).Inc()
			}
			m.log.Error("回调异常",
				logger.String("machine", m.id),
				logger.String("callback", name),
				logger.Any("panic", r),
			)
		}
	}()
	fn()
}

// discard 丢弃过期的结算或定时器事件
func (m *Machine[C]) discard(ev Event, reason string) {
	staleEvents.WithLabelValues(m.def.ID(), ev.Kind.String()).Inc()
	m.log.Debug("丢弃过期事件",
		logger.String("machine", m.id),
		logger.String("event", string(ev.Type)),
		logger.String("origin", string(ev.origin)),
		logger.String("reason", reason),
	)
	if m.opts.discardHook != nil {
		m.opts.discardHook(m.id, ev, reason)
	}
}

func (m *Machine[C]) snapshotLocked() Snapshot[C] {
	snap := Snapshot[C]{Context: m.context, Done: m.done}
	if m.leaf != nil {
		snap.Value = m.leaf.ID
		snap.Path = m.def.Path(m.leaf.ID)
	}
	if m.output != nil {
		out := *m.output
		snap.Output = &out
	}
	return snap
}

// childOptions 子状态机共享时钟、执行器、日志和诊断回调，不共享持久化
func (m *Machine[C]) childOptions(ctx context.Context, state StateID) []Option {
	return []Option{
		WithID(m.id + "/" + string(state)),
		WithLogger(m.log),
		WithClock(m.opts.clock),
		WithExecutor(m.opts.executor),
		WithDiscardHook(m.opts.discardHook),
		WithTracer(m.opts.tracer),
		withBaseContext(ctx),
	}
}
