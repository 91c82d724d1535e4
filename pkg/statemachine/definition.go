package statemachine

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// StateNode 状态树中的节点
type StateNode[C any] struct {
	ID       StateID
	parent   *StateNode[C]
	children []*StateNode[C]
	initial  *StateNode[C]
	entry    []namedAction[C]
	exit     []namedAction[C]
	on       map[EventType][]*transition[C]
	always   []*transition[C]
	delays   []time.Duration
	invoke   *invocation[C]
	terminal bool
	output   func(C) Output
	notify   []EventType
}

// Parent 返回父节点，根节点返回 nil
func (n *StateNode[C]) Parent() *StateNode[C] { return n.parent }

// Compound 是否为复合状态
func (n *StateNode[C]) Compound() bool { return len(n.children) > 0 }

// Terminal 是否为终止状态
func (n *StateNode[C]) Terminal() bool { return n.terminal }

// Events 返回本节点声明的事件类型
func (n *StateNode[C]) Events() []EventType {
	events := make([]EventType, 0, len(n.on))
	for t := range n.on {
		events = append(events, t)
	}
	return events
}

type namedAction[C any] struct {
	name string
	fn   Action[C]
}

type transition[C any] struct {
	source    *StateNode[C]
	guardName string
	guard     Guard[C]
	target    *StateNode[C] // nil 表示内部转换
	actions   []namedAction[C]
}

type invocation[C any] struct {
	src     string
	service Service
	input   func(C) any
	child   ChildSpec[C]
	forward map[EventType]bool
}

// Definition 编译后的状态机定义，构建后只读，可被多个实例共享
type Definition[C any] struct {
	id      string
	root    *StateNode[C]
	nodes   map[StateID]*StateNode[C]
	context C
}

// NewDefinition 从声明式配置构建状态机定义
// 校验状态标识唯一、转换目标存在、动作/守卫/服务均已注册，所有问题合并返回
func NewDefinition[C any](id string, initial C, root *StateConfig[C], reg *Registry[C]) (*Definition[C], error) {
	if root == nil {
		return nil, fmt.Errorf("definition %s: %w", id, ErrStateNotFound)
	}
	if reg == nil {
		reg = NewRegistry[C]()
	}
	if root.ID == "" {
		root.ID = StateID(id)
	}

	d := &Definition[C]{
		id:      id,
		nodes:   make(map[StateID]*StateNode[C]),
		context: initial,
	}

	var errs error
	configs := make(map[StateID]*StateConfig[C])
	d.root = d.createNodes(root, nil, configs, &errs)
	if errs != nil {
		return nil, fmt.Errorf("definition %s: %w", id, errs)
	}

	for stateID, cfg := range configs {
		errs = multierr.Append(errs, d.resolveNode(d.nodes[stateID], cfg, reg))
	}
	if errs != nil {
		return nil, fmt.Errorf("definition %s: %w", id, errs)
	}
	return d, nil
}

// MustDefinition 同 NewDefinition，失败时 panic，用于包级定义
func MustDefinition[C any](id string, initial C, root *StateConfig[C], reg *Registry[C]) *Definition[C] {
	d, err := NewDefinition(id, initial, root, reg)
	if err != nil {
		panic(err)
	}
	return d
}

// ID 返回定义标识
func (d *Definition[C]) ID() string { return d.id }

// Context 返回声明的初始上下文
func (d *Definition[C]) Context() C { return d.context }

// Root 返回根节点
func (d *Definition[C]) Root() *StateNode[C] { return d.root }

// Node 按标识查找节点
func (d *Definition[C]) Node(id StateID) (*StateNode[C], bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Path 返回从根到指定状态的路径
func (d *Definition[C]) Path(id StateID) []StateID {
	n, ok := d.nodes[id]
	if !ok {
		return nil
	}
	nodes := pathOf(n)
	path := make([]StateID, len(nodes))
	for i, node := range nodes {
		path[i] = node.ID
	}
	return path
}

// createNodes 第一遍：创建节点并建立父子关系
func (d *Definition[C]) createNodes(cfg *StateConfig[C], parent *StateNode[C], configs map[StateID]*StateConfig[C], errs *error) *StateNode[C] {
	if cfg.ID == "" {
		*errs = multierr.Append(*errs, fmt.Errorf("empty state id under %v: %w", parentID(parent), ErrStateNotFound))
		return nil
	}
	if _, exists := d.nodes[cfg.ID]; exists {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", cfg.ID, ErrDuplicateState))
		return nil
	}

	node := &StateNode[C]{
		ID:       cfg.ID,
		parent:   parent,
		on:       make(map[EventType][]*transition[C]),
		terminal: cfg.Terminal,
		output:   cfg.Output,
		notify:   cfg.NotifyParent,
	}
	d.nodes[cfg.ID] = node
	configs[cfg.ID] = cfg

	for _, childCfg := range cfg.Children {
		if child := d.createNodes(childCfg, node, configs, errs); child != nil {
			node.children = append(node.children, child)
		}
	}
	return node
}

// resolveNode 第二遍：解析初始子状态、转换目标和命名引用
func (d *Definition[C]) resolveNode(node *StateNode[C], cfg *StateConfig[C], reg *Registry[C]) error {
	var errs error

	if node.Compound() {
		if node.terminal {
			errs = multierr.Append(errs, fmt.Errorf("%s: terminal state cannot be compound: %w", node.ID, ErrInvalidInitial))
		}
		if cfg.Initial == "" {
			node.initial = node.children[0]
		} else if initial, ok := d.nodes[cfg.Initial]; ok && initial.parent == node {
			node.initial = initial
		} else {
			errs = multierr.Append(errs, fmt.Errorf("%s: initial %q: %w", node.ID, cfg.Initial, ErrInvalidInitial))
		}
	}

	var err error
	if node.entry, err = resolveActions(reg, cfg.Entry); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s entry: %w", node.ID, err))
	}
	if node.exit, err = resolveActions(reg, cfg.Exit); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s exit: %w", node.ID, err))
	}

	for event, candidates := range cfg.On {
		if Reserved(event) {
			errs = multierr.Append(errs, fmt.Errorf("%s on %s: %w", node.ID, event, ErrReservedEvent))
			continue
		}
		errs = multierr.Append(errs, d.addTransitions(node, event, candidates, reg))
	}
	for _, event := range cfg.NotifyParent {
		if Reserved(event) {
			errs = multierr.Append(errs, fmt.Errorf("%s notify %s: %w", node.ID, event, ErrReservedEvent))
		}
	}

	for _, tc := range cfg.Always {
		t, err := d.resolveTransition(node, tc, reg)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s always: %w", node.ID, err))
			continue
		}
		node.always = append(node.always, t)
	}

	for _, delay := range cfg.After {
		node.delays = append(node.delays, delay.Delay)
		errs = multierr.Append(errs, d.addTransitions(node, AfterEvent(node.ID, delay.Delay), delay.Transitions, reg))
	}

	if cfg.Invoke != nil {
		errs = multierr.Append(errs, d.resolveInvoke(node, cfg.Invoke, reg))
	}

	return errs
}

func (d *Definition[C]) resolveInvoke(node *StateNode[C], cfg *InvokeConfig[C], reg *Registry[C]) error {
	inv := &invocation[C]{
		src:   cfg.Src,
		input: cfg.Input,
		child: cfg.Child,
	}
	switch {
	case len(cfg.OnChild) > 0 && cfg.Child == nil:
		return fmt.Errorf("%s invoke: onChild without child: %w", node.ID, ErrInvalidInvoke)
	case cfg.Child != nil && cfg.Src != "":
		return fmt.Errorf("%s invoke: both src and child set: %w", node.ID, ErrInvalidInvoke)
	case cfg.Child != nil:
		inv.src = cfg.Child.Name()
	case cfg.Src != "":
		svc, ok := reg.service(cfg.Src)
		if !ok {
			return fmt.Errorf("%s invoke %q: %w", node.ID, cfg.Src, ErrUnknownService)
		}
		inv.service = svc
	default:
		return fmt.Errorf("%s invoke: %w", node.ID, ErrInvalidInvoke)
	}

	if len(cfg.Forward) > 0 {
		inv.forward = make(map[EventType]bool, len(cfg.Forward))
		for _, t := range cfg.Forward {
			inv.forward[t] = true
		}
	}
	node.invoke = inv

	errs := multierr.Combine(
		d.addTransitions(node, DoneEvent(node.ID), cfg.OnDone, reg),
		d.addTransitions(node, ErrorEvent(node.ID), cfg.OnError, reg),
	)
	for event, candidates := range cfg.OnChild {
		if Reserved(event) {
			errs = multierr.Append(errs, fmt.Errorf("%s onChild %s: %w", node.ID, event, ErrReservedEvent))
			continue
		}
		errs = multierr.Append(errs, d.addTransitions(node, ChildEvent(node.ID, event), candidates, reg))
	}
	return errs
}

func (d *Definition[C]) addTransitions(node *StateNode[C], event EventType, candidates []TransitionConfig, reg *Registry[C]) error {
	var errs error
	for _, tc := range candidates {
		t, err := d.resolveTransition(node, tc, reg)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s on %s: %w", node.ID, event, err))
			continue
		}
		node.on[event] = append(node.on[event], t)
	}
	return errs
}

func (d *Definition[C]) resolveTransition(source *StateNode[C], tc TransitionConfig, reg *Registry[C]) (*transition[C], error) {
	t := &transition[C]{source: source, guardName: tc.Guard}

	if tc.Target != "" {
		target, ok := d.nodes[tc.Target]
		if !ok {
			return nil, fmt.Errorf("target %q: %w", tc.Target, ErrStateNotFound)
		}
		t.target = target
	}

	if tc.Guard != "" {
		guard, ok := reg.guard(tc.Guard)
		if !ok {
			return nil, fmt.Errorf("guard %q: %w", tc.Guard, ErrUnknownGuard)
		}
		t.guard = guard
	}

	actions, err := resolveActions(reg, tc.Actions)
	if err != nil {
		return nil, err
	}
	t.actions = actions
	return t, nil
}

func resolveActions[C any](reg *Registry[C], names []string) ([]namedAction[C], error) {
	if len(names) == 0 {
		return nil, nil
	}
	actions := make([]namedAction[C], 0, len(names))
	var errs error
	for _, name := range names {
		fn, ok := reg.action(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("action %q: %w", name, ErrUnknownAction))
			continue
		}
		actions = append(actions, namedAction[C]{name: name, fn: fn})
	}
	return actions, errs
}

func parentID[C any](n *StateNode[C]) StateID {
	if n == nil {
		return ""
	}
	return n.ID
}
