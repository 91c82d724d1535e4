package statemachine

import "fmt"

// maxMicrosteps 单个事件内无事件转换的最大次数
const maxMicrosteps = 32

// Step 处理一个事件的计算结果
// 只描述副作用（退出/进入了哪些状态），不执行调用和定时器
type Step[C any] struct {
	Matched bool
	From    StateID
	To      StateID
	Context C
	Exited  []StateID // 由内向外
	Entered []StateID // 由外向内
	Actions []string  // 按执行顺序
	Done    bool

	leaf    *StateNode[C]
	exited  []*StateNode[C]
	entered []*StateNode[C]
}

// Start 计算进入初始状态的结果：从根沿初始子状态下降，依次执行进入动作
func (d *Definition[C]) Start(c C) (Step[C], error) {
	ev := Event{Type: EventInit, Kind: KindUser}
	step := Step[C]{Matched: true, Context: c}
	step.enter(getEnterPath(nil, d.root), ev)
	if err := d.settle(&step, ev); err != nil {
		return step, err
	}
	step.finish()
	return step, nil
}

// Transition 计算 (状态, 上下文, 事件) -> (下一状态, 新上下文, 副作用)
// 从最内层状态开始向外查找该事件的规则，按声明顺序求值守卫，第一个通过的生效
// 没有匹配时返回 Matched=false，状态和上下文不变
func (d *Definition[C]) Transition(from StateID, c C, ev Event) (Step[C], error) {
	leaf, ok := d.nodes[from]
	if !ok {
		return Step[C]{From: from, To: from, Context: c}, fmt.Errorf("%s: %w", from, ErrStateNotFound)
	}

	step := Step[C]{From: from, To: from, Context: c, leaf: leaf}
	t := selectTransition(leaf, c, ev, func(n *StateNode[C]) []*transition[C] { return n.on[ev.Type] })
	if t == nil {
		return step, nil
	}

	step.Matched = true
	step.take(t, ev)
	if err := d.settle(&step, ev); err != nil {
		return step, err
	}
	step.finish()
	return step, nil
}

// Can 检查状态（含祖先）是否声明了该事件
func (d *Definition[C]) Can(from StateID, t EventType) bool {
	leaf, ok := d.nodes[from]
	if !ok {
		return false
	}
	for _, n := range getAncestors(leaf) {
		if len(n.on[t]) > 0 {
			return true
		}
	}
	return false
}

// selectTransition 由内向外查找第一个守卫通过的候选转换
func selectTransition[C any](leaf *StateNode[C], c C, ev Event, rules func(*StateNode[C]) []*transition[C]) *transition[C] {
	for _, n := range getAncestors(leaf) {
		for _, t := range rules(n) {
			if t.guard == nil || t.guard(c, ev) {
				return t
			}
		}
	}
	return nil
}

// settle 处理无事件转换，直到稳定或进入终止状态
func (d *Definition[C]) settle(step *Step[C], ev Event) error {
	for i := 0; ; i++ {
		if step.leaf.terminal {
			return nil
		}
		t := selectTransition(step.leaf, step.Context, ev, func(n *StateNode[C]) []*transition[C] { return n.always })
		if t == nil {
			return nil
		}
		if i >= maxMicrosteps {
			return fmt.Errorf("%s: %w", step.leaf.ID, ErrMicrostepLimit)
		}
		step.take(t, ev)
	}
}

// take 执行一次转换：退出动作 -> 转换动作 -> 进入动作
// 目标为空或等于当前叶子时为内部转换，只执行转换动作
func (s *Step[C]) take(t *transition[C], ev Event) {
	if t.target == nil || t.target == s.leaf {
		s.run(t.actions, ev)
		return
	}

	domain := transitionDomain(s.leaf, t.target)
	for _, n := range getExitPath(s.leaf, domain) {
		s.run(n.exit, ev)
		s.exited = append(s.exited, n)
	}
	s.run(t.actions, ev)
	s.enter(getEnterPath(domain, t.target), ev)
}

func (s *Step[C]) enter(nodes []*StateNode[C], ev Event) {
	for _, n := range nodes {
		s.run(n.entry, ev)
		s.entered = append(s.entered, n)
		s.leaf = n
	}
}

func (s *Step[C]) run(actions []namedAction[C], ev Event) {
	for _, a := range actions {
		s.Context = a.fn(s.Context, ev)
		s.Actions = append(s.Actions, a.name)
	}
}

// finish 汇总结果
// 宏步中途进入又退出的状态只出现在 Exited 中
func (s *Step[C]) finish() {
	s.To = s.leaf.ID
	s.Done = s.leaf.terminal

	active := make(map[*StateNode[C]]bool)
	for _, n := range getAncestors(s.leaf) {
		active[n] = true
	}

	s.Exited = s.Exited[:0]
	for _, n := range s.exited {
		s.Exited = append(s.Exited, n.ID)
	}

	var entered []*StateNode[C]
	s.Entered = s.Entered[:0]
	for _, n := range s.entered {
		if active[n] {
			active[n] = false
			entered = append(entered, n)
			s.Entered = append(s.Entered, n.ID)
		}
	}
	s.entered = entered
}
