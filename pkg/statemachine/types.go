package statemachine

import "context"

// StateID 状态标识，在所属状态机内唯一
type StateID string

// EventType 事件类型
type EventType string

// Action 命名动作：由旧上下文和事件计算新上下文
// 上下文按值传递，未修改的字段原样保留；切片/映射字段需复制后再修改
type Action[C any] func(c C, ev Event) C

// Guard 守卫条件，只能读取上下文和事件，不允许有副作用
type Guard[C any] func(c C, ev Event) bool

// Service 异步协作方，返回结果或错误
type Service func(ctx context.Context, input any) (any, error)

// Output 终止状态的输出结果
type Output struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// StateMachine 定义状态机实例的核心接口
type StateMachine interface {
	// ID 返回实例标识
	ID() string

	// Current 返回当前叶子状态
	Current() StateID

	// Send 将事件放入队列，不阻塞
	Send(ev Event)

	// Can 检查当前状态（含祖先）是否声明了该事件
	Can(t EventType) bool

	// Done 是否已进入终止状态
	Done() bool

	// Reset 重置到初始状态
	Reset()

	// Stop 停止事件处理并释放定时器、调用和子状态机
	Stop()
}
