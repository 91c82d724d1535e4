package statemachine

import "errors"

var (
	// ErrStateNotFound 当状态不存在时返回
	ErrStateNotFound = errors.New("state not found")

	// ErrDuplicateState 当状态标识重复时返回
	ErrDuplicateState = errors.New("duplicate state")

	// ErrInvalidInitial 当复合状态的初始子状态无效时返回
	ErrInvalidInitial = errors.New("invalid initial state")

	// ErrUnknownAction 当动作名未注册时返回
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownGuard 当守卫名未注册时返回
	ErrUnknownGuard = errors.New("unknown guard")

	// ErrUnknownService 当服务名未注册时返回
	ErrUnknownService = errors.New("unknown service")

	// ErrInvalidInvoke 当调用描述既没有服务也没有子状态机时返回
	ErrInvalidInvoke = errors.New("invalid invoke")

	// ErrMicrostepLimit 当无事件转换形成环路时返回
	ErrMicrostepLimit = errors.New("microstep limit exceeded")

	// ErrAlreadyStarted 重复启动实例时返回
	ErrAlreadyStarted = errors.New("machine already started")

	// ErrSessionNotFound 会话不存在时返回
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateSession 会话已存在时返回
	ErrDuplicateSession = errors.New("duplicate session")

	// ErrReservedEvent 声明的事件类型与合成事件冲突时返回
	ErrReservedEvent = errors.New("reserved event type")
)
