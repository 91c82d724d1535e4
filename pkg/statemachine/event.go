package statemachine

import (
	"strconv"
	"strings"
	"time"
)

// EventKind 事件种类
type EventKind int

const (
	// KindUser 外部输入
	KindUser EventKind = iota
	// KindDone 调用成功
	KindDone
	// KindError 调用失败
	KindError
	// KindTimer 延时转换触发
	KindTimer
	// KindChildDone 子状态机到达终止状态
	KindChildDone
	// KindChildEvent 子状态机进入状态时发给父状态机的通知
	KindChildEvent
	// kindReset 内部重置
	kindReset
)

func (k EventKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	case KindTimer:
		return "timer"
	case KindChildDone:
		return "child_done"
	case KindChildEvent:
		return "child_event"
	case kindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// EventInit 进入初始状态时使用的事件
const EventInit EventType = "machine.init"

// eventReset 重置时使用的内部事件
const eventReset EventType = "machine.reset"

// Event 触发状态转换的事件
type Event struct {
	Type  EventType
	Kind  EventKind
	Data  any
	Error string

	origin StateID // 产生该事件的状态（合成事件）
	token  uint64  // 调用句柄或定时器令牌
}

// NewEvent 创建外部事件
func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Kind: KindUser, Data: data}
}

// Origin 返回合成事件的来源状态
func (e Event) Origin() StateID {
	return e.origin
}

// Output 返回子状态机的输出，非子状态机事件返回零值
func (e Event) Output() Output {
	if out, ok := e.Data.(Output); ok {
		return out
	}
	return Output{}
}

// synthetic 是否为调用、定时器或子状态机产生的事件
func (e Event) synthetic() bool {
	switch e.Kind {
	case KindDone, KindError, KindTimer, KindChildDone, KindChildEvent:
		return true
	}
	return false
}

// forged 外部事件冒用了合成事件的类型
func (e Event) forged() bool {
	return !e.synthetic() && Reserved(e.Type)
}

// 合成事件类型的前缀
var reservedPrefixes = []string{"done.invoke.", "error.invoke.", "after.", "child."}

// Reserved 事件类型是否保留给合成事件，外部事件使用这些类型会被丢弃
func Reserved(t EventType) bool {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(string(t), prefix) {
			return true
		}
	}
	return false
}

// Payload 按类型取出事件数据
func Payload[T any](ev Event) (T, bool) {
	v, ok := ev.Data.(T)
	return v, ok
}

// DoneEvent 返回状态调用成功时的事件类型
func DoneEvent(state StateID) EventType {
	return EventType("done.invoke." + string(state))
}

// ErrorEvent 返回状态调用失败时的事件类型
func ErrorEvent(state StateID) EventType {
	return EventType("error.invoke." + string(state))
}

// ChildEvent 返回子状态机通知在父状态中的事件类型
func ChildEvent(state StateID, t EventType) EventType {
	return EventType("child." + string(state) + "." + string(t))
}

// AfterEvent 返回状态延时转换的事件类型
func AfterEvent(state StateID, d time.Duration) EventType {
	return EventType("after." + strconv.FormatInt(d.Milliseconds(), 10) + "." + string(state))
}
