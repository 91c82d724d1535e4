package checkout

import (
	"context"
	"fmt"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
	"github.com/junbin-yang/go-checkoutflow/pkg/statemachine"
)

// Service 购物会话服务
// 每次状态提交后把快照写入 Store；打开会话时若存在快照则从快照恢复
type Service struct {
	defs      *Definitions
	sessions  *statemachine.Sessions[ShopContext]
	persister *statemachine.StoragePersister
	log       *logger.Logger
}

// NewService 创建会话服务，opts 应用到每个会话实例
func NewService(defs *Definitions, store statemachine.Store, log *logger.Logger, opts ...statemachine.Option) *Service {
	if log == nil {
		log = logger.Default()
	}
	persister := statemachine.NewStoragePersister(store, statemachine.WithPersisterLogger(log))
	all := append([]statemachine.Option{
		statemachine.WithLogger(log),
		statemachine.WithPersister(persister),
	}, opts...)

	return &Service{
		defs:      defs,
		sessions:  statemachine.NewSessions(defs.Shop, all...),
		persister: persister,
		log:       log,
	}
}

// Open 打开会话：已在运行直接返回，有快照则恢复，否则新建
// resumed 表示实例由快照恢复
func (s *Service) Open(ctx context.Context, id string) (m *statemachine.Machine[ShopContext], resumed bool, err error) {
	if m, ok := s.sessions.Get(id); ok {
		return m, false, nil
	}

	rec, ok, err := s.persister.Load(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("load session %s: %w", id, err)
	}
	if !ok {
		m, err = s.sessions.CreateWithID(id)
		return m, false, err
	}

	m, err = s.sessions.Restore(rec)
	if err != nil {
		return nil, false, err
	}
	s.log.Info("会话已恢复",
		logger.String("session", id),
		logger.String("state", string(rec.Value)),
		logger.Time("saved_at", rec.Timestamp),
	)
	return m, true, nil
}

// Send 向会话发送事件
func (s *Service) Send(id string, ev statemachine.Event) error {
	return s.sessions.Send(id, ev)
}

// Snapshot 读取会话快照
func (s *Service) Snapshot(id string) (statemachine.Snapshot[ShopContext], error) {
	m, ok := s.sessions.Get(id)
	if !ok {
		return statemachine.Snapshot[ShopContext]{}, fmt.Errorf("%s: %w", id, statemachine.ErrSessionNotFound)
	}
	return m.Snapshot(), nil
}

// Close 停止会话；forget 为 true 时同时删除快照
func (s *Service) Close(ctx context.Context, id string, forget bool) error {
	if err := s.sessions.Remove(id); err != nil {
		return err
	}
	if forget {
		return s.persister.Clear(ctx, id)
	}
	return nil
}

// Sessions 返回会话管理器
func (s *Service) Sessions() *statemachine.Sessions[ShopContext] {
	return s.sessions
}

// Shutdown 停止全部会话，快照保留
func (s *Service) Shutdown() {
	s.sessions.StopAll()
}
