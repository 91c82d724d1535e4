package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// Record 持久化的快照记录
type Record struct {
	Machine   string          `json:"machine"`
	Instance  string          `json:"instance"`
	Value     StateID         `json:"value"`
	Path      []StateID       `json:"path"`
	Context   json.RawMessage `json:"context"`
	Done      bool            `json:"done"`
	Output    *Output         `json:"output,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func newRecord[C any](machine, instance string, snap Snapshot[C], at time.Time) (Record, error) {
	ctx, err := json.Marshal(snap.Context)
	if err != nil {
		return Record{}, fmt.Errorf("marshal context: %w", err)
	}
	return Record{
		Machine:   machine,
		Instance:  instance,
		Value:     snap.Value,
		Path:      snap.Path,
		Context:   ctx,
		Done:      snap.Done,
		Output:    snap.Output,
		Timestamp: at,
	}, nil
}

// DecodeSnapshot 把记录还原为快照
func DecodeSnapshot[C any](rec Record) (Snapshot[C], error) {
	snap := Snapshot[C]{
		Value:  rec.Value,
		Path:   rec.Path,
		Done:   rec.Done,
		Output: rec.Output,
	}
	if len(rec.Context) > 0 {
		if err := json.Unmarshal(rec.Context, &snap.Context); err != nil {
			return snap, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return snap, nil
}

// Restore 从持久化记录重建实例，实例标识沿用记录中的标识
// 返回的实例尚未启动；Start 时重新布置所在状态的调用和定时器，不执行进入动作
func Restore[C any](def *Definition[C], rec Record, opts ...Option) (*Machine[C], error) {
	if rec.Machine != "" && rec.Machine != def.ID() {
		return nil, fmt.Errorf("record of %q cannot restore %q: %w", rec.Machine, def.ID(), ErrStateNotFound)
	}
	snap, err := DecodeSnapshot[C](rec)
	if err != nil {
		return nil, err
	}
	if rec.Instance != "" {
		opts = append([]Option{WithID(rec.Instance)}, opts...)
	}
	return Resume(def, snap, opts...)
}

// Resume 从快照重建实例
func Resume[C any](def *Definition[C], snap Snapshot[C], opts ...Option) (*Machine[C], error) {
	node, ok := def.Node(snap.Value)
	if !ok {
		return nil, fmt.Errorf("%s: %w", snap.Value, ErrStateNotFound)
	}
	if node.Compound() {
		return nil, fmt.Errorf("%s: snapshot must point at a leaf state: %w", snap.Value, ErrInvalidInitial)
	}

	m := NewMachine(def, opts...)
	m.leaf = node
	m.context = snap.Context
	m.restored = true
	return m, nil
}

// resumeStep 把恢复的位置当作刚进入：路径上的状态重新布置调用和定时器
func resumeStep[C any](leaf *StateNode[C], c C) Step[C] {
	path := pathOf(leaf)
	step := Step[C]{
		Matched: true,
		To:      leaf.ID,
		Context: c,
		Done:    leaf.terminal,
		leaf:    leaf,
		entered: path,
	}
	for _, n := range path {
		step.Entered = append(step.Entered, n.ID)
	}
	return step
}

// Persister 快照观察者，分发协程在每次提交后同步调用
// 实现不应阻塞太久，失败自行处理，不影响状态机
type Persister interface {
	Persist(rec Record)
}

// PersisterFunc 函数形式的 Persister
type PersisterFunc func(rec Record)

func (f PersisterFunc) Persist(rec Record) { f(rec) }

// Store 快照存储，pkg/storage 中的各后端均满足该接口
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Clear(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// StoragePersister 把快照记录以 JSON 写入 Store
type StoragePersister struct {
	store   Store
	key     func(rec Record) string
	timeout time.Duration
	log     *logger.Logger
}

// PersisterOption StoragePersister 选项
type PersisterOption func(*StoragePersister)

// WithKey 所有记录写入同一个键
func WithKey(key string) PersisterOption {
	return func(p *StoragePersister) {
		p.key = func(Record) string { return key }
	}
}

// WithKeyFunc 按记录计算键，默认使用实例标识
func WithKeyFunc(fn func(rec Record) string) PersisterOption {
	return func(p *StoragePersister) {
		p.key = fn
	}
}

// WithWriteTimeout 单次写入超时
func WithWriteTimeout(d time.Duration) PersisterOption {
	return func(p *StoragePersister) {
		p.timeout = d
	}
}

// WithPersisterLogger 设置日志器
func WithPersisterLogger(l *logger.Logger) PersisterOption {
	return func(p *StoragePersister) {
		p.log = l
	}
}

// NewStoragePersister 创建基于 Store 的持久化观察者
func NewStoragePersister(store Store, opts ...PersisterOption) *StoragePersister {
	p := &StoragePersister{
		store:   store,
		key:     func(rec Record) string { return rec.Instance },
		timeout: 2 * time.Second,
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist 写入记录，失败只记录日志和指标
func (p *StoragePersister) Persist(rec Record) {
	key := p.key(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		snapshotFailures.WithLabelValues(rec.Machine).Inc()
		p.log.Warn("快照编码失败", logger.String("key", key), logger.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.store.Write(ctx, key, data); err != nil {
		snapshotFailures.WithLabelValues(rec.Machine).Inc()
		p.log.Warn("快照写入失败",
			logger.String("key", key),
			logger.String("state", string(rec.Value)),
			logger.Err(err),
		)
	}
}

// Load 读取记录，键不存在时 ok 为 false
func (p *StoragePersister) Load(ctx context.Context, key string) (rec Record, ok bool, err error) {
	return LoadRecord(ctx, p.store, key)
}

// Exists 键是否存在
func (p *StoragePersister) Exists(ctx context.Context, key string) (bool, error) {
	return p.store.Exists(ctx, key)
}

// Clear 删除记录
func (p *StoragePersister) Clear(ctx context.Context, key string) error {
	return p.store.Clear(ctx, key)
}

// LoadRecord 从 Store 读取并解码记录，键不存在时 ok 为 false
func LoadRecord(ctx context.Context, store Store, key string) (rec Record, ok bool, err error) {
	exists, err := store.Exists(ctx, key)
	if err != nil || !exists {
		return rec, false, err
	}
	data, err := store.Read(ctx, key)
	if err != nil {
		return rec, false, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("decode record %s: %w", key, err)
	}
	return rec, true, nil
}
