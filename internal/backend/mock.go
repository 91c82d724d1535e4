package backend

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
)

// Op 协作方操作名
type Op string

const (
	OpFetchProducts    Op = "fetchProducts"
	OpValidateAddress  Op = "validateAddress"
	OpProcessPayment   Op = "processPayment"
	OpSaveOrder        Op = "saveOrder"
	OpSendConfirmation Op = "sendConfirmation"
	OpUpdateInventory  Op = "updateInventory"
)

// Ops 全部操作
var Ops = []Op{OpFetchProducts, OpValidateAddress, OpProcessPayment, OpSaveOrder, OpSendConfirmation, OpUpdateInventory}

var (
	ErrProductsUnavailable = errors.New("Failed to fetch products from server")
	ErrZipNotServiceable   = errors.New("Invalid shipping address: Zip code not serviceable")
	ErrCardDeclined        = errors.New("Payment declined: Invalid card number")
)

// 注入故障时各操作返回的错误
var faultErrors = map[Op]error{
	OpFetchProducts:    ErrProductsUnavailable,
	OpValidateAddress:  errors.New("Address validation service unavailable"),
	OpProcessPayment:   errors.New("Payment declined"),
	OpSaveOrder:        errors.New("Database unavailable"),
	OpSendConfirmation: errors.New("Mail server unavailable"),
	OpUpdateInventory:  errors.New("Inventory service unavailable"),
}

// Faults 故障注入参数
// Fail 中的操作必定失败；Rate 为失败概率，随机源由 Seed 决定
type Faults struct {
	Fail map[Op]bool    `yaml:"fail" json:"fail"`
	Rate map[Op]float64 `yaml:"rate" json:"rate"`
	Seed int64          `yaml:"seed" json:"seed"`
}

// MockConfig 模拟后端配置
type MockConfig struct {
	Latency map[Op]time.Duration `yaml:"latency" json:"latency"`
	Faults  Faults               `yaml:"faults" json:"faults"`
}

// DefaultLatency 模拟的网络延迟
func DefaultLatency() map[Op]time.Duration {
	return map[Op]time.Duration{
		OpFetchProducts:    800 * time.Millisecond,
		OpValidateAddress:  1200 * time.Millisecond,
		OpProcessPayment:   2 * time.Second,
		OpSaveOrder:        time.Second,
		OpSendConfirmation: 500 * time.Millisecond,
		OpUpdateInventory:  300 * time.Millisecond,
	}
}

type stockItem struct {
	product Product
	stock   int
}

// Mock 内存模拟后端
type Mock struct {
	clock clockwork.Clock
	log   *logger.Logger

	mu        sync.Mutex
	latency   map[Op]time.Duration
	faults    Faults
	rng       *rand.Rand
	inventory []*stockItem
	orders    []Order
	calls     map[Op]int
}

// MockOption 模拟后端选项
type MockOption func(*Mock)

func WithClock(c clockwork.Clock) MockOption {
	return func(m *Mock) { m.clock = c }
}

func WithLogger(l *logger.Logger) MockOption {
	return func(m *Mock) { m.log = l }
}

// NewMock 创建模拟后端，库存为四件固定商品
func NewMock(cfg MockConfig, opts ...MockOption) *Mock {
	m := &Mock{
		clock: clockwork.NewRealClock(),
		log:   logger.Default(),
		calls: make(map[Op]int),
		inventory: []*stockItem{
			{product: Product{ID: 1, Name: "Duct Tape", Price: 12.99}, stock: 50},
			{product: Product{ID: 2, Name: "Rope", Price: 8.50}, stock: 25},
			{product: Product{ID: 3, Name: "Flashlight", Price: 24.99}, stock: 15},
			{product: Product{ID: 4, Name: "Multi-tool", Price: 45.00}, stock: 8},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Configure(cfg)
	return m
}

// Configure 更新延迟和故障参数，配置热加载时调用
func (m *Mock) Configure(cfg MockConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = cfg.Latency
	m.faults = cfg.Faults
	m.rng = rand.New(rand.NewSource(cfg.Faults.Seed))
}

// SetFault 打开或关闭某个操作的故障
func (m *Mock) SetFault(op Op, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faults.Fail == nil {
		m.faults.Fail = make(map[Op]bool)
	}
	m.faults.Fail[op] = fail
}

// Calls 返回操作被调用的次数
func (m *Mock) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Stock 返回商品库存
func (m *Mock) Stock(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.inventory {
		if it.product.ID == id {
			return it.stock
		}
	}
	return 0
}

// Orders 返回已保存的订单
func (m *Mock) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Order(nil), m.orders...)
}

// begin 记录调用、模拟延迟并决定是否注入故障
func (m *Mock) begin(ctx context.Context, op Op) error {
	m.mu.Lock()
	m.calls[op]++
	d := m.latency[op]
	fail := m.faults.Fail[op]
	if !fail {
		if rate := m.faults.Rate[op]; rate > 0 {
			fail = m.rng.Float64() < rate
		}
	}
	m.mu.Unlock()

	if d > 0 {
		select {
		case <-m.clock.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		m.log.Debug("注入故障", logger.String("op", string(op)))
		return faultErrors[op]
	}
	return nil
}

func (m *Mock) FetchProducts(ctx context.Context) (Catalog, error) {
	if err := m.begin(ctx, OpFetchProducts); err != nil {
		return Catalog{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	products := make([]Product, 0, len(m.inventory))
	for _, it := range m.inventory {
		p := it.product
		p.Available = it.stock > 0
		products = append(products, p)
	}
	return Catalog{Products: products, Timestamp: m.clock.Now()}, nil
}

func (m *Mock) ValidateAddress(ctx context.Context, addr Address) (ValidatedAddress, error) {
	if err := m.begin(ctx, OpValidateAddress); err != nil {
		return ValidatedAddress{}, err
	}
	if strings.HasPrefix(addr.Zip, "00000") {
		return ValidatedAddress{}, ErrZipNotServiceable
	}

	normalized := addr
	normalized.StreetAddress1 = strings.ToUpper(addr.StreetAddress1)
	normalized.City = strings.ToUpper(addr.City)
	return ValidatedAddress{
		IsValid:           true,
		NormalizedAddress: normalized,
		EstimatedDelivery: m.clock.Now().Add(3 * 24 * time.Hour),
	}, nil
}

func (m *Mock) ProcessPayment(ctx context.Context, card Card, amount float64) (Transaction, error) {
	if err := m.begin(ctx, OpProcessPayment); err != nil {
		return Transaction{}, err
	}
	if strings.Contains(card.CardNumber, "0000") {
		return Transaction{}, ErrCardDeclined
	}
	return Transaction{
		TransactionID: "txn_" + uuid.NewString(),
		Amount:        amount,
		Status:        "completed",
		Timestamp:     m.clock.Now(),
	}, nil
}

func (m *Mock) SaveOrder(ctx context.Context, data OrderData) (Order, error) {
	if err := m.begin(ctx, OpSaveOrder); err != nil {
		return Order{}, err
	}

	order := Order{
		ID:        "order_" + uuid.NewString(),
		OrderData: data,
		Status:    "confirmed",
		CreatedAt: m.clock.Now(),
	}
	m.mu.Lock()
	m.orders = append(m.orders, order)
	m.mu.Unlock()
	return order, nil
}

func (m *Mock) SendConfirmation(ctx context.Context, order Order, email string) (Confirmation, error) {
	if err := m.begin(ctx, OpSendConfirmation); err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		EmailSent:          true,
		ConfirmationNumber: "conf_" + uuid.NewString(),
		SentTo:             email,
		Timestamp:          m.clock.Now(),
	}, nil
}

func (m *Mock) UpdateInventory(ctx context.Context, items []Item) (InventoryResult, error) {
	if err := m.begin(ctx, OpUpdateInventory); err != nil {
		return InventoryResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		q := item.Quantity
		if q <= 0 {
			q = 1
		}
		for _, it := range m.inventory {
			if it.product.ID == item.ID {
				it.stock = max(0, it.stock-q)
			}
		}
	}
	return InventoryResult{Updated: true, Timestamp: m.clock.Now()}, nil
}
