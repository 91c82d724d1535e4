package backend

import (
	"context"
	"time"
)

// Product 商品目录条目
type Product struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
}

// Item 购物车条目
type Item struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Catalog 商品列表
type Catalog struct {
	Products  []Product `json:"products"`
	Timestamp time.Time `json:"timestamp"`
}

// Address 收货或账单地址
type Address struct {
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	StreetAddress1 string `json:"streetAddress1,omitempty"`
	StreetAddress2 string `json:"streetAddress2,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	Zip            string `json:"zip,omitempty"`
	Country        string `json:"country,omitempty"`
}

// ValidatedAddress 地址校验结果
type ValidatedAddress struct {
	IsValid           bool      `json:"isValid"`
	NormalizedAddress Address   `json:"normalizedAddress"`
	EstimatedDelivery time.Time `json:"estimatedDelivery"`
}

// Card 支付卡信息
type Card struct {
	CardNumber string `json:"cardNumber"`
	CardHolder string `json:"cardHolder,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	CVV        string `json:"cvv,omitempty"`
}

// Transaction 支付交易
type Transaction struct {
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// OrderData 待保存的订单内容
type OrderData struct {
	Items         []Item            `json:"items"`
	ShippingData  *ValidatedAddress `json:"shippingData,omitempty"`
	BillingData   *Address          `json:"billingData,omitempty"`
	PaymentResult *Transaction      `json:"paymentResult,omitempty"`
	Total         float64           `json:"total"`
}

// Order 已保存的订单
type Order struct {
	ID string `json:"id"`
	OrderData
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Confirmation 确认邮件发送结果
type Confirmation struct {
	EmailSent          bool      `json:"emailSent"`
	ConfirmationNumber string    `json:"confirmationNumber,omitempty"`
	SentTo             string    `json:"sentTo,omitempty"`
	Error              string    `json:"error,omitempty"`
	Timestamp          time.Time `json:"timestamp,omitempty"`
}

// InventoryResult 库存更新结果
type InventoryResult struct {
	Updated   bool      `json:"updated"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Backend 结账流程依赖的异步协作方
// 每个操作要么返回结果，要么返回带可读信息的错误
type Backend interface {
	FetchProducts(ctx context.Context) (Catalog, error)
	ValidateAddress(ctx context.Context, addr Address) (ValidatedAddress, error)
	ProcessPayment(ctx context.Context, card Card, amount float64) (Transaction, error)
	SaveOrder(ctx context.Context, order OrderData) (Order, error)
	SendConfirmation(ctx context.Context, order Order, email string) (Confirmation, error)
	UpdateInventory(ctx context.Context, items []Item) (InventoryResult, error)
}
