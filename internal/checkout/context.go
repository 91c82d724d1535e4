package checkout

import (
	"math"

	"github.com/junbin-yang/go-checkoutflow/internal/backend"
)

// ShopContext 购物车主流程的上下文
type ShopContext struct {
	Products          []backend.Product         `json:"products"`
	SelectedItems     []backend.Item            `json:"selectedItems"`
	ShippingData      *backend.Address          `json:"shippingData"`
	CreditCardData    *backend.Card             `json:"creditCardData"`
	BillingData       *backend.Address          `json:"billingData"`
	ValidatedShipping *backend.ValidatedAddress `json:"validatedShipping"`
	PaymentResult     *PaymentResult            `json:"paymentResult"`
	OrderResult       *FulfillmentResult        `json:"orderResult"`
	Error             string                    `json:"error"`
	IsLoading         bool                      `json:"isLoading"`
	OrderTotal        float64                   `json:"orderTotal"`
}

// PaymentContext 支付子流程的上下文
type PaymentContext struct {
	PaymentData       *backend.Card        `json:"paymentData"`
	OrderTotal        float64              `json:"orderTotal"`
	TransactionResult *backend.Transaction `json:"transactionResult"`
	Error             string               `json:"error"`
	RetryCount        int                  `json:"retryCount"`
}

// PaymentResult 支付子流程终止输出的数据部分
type PaymentResult struct {
	TransactionResult *backend.Transaction `json:"transactionResult,omitempty"`
	OriginalError     string               `json:"originalError,omitempty"`
}

// FulfillmentContext 履约子流程的上下文
type FulfillmentContext struct {
	OrderData          *backend.OrderData       `json:"orderData"`
	SavedOrder         *backend.Order           `json:"savedOrder"`
	ConfirmationResult *backend.Confirmation    `json:"confirmationResult"`
	InventoryResult    *backend.InventoryResult `json:"inventoryResult"`
	Error              string                   `json:"error"`
}

// FulfillmentResult 履约成功时的输出数据
// 邮件或库存步骤失败不影响订单，只标记 PartialFailure
type FulfillmentResult struct {
	Order          *backend.Order           `json:"order"`
	Confirmation   *backend.Confirmation    `json:"confirmation"`
	Inventory      *backend.InventoryResult `json:"inventory"`
	PartialFailure bool                     `json:"partialFailure"`
}

// PaymentRequest PROCESS_PAYMENT 事件的可选数据，覆盖父流程传入的卡和金额
type PaymentRequest struct {
	PaymentData *backend.Card
	OrderTotal  float64
}

// orderTotal 按单价和数量求和，保留两位小数
func orderTotal(items []backend.Item) float64 {
	var total float64
	for _, item := range items {
		q := item.Quantity
		if q <= 0 {
			q = 1
		}
		total += item.Price * float64(q)
	}
	return math.Round(total*100) / 100
}
