package checkout

import (
	"github.com/junbin-yang/go-checkoutflow/internal/backend"
	"github.com/junbin-yang/go-checkoutflow/pkg/statemachine"
)

type shopAction = statemachine.Action[ShopContext]

// shopRegistry 主流程的动作和守卫
// 动作只替换自己负责的字段，切片先复制再修改
func shopRegistry() *statemachine.Registry[ShopContext] {
	reg := statemachine.NewRegistry[ShopContext]()
	for name, fn := range map[string]shopAction{
		"setLoading":              setLoading,
		"clearLoading":            clearLoading,
		"calculateTotal":          calculateTotal,
		"assignProducts":          assignProducts,
		"assignLoadError":         assignLoadError,
		"addItem":                 addItem,
		"removeItem":              removeItem,
		"assignShipping":          assignShipping,
		"assignValidatedShipping": assignValidatedShipping,
		"assignError":             assignError,
		"assignCard":              assignCard,
		"assignBilling":           assignBilling,
		"assignPaymentResult":     assignPaymentResult,
		"assignPaymentError":      assignPaymentError,
		"showPaymentDeclined":     showPaymentDeclined,
		"showPaymentProcessing":   showPaymentProcessing,
		"clearPayment":            clearPayment,
		"assignOrderResult":       assignOrderResult,
		"assignFulfillmentError":  assignFulfillmentError,
		"resetOrder":              resetOrder,
		"resetCatalog":            resetCatalog,
		"resetSession":            resetSession,
	} {
		reg.Action(name, fn)
	}
	reg.Guard("childSucceeded", func(_ ShopContext, ev statemachine.Event) bool {
		return ev.Output().Success
	})
	return reg
}

func setLoading(c ShopContext, _ statemachine.Event) ShopContext {
	c.IsLoading = true
	return c
}

func clearLoading(c ShopContext, _ statemachine.Event) ShopContext {
	c.IsLoading = false
	return c
}

func calculateTotal(c ShopContext, _ statemachine.Event) ShopContext {
	c.OrderTotal = orderTotal(c.SelectedItems)
	return c
}

// assignProducts 加载商品后默认选中前两件
func assignProducts(c ShopContext, ev statemachine.Event) ShopContext {
	cat, ok := statemachine.Payload[backend.Catalog](ev)
	if !ok {
		return c
	}
	c.Products = append([]backend.Product(nil), cat.Products...)
	c.SelectedItems = nil
	for i, p := range cat.Products {
		if i == 2 {
			break
		}
		c.SelectedItems = append(c.SelectedItems, backend.Item{ID: p.ID, Name: p.Name, Price: p.Price, Quantity: 1})
	}
	c.Error = ""
	return c
}

func assignLoadError(c ShopContext, ev statemachine.Event) ShopContext {
	c.Error = "Failed to load products: " + ev.Error
	return c
}

// addItem 已在购物车中的商品数量加一，否则以数量 1 加入
func addItem(c ShopContext, ev statemachine.Event) ShopContext {
	item, ok := statemachine.Payload[backend.Item](ev)
	if !ok {
		return c
	}
	items := make([]backend.Item, 0, len(c.SelectedItems)+1)
	found := false
	for _, it := range c.SelectedItems {
		if it.ID == item.ID {
			it.Quantity = max(it.Quantity, 1) + 1
			found = true
		}
		items = append(items, it)
	}
	if !found {
		item.Quantity = 1
		items = append(items, item)
	}
	c.SelectedItems = items
	return c
}

func removeItem(c ShopContext, ev statemachine.Event) ShopContext {
	id, ok := statemachine.Payload[int](ev)
	if !ok {
		return c
	}
	items := make([]backend.Item, 0, len(c.SelectedItems))
	for _, it := range c.SelectedItems {
		if it.ID != id {
			items = append(items, it)
		}
	}
	c.SelectedItems = items
	return c
}

func assignShipping(c ShopContext, ev statemachine.Event) ShopContext {
	if addr, ok := statemachine.Payload[backend.Address](ev); ok {
		c.ShippingData = &addr
	}
	return c
}

func assignValidatedShipping(c ShopContext, ev statemachine.Event) ShopContext {
	if v, ok := statemachine.Payload[backend.ValidatedAddress](ev); ok {
		c.ValidatedShipping = &v
	}
	c.Error = ""
	return c
}

func assignError(c ShopContext, ev statemachine.Event) ShopContext {
	c.Error = ev.Error
	return c
}

func assignCard(c ShopContext, ev statemachine.Event) ShopContext {
	if card, ok := statemachine.Payload[backend.Card](ev); ok {
		c.CreditCardData = &card
	}
	return c
}

func assignBilling(c ShopContext, ev statemachine.Event) ShopContext {
	if addr, ok := statemachine.Payload[backend.Address](ev); ok {
		c.BillingData = &addr
	}
	return c
}

func assignPaymentResult(c ShopContext, ev statemachine.Event) ShopContext {
	if res, ok := ev.Output().Data.(PaymentResult); ok {
		c.PaymentResult = &res
	}
	c.Error = ""
	return c
}

// assignPaymentError 子流程的失败输出原样写入 error
func assignPaymentError(c ShopContext, ev statemachine.Event) ShopContext {
	c.Error = failureMessage(ev)
	return c
}

// showPaymentDeclined 支付子流程等待重试或取消时，把失败原因展示出来并结束加载
func showPaymentDeclined(c ShopContext, ev statemachine.Event) ShopContext {
	if pc, ok := statemachine.Payload[PaymentContext](ev); ok {
		c.Error = pc.Error
	}
	c.IsLoading = false
	return c
}

// showPaymentProcessing 支付子流程重新扣款
func showPaymentProcessing(c ShopContext, _ statemachine.Event) ShopContext {
	c.Error = ""
	c.IsLoading = true
	return c
}

func clearPayment(c ShopContext, _ statemachine.Event) ShopContext {
	c.Error = ""
	c.PaymentResult = nil
	return c
}

func assignOrderResult(c ShopContext, ev statemachine.Event) ShopContext {
	if res, ok := ev.Output().Data.(FulfillmentResult); ok {
		c.OrderResult = &res
	}
	c.Error = ""
	return c
}

func assignFulfillmentError(c ShopContext, ev statemachine.Event) ShopContext {
	c.Error = "Order fulfillment failed: " + failureMessage(ev)
	return c
}

func resetOrder(c ShopContext, _ statemachine.Event) ShopContext {
	c.SelectedItems = nil
	c.ShippingData = nil
	c.CreditCardData = nil
	c.BillingData = nil
	c.ValidatedShipping = nil
	c.PaymentResult = nil
	c.OrderResult = nil
	c.OrderTotal = 0
	return c
}

func resetCatalog(c ShopContext, _ statemachine.Event) ShopContext {
	c.Error = ""
	c.Products = nil
	c.SelectedItems = nil
	return c
}

func resetSession(ShopContext, statemachine.Event) ShopContext {
	return ShopContext{}
}

// failureMessage 子流程失败输出或子流程启动失败的错误信息
func failureMessage(ev statemachine.Event) string {
	if ev.Kind == statemachine.KindError {
		return ev.Error
	}
	return ev.Output().Error
}
