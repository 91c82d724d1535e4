package checkout

import (
	"github.com/junbin-yang/go-checkoutflow/internal/backend"
	"github.com/junbin-yang/go-checkoutflow/pkg/statemachine"
)

// 主流程事件
const (
	EventAddItem           statemachine.EventType = "ADD_ITEM"
	EventRemoveItem        statemachine.EventType = "REMOVE_ITEM"
	EventProceedToShipping statemachine.EventType = "PROCEED_TO_SHIPPING"
	EventSubmitShipping    statemachine.EventType = "SUBMIT_SHIPPING"
	EventBackToCart        statemachine.EventType = "BACK_TO_CART"
	EventSubmitPayment     statemachine.EventType = "SUBMIT_PAYMENT"
	EventBackToShipping    statemachine.EventType = "BACK_TO_SHIPPING"
	EventSubmitBilling     statemachine.EventType = "SUBMIT_BILLING"
	EventBackToPayment     statemachine.EventType = "BACK_TO_PAYMENT"
	EventSubmitOrder       statemachine.EventType = "SUBMIT_ORDER"
	EventEditShipping      statemachine.EventType = "EDIT_SHIPPING"
	EventEditPayment       statemachine.EventType = "EDIT_PAYMENT"
	EventEditBilling       statemachine.EventType = "EDIT_BILLING"
	EventRetryPayment      statemachine.EventType = "RETRY_PAYMENT"
	EventCancelOrder       statemachine.EventType = "CANCEL_ORDER"
	EventRetryFulfillment  statemachine.EventType = "RETRY_FULFILLMENT"
	EventContactSupport    statemachine.EventType = "CONTACT_SUPPORT"
	EventStartNewOrder     statemachine.EventType = "START_NEW_ORDER"
	EventRetry             statemachine.EventType = "RETRY"
	EventReset             statemachine.EventType = "RESET"
	EventResetSession      statemachine.EventType = "RESET_SESSION"
)

// 子流程事件；RETRY 和 CANCEL 在支付进行中由主流程转发给支付子流程
const (
	EventProcessPayment statemachine.EventType = "PROCESS_PAYMENT"
	EventCancel         statemachine.EventType = "CANCEL"
	EventFulfillOrder   statemachine.EventType = "FULFILL_ORDER"
)

// 支付子流程通知主流程的事件
const (
	EventPaymentProcessing statemachine.EventType = "PAYMENT_PROCESSING"
	EventPaymentDeclined   statemachine.EventType = "PAYMENT_DECLINED"
)

func AddItem(item backend.Item) statemachine.Event {
	return statemachine.NewEvent(EventAddItem, item)
}

func RemoveItem(id int) statemachine.Event {
	return statemachine.NewEvent(EventRemoveItem, id)
}

func SubmitShipping(addr backend.Address) statemachine.Event {
	return statemachine.NewEvent(EventSubmitShipping, addr)
}

func SubmitPayment(card backend.Card) statemachine.Event {
	return statemachine.NewEvent(EventSubmitPayment, card)
}

func SubmitBilling(addr backend.Address) statemachine.Event {
	return statemachine.NewEvent(EventSubmitBilling, addr)
}

// Signal 不带数据的事件
func Signal(t statemachine.EventType) statemachine.Event {
	return statemachine.NewEvent(t, nil)
}
