package checkout

import (
	"context"
	"fmt"

	"github.com/junbin-yang/go-checkoutflow/internal/backend"
	"github.com/junbin-yang/go-checkoutflow/pkg/statemachine"
)

// 履约子流程状态
const (
	FulfillmentIdle                statemachine.StateID = "idle"
	FulfillmentSavingOrder         statemachine.StateID = "savingOrder"
	FulfillmentSendingConfirmation statemachine.StateID = "sendingConfirmation"
	FulfillmentUpdatingInventory   statemachine.StateID = "updatingInventory"
	FulfillmentCompleted           statemachine.StateID = "completed"
	FulfillmentFailed              statemachine.StateID = "failed"
)

const defaultCustomerEmail = "customer@example.com"

type confirmationInput struct {
	Order backend.Order
	Email string
}

// NewFulfillmentDefinition 构建履约子流程：保存订单 -> 发送确认邮件 -> 更新库存
// 保存订单失败是关键失败；邮件和库存失败只记录在结果中，流程继续
func NewFulfillmentDefinition(b backend.Backend) (*statemachine.Definition[FulfillmentContext], error) {
	reg := statemachine.NewRegistry[FulfillmentContext]().
		Action("acceptOrder", func(c FulfillmentContext, ev statemachine.Event) FulfillmentContext {
			if data, ok := statemachine.Payload[backend.OrderData](ev); ok {
				c.OrderData = &data
			}
			c.Error = ""
			return c
		}).
		Action("assignSavedOrder", func(c FulfillmentContext, ev statemachine.Event) FulfillmentContext {
			if order, ok := statemachine.Payload[backend.Order](ev); ok {
				c.SavedOrder = &order
			}
			return c
		}).
		Action("assignSaveError", func(c FulfillmentContext, ev statemachine.Event) FulfillmentContext {
			c.Error = "Failed to save order: " + ev.Error
			return c
		}).
		Action("assignConfirmation", func(c FulfillmentContext, ev statemachine.Event) FulfillmentContext {
			if conf, ok := statemachine.Payload[backend.Confirmation](ev); ok {
				c.ConfirmationResult = &conf
			}
			return c
		}).
		Action("markEmailFailed", func(c FulfillmentContext, _ statemachine.Event) FulfillmentContext {
			c.ConfirmationResult = &backend.Confirmation{EmailSent: false, Error: "Email failed"}
			return c
		}).
		Action("assignInventory", func(c FulfillmentContext, ev statemachine.Event) FulfillmentContext {
			if inv, ok := statemachine.Payload[backend.InventoryResult](ev); ok {
				c.InventoryResult = &inv
			}
			return c
		}).
		Action("markInventoryFailed", func(c FulfillmentContext, _ statemachine.Event) FulfillmentContext {
			c.InventoryResult = &backend.InventoryResult{Updated: false, Error: "Inventory update failed"}
			return c
		}).
		Service("saveOrder", func(ctx context.Context, input any) (any, error) {
			data, ok := input.(backend.OrderData)
			if !ok {
				return nil, fmt.Errorf("saveOrder: unexpected input %T", input)
			}
			return b.SaveOrder(ctx, data)
		}).
		Service("sendConfirmation", func(ctx context.Context, input any) (any, error) {
			in, ok := input.(confirmationInput)
			if !ok {
				return nil, fmt.Errorf("sendConfirmation: unexpected input %T", input)
			}
			return b.SendConfirmation(ctx, in.Order, in.Email)
		}).
		Service("updateInventory", func(ctx context.Context, input any) (any, error) {
			items, _ := input.([]backend.Item)
			return b.UpdateInventory(ctx, items)
		})

	root := &statemachine.StateConfig[FulfillmentContext]{ID: "orderFulfillment", Initial: FulfillmentIdle}

	root.State(FulfillmentIdle).
		Transition(EventFulfillOrder, statemachine.TransitionConfig{Target: FulfillmentSavingOrder, Actions: []string{"acceptOrder"}})

	saving := root.State(FulfillmentSavingOrder)
	saving.Invoke = &statemachine.InvokeConfig[FulfillmentContext]{
		Src: "saveOrder",
		Input: func(c FulfillmentContext) any {
			if c.OrderData == nil {
				return backend.OrderData{}
			}
			return *c.OrderData
		},
		OnDone:  []statemachine.TransitionConfig{{Target: FulfillmentSendingConfirmation, Actions: []string{"assignSavedOrder"}}},
		OnError: []statemachine.TransitionConfig{{Target: FulfillmentFailed, Actions: []string{"assignSaveError"}}},
	}

	sending := root.State(FulfillmentSendingConfirmation)
	sending.Invoke = &statemachine.InvokeConfig[FulfillmentContext]{
		Src: "sendConfirmation",
		Input: func(c FulfillmentContext) any {
			in := confirmationInput{Email: defaultCustomerEmail}
			if c.SavedOrder != nil {
				in.Order = *c.SavedOrder
			}
			if c.OrderData != nil && c.OrderData.ShippingData != nil && c.OrderData.ShippingData.NormalizedAddress.Email != "" {
				in.Email = c.OrderData.ShippingData.NormalizedAddress.Email
			}
			return in
		},
		OnDone:  []statemachine.TransitionConfig{{Target: FulfillmentUpdatingInventory, Actions: []string{"assignConfirmation"}}},
		OnError: []statemachine.TransitionConfig{{Target: FulfillmentUpdatingInventory, Actions: []string{"markEmailFailed"}}},
	}

	updating := root.State(FulfillmentUpdatingInventory)
	updating.Invoke = &statemachine.InvokeConfig[FulfillmentContext]{
		Src: "updateInventory",
		Input: func(c FulfillmentContext) any {
			if c.OrderData == nil {
				return []backend.Item(nil)
			}
			return c.OrderData.Items
		},
		OnDone:  []statemachine.TransitionConfig{{Target: FulfillmentCompleted, Actions: []string{"assignInventory"}}},
		OnError: []statemachine.TransitionConfig{{Target: FulfillmentCompleted, Actions: []string{"markInventoryFailed"}}},
	}

	completed := root.State(FulfillmentCompleted)
	completed.Terminal = true
	completed.Output = func(c FulfillmentContext) statemachine.Output {
		partial := c.ConfirmationResult == nil || !c.ConfirmationResult.EmailSent ||
			c.InventoryResult == nil || !c.InventoryResult.Updated
		return statemachine.Output{Success: true, Data: FulfillmentResult{
			Order:          c.SavedOrder,
			Confirmation:   c.ConfirmationResult,
			Inventory:      c.InventoryResult,
			PartialFailure: partial,
		}}
	}

	failed := root.State(FulfillmentFailed)
	failed.Terminal = true
	failed.Output = func(c FulfillmentContext) statemachine.Output {
		return statemachine.Output{Error: c.Error}
	}

	return statemachine.NewDefinition("orderFulfillment", FulfillmentContext{}, root, reg)
}
