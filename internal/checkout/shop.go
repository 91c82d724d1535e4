package checkout

import (
	"context"
	"fmt"

	"github.com/junbin-yang/go-checkoutflow/internal/backend"
	"github.com/junbin-yang/go-checkoutflow/pkg/statemachine"
)

// 主流程状态
const (
	StateInitializing       statemachine.StateID = "initializing"
	StateLoadingProducts    statemachine.StateID = "loadingProducts"
	StateProductSelection   statemachine.StateID = "productSelection"
	StateCheckout           statemachine.StateID = "checkout"
	StateShippingAddress    statemachine.StateID = "shippingAddress"
	StateValidatingShipping statemachine.StateID = "validatingShipping"
	StateCreditCardDetails  statemachine.StateID = "creditCardDetails"
	StateBillingAddress     statemachine.StateID = "billingAddress"
	StateOrderReview        statemachine.StateID = "orderReview"
	StateProcessingPayment  statemachine.StateID = "processingPayment"
	StatePaymentFailed      statemachine.StateID = "paymentFailed"
	StateFulfillingOrder    statemachine.StateID = "fulfillingOrder"
	StateFulfillmentFailed  statemachine.StateID = "fulfillmentFailed"
	StateOrderComplete      statemachine.StateID = "orderComplete"
	StateErrorState         statemachine.StateID = "errorState"
	StateSupportContact     statemachine.StateID = "supportContact"
)

// ShopMachineID 主流程定义标识
const ShopMachineID = "shoppingCart"

// Definitions 主流程和两个子流程的定义
type Definitions struct {
	Shop        *statemachine.Definition[ShopContext]
	Payment     *statemachine.Definition[PaymentContext]
	Fulfillment *statemachine.Definition[FulfillmentContext]
}

// Build 以同一个后端构建全部定义
func Build(b backend.Backend, policy Policy) (*Definitions, error) {
	payment, err := NewPaymentDefinition(b, policy)
	if err != nil {
		return nil, err
	}
	fulfillment, err := NewFulfillmentDefinition(b)
	if err != nil {
		return nil, err
	}
	shop, err := NewShopDefinition(b, policy, payment, fulfillment)
	if err != nil {
		return nil, err
	}
	return &Definitions{Shop: shop, Payment: payment, Fulfillment: fulfillment}, nil
}

// NewShopDefinition 构建购物车主流程，支付和履约委托给子流程
func NewShopDefinition(
	b backend.Backend,
	policy Policy,
	payment *statemachine.Definition[PaymentContext],
	fulfillment *statemachine.Definition[FulfillmentContext],
) (*statemachine.Definition[ShopContext], error) {
	policy = policy.withDefaults()

	reg := shopRegistry().
		Service("fetchProducts", func(ctx context.Context, _ any) (any, error) {
			return b.FetchProducts(ctx)
		}).
		Service("validateAddress", func(ctx context.Context, input any) (any, error) {
			addr, ok := input.(backend.Address)
			if !ok {
				return nil, fmt.Errorf("validateAddress: unexpected input %T", input)
			}
			return b.ValidateAddress(ctx, addr)
		})

	root := &statemachine.StateConfig[ShopContext]{ID: ShopMachineID, Initial: StateInitializing}
	root.Transition(EventResetSession, statemachine.TransitionConfig{Target: StateInitializing, Actions: []string{"resetSession"}})

	initializing := root.State(StateInitializing)
	initializing.Always = []statemachine.TransitionConfig{{Target: StateLoadingProducts}}

	loading := root.State(StateLoadingProducts)
	loading.Entry = []string{"setLoading"}
	loading.Exit = []string{"clearLoading"}
	loading.Invoke = &statemachine.InvokeConfig[ShopContext]{
		Src:     "fetchProducts",
		OnDone:  []statemachine.TransitionConfig{{Target: StateProductSelection, Actions: []string{"assignProducts", "calculateTotal"}}},
		OnError: []statemachine.TransitionConfig{{Target: StateErrorState, Actions: []string{"assignLoadError"}}},
	}

	root.State(StateProductSelection).
		Transition(EventAddItem, statemachine.TransitionConfig{Actions: []string{"addItem", "calculateTotal"}}).
		Transition(EventRemoveItem, statemachine.TransitionConfig{Actions: []string{"removeItem", "calculateTotal"}}).
		Goto(EventProceedToShipping, StateShippingAddress)

	// 结账步骤放在复合状态下，BACK_TO_CART 对每一步都生效
	checkout := root.State(StateCheckout)
	checkout.Initial = StateShippingAddress
	checkout.Goto(EventBackToCart, StateProductSelection)

	checkout.State(StateShippingAddress).
		Transition(EventSubmitShipping, statemachine.TransitionConfig{Target: StateValidatingShipping, Actions: []string{"assignShipping"}})

	validating := checkout.State(StateValidatingShipping)
	validating.Entry = []string{"setLoading"}
	validating.Exit = []string{"clearLoading"}
	validating.Invoke = &statemachine.InvokeConfig[ShopContext]{
		Src: "validateAddress",
		Input: func(c ShopContext) any {
			if c.ShippingData == nil {
				return backend.Address{}
			}
			return *c.ShippingData
		},
		OnDone:  []statemachine.TransitionConfig{{Target: StateCreditCardDetails, Actions: []string{"assignValidatedShipping"}}},
		OnError: []statemachine.TransitionConfig{{Target: StateShippingAddress, Actions: []string{"assignError"}}},
	}

	checkout.State(StateCreditCardDetails).
		Transition(EventSubmitPayment, statemachine.TransitionConfig{Target: StateBillingAddress, Actions: []string{"assignCard"}}).
		Goto(EventBackToShipping, StateShippingAddress)

	checkout.State(StateBillingAddress).
		Transition(EventSubmitBilling, statemachine.TransitionConfig{Target: StateOrderReview, Actions: []string{"assignBilling"}}).
		Goto(EventBackToPayment, StateCreditCardDetails)

	checkout.State(StateOrderReview).
		Goto(EventSubmitOrder, StateProcessingPayment).
		Goto(EventEditShipping, StateShippingAddress).
		Goto(EventEditPayment, StateCreditCardDetails).
		Goto(EventEditBilling, StateBillingAddress)

	processing := root.State(StateProcessingPayment)
	processing.Entry = []string{"setLoading"}
	processing.Exit = []string{"clearLoading"}
	processing.Invoke = &statemachine.InvokeConfig[ShopContext]{
		Child: statemachine.SpawnChild(payment, paymentInput, Signal(EventProcessPayment)),
		OnDone: []statemachine.TransitionConfig{
			{Guard: "childSucceeded", Target: StateFulfillingOrder, Actions: []string{"assignPaymentResult"}},
			{Target: StatePaymentFailed, Actions: []string{"assignPaymentError"}},
		},
		OnError: []statemachine.TransitionConfig{{Target: StatePaymentFailed, Actions: []string{"assignPaymentError"}}},
		Forward: []statemachine.EventType{EventRetry, EventCancel},
		OnChild: map[statemachine.EventType][]statemachine.TransitionConfig{
			EventPaymentDeclined:   {{Actions: []string{"showPaymentDeclined"}}},
			EventPaymentProcessing: {{Actions: []string{"showPaymentProcessing"}}},
		},
	}

	root.State(StatePaymentFailed).
		Goto(EventRetryPayment, StateProcessingPayment).
		Goto(EventEditPayment, StateCreditCardDetails).
		Transition(EventCancelOrder, statemachine.TransitionConfig{Target: StateProductSelection, Actions: []string{"clearPayment"}})

	fulfilling := root.State(StateFulfillingOrder)
	fulfilling.Entry = []string{"setLoading"}
	fulfilling.Exit = []string{"clearLoading"}
	fulfilling.Invoke = &statemachine.InvokeConfig[ShopContext]{
		Child: statemachine.SpawnChild(fulfillment, fulfillmentInput, Signal(EventFulfillOrder)),
		OnDone: []statemachine.TransitionConfig{
			{Guard: "childSucceeded", Target: StateOrderComplete, Actions: []string{"assignOrderResult"}},
			{Target: StateFulfillmentFailed, Actions: []string{"assignFulfillmentError"}},
		},
		OnError: []statemachine.TransitionConfig{{Target: StateFulfillmentFailed, Actions: []string{"assignFulfillmentError"}}},
	}

	root.State(StateFulfillmentFailed).
		Goto(EventRetryFulfillment, StateFulfillingOrder).
		Goto(EventContactSupport, StateSupportContact)

	complete := root.State(StateOrderComplete)
	complete.After = []statemachine.DelayConfig{{
		Delay:       policy.CompletionResetDelay,
		Transitions: []statemachine.TransitionConfig{{Target: StateProductSelection, Actions: []string{"resetOrder"}}},
	}}
	complete.Transition(EventStartNewOrder, statemachine.TransitionConfig{Target: StateProductSelection, Actions: []string{"resetOrder"}})

	root.State(StateErrorState).
		Goto(EventRetry, StateLoadingProducts).
		Transition(EventReset, statemachine.TransitionConfig{Target: StateInitializing, Actions: []string{"resetCatalog"}})

	root.State(StateSupportContact).Terminal = true

	return statemachine.NewDefinition(ShopMachineID, ShopContext{}, root, reg)
}

// paymentInput 把卡和订单金额并入支付子流程的初始上下文
func paymentInput(p ShopContext, q PaymentContext) PaymentContext {
	q.PaymentData = p.CreditCardData
	q.OrderTotal = p.OrderTotal
	return q
}

// fulfillmentInput 由购物车内容组装订单
func fulfillmentInput(p ShopContext, q FulfillmentContext) FulfillmentContext {
	data := backend.OrderData{
		Items:        append([]backend.Item(nil), p.SelectedItems...),
		ShippingData: p.ValidatedShipping,
		BillingData:  p.BillingData,
		Total:        p.OrderTotal,
	}
	if p.PaymentResult != nil {
		data.PaymentResult = p.PaymentResult.TransactionResult
	}
	q.OrderData = &data
	return q
}
