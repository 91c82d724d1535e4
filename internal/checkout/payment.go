package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/junbin-yang/go-checkoutflow/internal/backend"
	"github.com/junbin-yang/go-checkoutflow/pkg/statemachine"
)

// 支付子流程状态
const (
	PaymentIdle              statemachine.StateID = "idle"
	PaymentValidating        statemachine.StateID = "validating"
	PaymentProcessing        statemachine.StateID = "processing"
	PaymentSuccess           statemachine.StateID = "success"
	PaymentFailed            statemachine.StateID = "failed"
	PaymentMaxRetriesReached statemachine.StateID = "maxRetriesReached"
	PaymentCancelled         statemachine.StateID = "cancelled"
)

const (
	ErrMsgMaxRetries       = "Maximum retry attempts reached"
	ErrMsgPaymentCancelled = "Payment cancelled by user"
)

type chargeInput struct {
	Card   backend.Card
	Amount float64
}

// NewPaymentDefinition 构建支付子流程：
// idle -> validating -> processing -> success | failed；
// failed 收到 RETRY 时未超过重试上限回到 processing，否则进入 maxRetriesReached；收到 CANCEL 进入 cancelled
func NewPaymentDefinition(b backend.Backend, policy Policy) (*statemachine.Definition[PaymentContext], error) {
	policy = policy.withDefaults()

	reg := statemachine.NewRegistry[PaymentContext]().
		Action("acceptPayment", acceptPayment).
		Action("clearError", func(c PaymentContext, _ statemachine.Event) PaymentContext {
			c.Error = ""
			return c
		}).
		Action("assignTransaction", func(c PaymentContext, ev statemachine.Event) PaymentContext {
			if txn, ok := statemachine.Payload[backend.Transaction](ev); ok {
				c.TransactionResult = &txn
			}
			c.Error = ""
			return c
		}).
		Action("recordFailure", func(c PaymentContext, ev statemachine.Event) PaymentContext {
			c.Error = ev.Error
			c.RetryCount++
			return c
		}).
		Guard("canRetry", func(c PaymentContext, _ statemachine.Event) bool {
			return c.RetryCount < policy.MaxRetries
		}).
		Service("chargeCard", func(ctx context.Context, input any) (any, error) {
			in, ok := input.(chargeInput)
			if !ok {
				return nil, fmt.Errorf("chargeCard: unexpected input %T", input)
			}
			return b.ProcessPayment(ctx, in.Card, in.Amount)
		})

	root := &statemachine.StateConfig[PaymentContext]{ID: "paymentProcessor", Initial: PaymentIdle}

	root.State(PaymentIdle).
		Transition(EventProcessPayment, statemachine.TransitionConfig{Target: PaymentValidating, Actions: []string{"acceptPayment"}})

	validating := root.State(PaymentValidating)
	validating.After = []statemachine.DelayConfig{{
		Delay:       policy.PaymentValidationDelay,
		Transitions: []statemachine.TransitionConfig{{Target: PaymentProcessing, Actions: []string{"clearError"}}},
	}}

	processing := root.State(PaymentProcessing)
	processing.NotifyParent = []statemachine.EventType{EventPaymentProcessing}
	processing.Invoke = &statemachine.InvokeConfig[PaymentContext]{
		Src: "chargeCard",
		Input: func(c PaymentContext) any {
			in := chargeInput{Amount: c.OrderTotal}
			if c.PaymentData != nil {
				in.Card = *c.PaymentData
			}
			return in
		},
		OnDone:  []statemachine.TransitionConfig{{Target: PaymentSuccess, Actions: []string{"assignTransaction"}}},
		OnError: []statemachine.TransitionConfig{{Target: PaymentFailed, Actions: []string{"recordFailure"}}},
	}

	success := root.State(PaymentSuccess)
	success.Terminal = true
	success.Output = func(c PaymentContext) statemachine.Output {
		return statemachine.Output{Success: true, Data: PaymentResult{TransactionResult: c.TransactionResult}}
	}

	failed := root.State(PaymentFailed)
	failed.NotifyParent = []statemachine.EventType{EventPaymentDeclined}
	failed.
		Transition(EventRetry,
			statemachine.TransitionConfig{Guard: "canRetry", Target: PaymentProcessing},
			statemachine.TransitionConfig{Target: PaymentMaxRetriesReached},
		).
		Goto(EventCancel, PaymentCancelled)

	maxed := root.State(PaymentMaxRetriesReached)
	maxed.Terminal = true
	maxed.Output = func(c PaymentContext) statemachine.Output {
		return statemachine.Output{Error: ErrMsgMaxRetries, Data: PaymentResult{OriginalError: c.Error}}
	}

	cancelled := root.State(PaymentCancelled)
	cancelled.Terminal = true
	cancelled.Output = func(PaymentContext) statemachine.Output {
		return statemachine.Output{Error: ErrMsgPaymentCancelled}
	}

	return statemachine.NewDefinition("paymentProcessor", PaymentContext{}, root, reg)
}

// acceptPayment 父流程已通过输入投影传入卡和金额，事件携带 PaymentRequest 时以事件为准
func acceptPayment(c PaymentContext, ev statemachine.Event) PaymentContext {
	if req, ok := statemachine.Payload[PaymentRequest](ev); ok {
		c.PaymentData = req.PaymentData
		c.OrderTotal = req.OrderTotal
	}
	c.Error = ""
	return c
}

// Policy 重试和延时策略
type Policy struct {
	MaxRetries             int           `yaml:"max_retries" json:"max_retries" env:"CHECKOUT_MAX_RETRIES"`
	PaymentValidationDelay time.Duration `yaml:"payment_validation_delay" json:"payment_validation_delay"`
	CompletionResetDelay   time.Duration `yaml:"completion_reset_delay" json:"completion_reset_delay"`
}

// DefaultPolicy 默认策略：最多重试 3 次，支付校验 500ms，完成页 10s 后回到选购
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:             3,
		PaymentValidationDelay: 500 * time.Millisecond,
		CompletionResetDelay:   10 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.PaymentValidationDelay <= 0 {
		p.PaymentValidationDelay = def.PaymentValidationDelay
	}
	if p.CompletionResetDelay <= 0 {
		p.CompletionResetDelay = def.CompletionResetDelay
	}
	return p
}
