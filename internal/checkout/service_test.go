package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/go-checkoutflow/internal/backend"
	"github.com/junbin-yang/go-checkoutflow/pkg/logger"
	"github.com/junbin-yang/go-checkoutflow/pkg/statemachine"
	"github.com/junbin-yang/go-checkoutflow/pkg/storage"
)

func TestServiceResumesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backend.MockConfig{})
	store := storage.NewMemory()
	svc := NewService(h.defs, store, logger.Nop(), h.options()...)
	t.Cleanup(svc.Shutdown)

	m, resumed, err := svc.Open(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, "alice", m.ID())
	h.toReview(m, goodCard)

	same, _, err := svc.Open(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, m, same, "运行中的会话直接返回")

	require.NoError(t, svc.Close(ctx, "alice", false))
	_, err = svc.Snapshot("alice")
	assert.ErrorIs(t, err, statemachine.ErrSessionNotFound)

	m, resumed, err = svc.Open(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, resumed)
	snap := m.Snapshot()
	assert.Equal(t, StateOrderReview, snap.Value)
	require.NotNil(t, snap.Context.CreditCardData)
	assert.Equal(t, goodCard.CardNumber, snap.Context.CreditCardData.CardNumber)
	assert.Equal(t, 21.49, snap.Context.OrderTotal)
	assert.Equal(t, 1, h.mock.Calls(backend.OpFetchProducts), "恢复不重新执行进入动作和已完成的调用")

	require.NoError(t, svc.Send("alice", Signal(EventEditShipping)))
	waitState(t, m, StateShippingAddress)

	require.NoError(t, svc.Close(ctx, "alice", true))
	ok, err := store.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "forget 删除快照")
}

func TestServiceResumeRearmsInvocation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backend.MockConfig{Faults: backend.Faults{Fail: map[backend.Op]bool{backend.OpFetchProducts: true}}})
	store := storage.NewMemory()

	persister := statemachine.NewStoragePersister(store)
	persister.Persist(statemachine.Record{Machine: ShopMachineID, Instance: "bob", Value: StateLoadingProducts, Context: []byte(`{"isLoading":true}`)})

	svc := NewService(h.defs, store, logger.Nop(), h.options()...)
	t.Cleanup(svc.Shutdown)

	m, resumed, err := svc.Open(ctx, "bob")
	require.NoError(t, err)
	require.True(t, resumed)

	// 恢复到加载状态时重新发起商品加载
	got := waitState(t, m, StateErrorState)
	assert.Equal(t, "Failed to load products: Failed to fetch products from server", got.Context.Error)
	assert.False(t, got.Context.IsLoading)
	assert.Equal(t, 1, h.mock.Calls(backend.OpFetchProducts))
}

func TestServiceUnknownSession(t *testing.T) {
	h := newHarness(t, backend.MockConfig{})
	svc := NewService(h.defs, storage.NewMemory(), logger.Nop(), h.options()...)
	t.Cleanup(svc.Shutdown)

	assert.ErrorIs(t, svc.Send("nobody", Signal(EventRetry)), statemachine.ErrSessionNotFound)
	assert.ErrorIs(t, svc.Close(context.Background(), "nobody", true), statemachine.ErrSessionNotFound)
}
