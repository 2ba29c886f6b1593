package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
// 接口契约测试
// ============================================================================

// TestBus_ImplementsInterface 验证 Bus 实现接口
func TestBus_ImplementsInterface(t *testing.T) {
	var _ pkgif.EventBus = (*Bus)(nil)
}

// ============================================================================
// 基础功能测试
// ============================================================================

// TestBus_SubscribeEmit 测试订阅与发射
func TestBus_SubscribeEmit(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(types.EvtPoolReset))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(types.EvtPoolReset))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(&types.EvtPoolReset{Reason: "manual"}))

	select {
	case raw := <-sub.Out():
		evt, ok := raw.(*types.EvtPoolReset)
		require.True(t, ok)
		assert.Equal(t, "manual", evt.Reason)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

// TestBus_SubscribeNonPointer 非指针类型订阅报错
func TestBus_SubscribeNonPointer(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(types.EvtPoolReset{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	_, err = bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)
}

// TestBus_EmitWrongType 发射类型不匹配报错
func TestBus_EmitWrongType(t *testing.T) {
	bus := NewBus()

	em, err := bus.Emitter(new(types.EvtPoolReset))
	require.NoError(t, err)
	defer em.Close()

	assert.ErrorIs(t, em.Emit(&types.EvtRelayReady{}), ErrInvalidEventType)
}

// TestBus_MultipleSubscribers 多订阅者都收到事件
func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()

	sub1, err := bus.Subscribe(new(types.EvtRelayReady))
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := bus.Subscribe(new(types.EvtRelayReady))
	require.NoError(t, err)
	defer sub2.Close()

	em, err := bus.Emitter(new(types.EvtRelayReady))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(&types.EvtRelayReady{URL: "wss://relay.test"}))

	for _, sub := range []pkgif.Subscription{sub1, sub2} {
		select {
		case raw := <-sub.Out():
			assert.Equal(t, "wss://relay.test", raw.(*types.EvtRelayReady).URL)
		case <-time.After(time.Second):
			t.Fatal("event not delivered to all subscribers")
		}
	}
}

// TestBus_SlowConsumerDoesNotBlock 慢消费者不会阻塞发射
func TestBus_SlowConsumerDoesNotBlock(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(new(types.EvtPoolReset), pkgif.BufSize(1))
	require.NoError(t, err)

	em, err := bus.Emitter(new(types.EvtPoolReset))
	require.NoError(t, err)
	defer em.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = em.Emit(&types.EvtPoolReset{Reason: "burst"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on slow consumer")
	}
}

// TestSubscription_CloseIdempotent 订阅可重复关闭
func TestSubscription_CloseIdempotent(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(types.EvtPoolReset))
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}

// TestEmitter_EmitAfterClose 关闭后的发射器报错
func TestEmitter_EmitAfterClose(t *testing.T) {
	bus := NewBus()

	em, err := bus.Emitter(new(types.EvtPoolReset))
	require.NoError(t, err)
	require.NoError(t, em.Close())

	assert.ErrorIs(t, em.Emit(&types.EvtPoolReset{}), ErrEmitterClosed)
}
