package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/delegation"
	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

const appPubkey = "f7234bd4c1394dda46d09f35bd384d6730d463a3e7652d34df12da12d1abeab1"

func newTestGate(t *testing.T) (*Gate, *delegation.Store, *clock.Mock) {
	t.Helper()
	engine, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	mock := clock.NewMock()
	store := delegation.NewStore(engine, config.TokenConfig{DefaultTTL: time.Hour}, mock)
	gate, err := NewGate(config.GateConfig{
		ApprovalTimeout:   time.Minute,
		DecisionCacheSize: 64,
	}, store, mock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })
	return gate, store, mock
}

// redeemPolicy 建立一条经令牌兑换物化的授权关系
func redeemPolicy(t *testing.T, store *delegation.Store, trust types.TrustLevel, rules []types.PolicyRule) *types.KeyUser {
	t.Helper()
	policy, err := store.CreatePolicy(types.Policy{Name: "test", Trust: trust, Rules: rules})
	require.NoError(t, err)
	rec, err := store.CreateToken("home", policy.ID, time.Hour)
	require.NoError(t, err)
	ku, err := store.ApplyToken(context.Background(), appPubkey, rec.Token)
	require.NoError(t, err)
	return ku
}

// ============================================================================
// ACL 快路径测试
// ============================================================================

// TestGate_ImplementsInterface 验证 Gate 实现接口
func TestGate_ImplementsInterface(t *testing.T) {
	var _ pkgif.AuthorizationGate = (*Gate)(nil)
}

// TestGate_UnknownAppNoDecision 没有授权关系时无决策
func TestGate_UnknownAppNoDecision(t *testing.T) {
	gate, _, _ := newTestGate(t)

	allowed, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodSignEvent, "1")
	assert.False(t, allowed)
	assert.False(t, ok)
}

// TestGate_RevokedAppDenied 吊销的授权关系是明确拒绝
func TestGate_RevokedAppDenied(t *testing.T) {
	gate, store, _ := newTestGate(t)
	redeemPolicy(t, store, types.TrustFull, nil)
	require.NoError(t, store.RevokeKeyUser("home", appPubkey))

	allowed, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodSignEvent, "1")
	assert.False(t, allowed)
	assert.True(t, ok, "revocation must be a firm decision, not a prompt")
}

// TestGate_TrustFullAllowsEverything 完全信任放行全部方法
func TestGate_TrustFullAllowsEverything(t *testing.T) {
	gate, store, _ := newTestGate(t)
	redeemPolicy(t, store, types.TrustFull, nil)

	for _, m := range types.Methods() {
		allowed, ok := gate.IsRequestPermitted("home", appPubkey, m, "1")
		assert.True(t, allowed, m.String())
		assert.True(t, ok, m.String())
	}
}

// TestGate_TrustReasonableReadOps 合理信任只自动放行读操作
func TestGate_TrustReasonableReadOps(t *testing.T) {
	gate, store, _ := newTestGate(t)
	redeemPolicy(t, store, types.TrustReasonable, nil)

	allowed, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodGetPublicKey, "")
	assert.True(t, allowed)
	assert.True(t, ok)

	allowed, ok = gate.IsRequestPermitted("home", appPubkey, types.MethodNIP44Decrypt, "x")
	assert.False(t, allowed)
	assert.False(t, ok)
}

// TestGate_MaterializedKindRestriction 方法授权的事件种类限定生效
func TestGate_MaterializedKindRestriction(t *testing.T) {
	gate, store, _ := newTestGate(t)
	redeemPolicy(t, store, types.TrustParanoid, []types.PolicyRule{
		{Method: "sign_event", Kinds: []int{1}},
	})

	allowed, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodSignEvent, "1")
	assert.True(t, allowed)
	assert.True(t, ok)

	// 未覆盖的种类交给管理端裁决，而不是直接拒绝
	allowed, ok = gate.IsRequestPermitted("home", appPubkey, types.MethodSignEvent, "30023")
	assert.False(t, allowed)
	assert.False(t, ok)
}

// TestGate_MaterializedDenyIsFirm 物化的拒绝是明确决策，不进审批
func TestGate_MaterializedDenyIsFirm(t *testing.T) {
	gate, store, _ := newTestGate(t)
	ku, err := store.UpsertKeyUser("home", appPubkey, types.TrustParanoid)
	require.NoError(t, err)
	require.NoError(t, store.GrantPermission(ku.ID, "sign_event", nil, false))

	allowed, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodSignEvent, "1")
	assert.False(t, allowed)
	assert.True(t, ok)
}

// ============================================================================
// 交互审批测试
// ============================================================================

// TestGate_ApproveFlow 批准后请求放行且决策被记住
func TestGate_ApproveFlow(t *testing.T) {
	gate, store, _ := newTestGate(t)

	done := make(chan error, 1)
	go func() {
		done <- gate.RequestAuthorization(context.Background(), "req-1", "home", appPubkey, types.MethodSignEvent, "1")
	}()

	require.Eventually(t, func() bool { return len(gate.Pending()) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, gate.Approve("req-1"))
	require.NoError(t, <-done)

	// 决策已缓存
	allowed, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodSignEvent, "1")
	assert.True(t, allowed)
	assert.True(t, ok)

	// 授权已物化落库
	ku, err := store.GetKeyUser("home", appPubkey)
	require.NoError(t, err)
	perm, err := store.GetPermission(ku.ID, "sign_event")
	require.NoError(t, err)
	require.NotNil(t, perm)
	assert.True(t, perm.Allow)
	assert.Equal(t, []int{1}, perm.Kinds)
}

// TestGate_DenyFlow 拒绝返回明确错误且被记住
func TestGate_DenyFlow(t *testing.T) {
	gate, _, _ := newTestGate(t)

	done := make(chan error, 1)
	go func() {
		done <- gate.RequestAuthorization(context.Background(), "req-2", "home", appPubkey, types.MethodSignEvent, "1")
	}()

	require.Eventually(t, func() bool { return len(gate.Pending()) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, gate.Deny("req-2"))
	assert.ErrorIs(t, <-done, ErrAuthorizationDenied)

	allowed, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodSignEvent, "1")
	assert.False(t, allowed)
	assert.True(t, ok)
}

// TestGate_ApprovalTimeout 限时未裁决返回超时
func TestGate_ApprovalTimeout(t *testing.T) {
	gate, _, mock := newTestGate(t)

	done := make(chan error, 1)
	go func() {
		done <- gate.RequestAuthorization(context.Background(), "req-3", "home", appPubkey, types.MethodPing, "")
	}()

	require.Eventually(t, func() bool { return len(gate.Pending()) == 1 }, time.Second, 10*time.Millisecond)
	mock.Add(time.Minute)
	assert.ErrorIs(t, <-done, ErrApprovalTimeout)

	// 超时不留决策
	_, ok := gate.IsRequestPermitted("home", appPubkey, types.MethodPing, "")
	assert.False(t, ok)
}

// TestGate_ContextCancel 调用方取消即放弃等待
func TestGate_ContextCancel(t *testing.T) {
	gate, _, _ := newTestGate(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gate.RequestAuthorization(ctx, "req-4", "home", appPubkey, types.MethodPing, "")
	}()

	require.Eventually(t, func() bool { return len(gate.Pending()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// TestGate_ResolveUnknown 未知审批 id 报错
func TestGate_ResolveUnknown(t *testing.T) {
	gate, _, _ := newTestGate(t)

	assert.ErrorIs(t, gate.Approve("nope"), ErrApprovalNotFound)
	assert.ErrorIs(t, gate.Deny("nope"), ErrApprovalNotFound)
}
