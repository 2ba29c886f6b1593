package signer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/authgate"
	"github.com/dep2p/go-nostrsigner/internal/core/delegation"
	"github.com/dep2p/go-nostrsigner/internal/core/eventbus"
	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/crypto"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
// 测试桩
// ============================================================================

// fakeSubMgr 捕获订阅回调，测试直接注入事件
type fakeSubMgr struct {
	mu        sync.Mutex
	callbacks map[string]pkgif.EventCallback
}

func newFakeSubMgr() *fakeSubMgr {
	return &fakeSubMgr{callbacks: make(map[string]pkgif.EventCallback)}
}

func (f *fakeSubMgr) Subscribe(id string, _ types.Filter, onEvent pkgif.EventCallback, _ []string) (pkgif.CancelFunc, error) {
	f.mu.Lock()
	f.callbacks[id] = onEvent
	f.mu.Unlock()
	return func() { f.Unsubscribe(id) }, nil
}

func (f *fakeSubMgr) Unsubscribe(id string) {
	f.mu.Lock()
	delete(f.callbacks, id)
	f.mu.Unlock()
}

func (f *fakeSubMgr) Start() error { return nil }
func (f *fakeSubMgr) Stop() error  { return nil }

func (f *fakeSubMgr) inject(id string, ev *types.Event) {
	f.mu.Lock()
	cb := f.callbacks[id]
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// fakePool 收集发布的事件
type fakePool struct {
	published chan *types.Event
}

func newFakePool() *fakePool {
	return &fakePool{published: make(chan *types.Event, 8)}
}

func (f *fakePool) Subscribe(types.Filter, pkgif.EventCallback, string, pkgif.EOSECallback, []string) (pkgif.CancelFunc, error) {
	return func() {}, nil
}

func (f *fakePool) Publish(_ context.Context, ev *types.Event) error {
	f.published <- ev
	return nil
}

func (f *fakePool) EnsureLive(context.Context)     {}
func (f *fakePool) ReportHealthCheckSuccess()      {}
func (f *fakePool) ReportHealthCheckFailure() bool { return false }
func (f *fakePool) ResetPool(string)               {}
func (f *fakePool) Relays() []string               { return nil }

// ============================================================================
// 测试脚手架
// ============================================================================

type testRig struct {
	handler *Handler
	submgr  *fakeSubMgr
	pool    *fakePool
	store   *delegation.Store
	gate    *authgate.Gate
	app     *crypto.KeyPair
}

const connectSecret = "s3cret-handshake"

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	engine, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	store := delegation.NewStore(engine, config.TokenConfig{DefaultTTL: time.Hour}, mock)
	gate, err := authgate.NewGate(config.GateConfig{
		ApprovalTimeout:   time.Minute,
		DecisionCacheSize: 64,
	}, store, mock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	app, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	bus := eventbus.NewBus()
	submgr := newFakeSubMgr()
	pool := newFakePool()

	h, err := NewHandler(
		config.SignerConfig{AuthTimeout: time.Minute, ConversationCacheSize: 16},
		config.KeyConfig{Name: "home", ConnectSecret: connectSecret},
		kp, pool, submgr, gate, store, bus, mock,
	)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	t.Cleanup(func() { _ = h.Stop() })

	return &testRig{handler: h, submgr: submgr, pool: pool, store: store, gate: gate, app: app}
}

// request 构造应用侧的加密请求事件
func (r *testRig) request(t *testing.T, req *types.Request) *types.Event {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	conv, err := crypto.ConversationKey(r.app, r.handler.Pubkey())
	require.NoError(t, err)
	content, err := crypto.NIP44Encrypt(conv, payload)
	require.NoError(t, err)

	ev := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      types.KindNostrConnect,
		Tags:      [][]string{{"p", r.handler.Pubkey()}},
		Content:   content,
	}
	require.NoError(t, crypto.FinalizeEvent(r.app, ev))
	return ev
}

// send 注入请求事件
func (r *testRig) send(ev *types.Event) {
	r.submgr.inject(r.handler.SubscriptionID(), ev)
}

// awaitResponse 等待并解密一条响应
func (r *testRig) awaitResponse(t *testing.T) *types.Response {
	t.Helper()
	select {
	case ev := <-r.pool.published:
		require.NoError(t, crypto.VerifyEvent(ev))
		assert.Equal(t, r.app.PublicKeyHex(), ev.TagValue("p"))

		conv, err := crypto.ConversationKey(r.app, r.handler.Pubkey())
		require.NoError(t, err)
		plaintext, err := crypto.NIP44Decrypt(conv, ev.Content)
		require.NoError(t, err)

		resp := &types.Response{}
		require.NoError(t, json.Unmarshal(plaintext, resp))
		return resp
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for response")
		panic("unreachable")
	}
}

// assertSilence 断言一段时间内没有任何发布
func (r *testRig) assertSilence(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.pool.published:
		t.Fatalf("expected silence, got published event %s", ev.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

// connect 完成管理员秘密握手并把信任级别提到完全信任
//
// 秘密匹配只解锁审批入口，这里模拟管理端批准入场后选定
// 完全信任，让后续方法测试不再经过审批。
func (r *testRig) connect(t *testing.T) {
	t.Helper()
	r.send(r.request(t, &types.Request{
		ID:     "conn-1",
		Method: "connect",
		Params: []string{r.handler.Pubkey(), connectSecret},
	}))

	require.Eventually(t, func() bool { return len(r.gate.Pending()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.gate.Approve(r.gate.Pending()[0].RequestID))

	resp := r.awaitResponse(t)
	require.Equal(t, "ack", resp.Result)

	_, err := r.store.UpsertKeyUser("home", r.app.PublicKeyHex(), types.TrustFull)
	require.NoError(t, err)
}

// ============================================================================
// connect 握手测试
// ============================================================================

// TestHandler_ConnectWithAdminSecret 秘密匹配只解锁审批入口，不直接授信
func TestHandler_ConnectWithAdminSecret(t *testing.T) {
	rig := newTestRig(t)

	rig.send(rig.request(t, &types.Request{
		ID:     "conn-1",
		Method: "connect",
		Params: []string{rig.handler.Pubkey(), connectSecret},
	}))

	// 秘密正确也不建立授权关系，请求进入交互审批
	require.Eventually(t, func() bool { return len(rig.gate.Pending()) == 1 }, 2*time.Second, 10*time.Millisecond)
	_, err := rig.store.GetKeyUser("home", rig.app.PublicKeyHex())
	assert.ErrorIs(t, err, delegation.ErrKeyUserNotFound)

	require.NoError(t, rig.gate.Approve(rig.gate.Pending()[0].RequestID))
	resp := rig.awaitResponse(t)
	require.Equal(t, "ack", resp.Result)

	// 批准后以保守信任建立授权关系，信任级别由管理端另行提升
	ku, err := rig.store.GetKeyUser("home", rig.app.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, types.TrustParanoid, ku.Trust)
}

// TestHandler_ConnectSecretDeniedGetsError 入场审批被拒回明确错误
func TestHandler_ConnectSecretDeniedGetsError(t *testing.T) {
	rig := newTestRig(t)

	rig.send(rig.request(t, &types.Request{
		ID:     "conn-deny",
		Method: "connect",
		Params: []string{rig.handler.Pubkey(), connectSecret},
	}))

	require.Eventually(t, func() bool { return len(rig.gate.Pending()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, rig.gate.Deny(rig.gate.Pending()[0].RequestID))

	resp := rig.awaitResponse(t)
	assert.Equal(t, msgNotAuthorized, resp.Error)

	_, err := rig.store.GetKeyUser("home", rig.app.PublicKeyHex())
	assert.ErrorIs(t, err, delegation.ErrKeyUserNotFound)
}

// TestHandler_ConnectWrongSecretSilent 错误秘密静默丢弃且无副作用
func TestHandler_ConnectWrongSecretSilent(t *testing.T) {
	rig := newTestRig(t)

	rig.send(rig.request(t, &types.Request{
		ID:     "conn-bad",
		Method: "connect",
		Params: []string{rig.handler.Pubkey(), "wrong-secret"},
	}))
	rig.assertSilence(t)

	_, err := rig.store.GetKeyUser("home", rig.app.PublicKeyHex())
	assert.ErrorIs(t, err, delegation.ErrKeyUserNotFound)
}

// TestHandler_ConnectWithToken 令牌握手物化策略授权
func TestHandler_ConnectWithToken(t *testing.T) {
	rig := newTestRig(t)

	policy, err := rig.store.CreatePolicy(types.Policy{
		Name:  "notes",
		Trust: types.TrustReasonable,
		Rules: []types.PolicyRule{{Method: "sign_event", Kinds: []int{1}}},
	})
	require.NoError(t, err)
	rec, err := rig.store.CreateToken("home", policy.ID, time.Hour)
	require.NoError(t, err)

	rig.send(rig.request(t, &types.Request{
		ID:     "conn-tok",
		Method: "connect",
		Params: []string{rig.handler.Pubkey(), rec.Token},
	}))
	resp := rig.awaitResponse(t)
	assert.Equal(t, "ack", resp.Result)

	ku, err := rig.store.GetKeyUser("home", rig.app.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, types.TrustReasonable, ku.Trust)
}

// TestHandler_ConnectRedeemedTokenSilent 已兑换令牌再来一次：静默
func TestHandler_ConnectRedeemedTokenSilent(t *testing.T) {
	rig := newTestRig(t)

	policy, err := rig.store.CreatePolicy(types.Policy{Name: "p", Trust: types.TrustReasonable})
	require.NoError(t, err)
	rec, err := rig.store.CreateToken("home", policy.ID, time.Hour)
	require.NoError(t, err)
	_, err = rig.store.ApplyToken(context.Background(), "other-app-pubkey", rec.Token)
	require.NoError(t, err)

	rig.send(rig.request(t, &types.Request{
		ID:     "conn-replay",
		Method: "connect",
		Params: []string{rig.handler.Pubkey(), rec.Token},
	}))
	rig.assertSilence(t)
}

// ============================================================================
// 静默边界测试
// ============================================================================

// TestHandler_TamperedSignatureSilent 签名被篡改：零发布
func TestHandler_TamperedSignatureSilent(t *testing.T) {
	rig := newTestRig(t)

	ev := rig.request(t, &types.Request{ID: "x", Method: "ping"})
	ev.Content = ev.Content[:len(ev.Content)-4] + "AAAA"
	rig.send(ev)
	rig.assertSilence(t)
}

// TestHandler_UndecryptableSilent 内容解不开：零发布
func TestHandler_UndecryptableSilent(t *testing.T) {
	rig := newTestRig(t)

	ev := &types.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      types.KindNostrConnect,
		Tags:      [][]string{{"p", rig.handler.Pubkey()}},
		Content:   "bm90IGEgcmVhbCBwYXlsb2Fk",
	}
	require.NoError(t, crypto.FinalizeEvent(rig.app, ev))
	rig.send(ev)
	rig.assertSilence(t)
}

// ============================================================================
// 方法分发测试
// ============================================================================

// TestHandler_SignEvent 签名请求返回完整签名事件
func TestHandler_SignEvent(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	unsigned, err := json.Marshal(&types.Event{Kind: 1, Content: "hello nostr", Tags: [][]string{}})
	require.NoError(t, err)

	rig.send(rig.request(t, &types.Request{
		ID:     "sig-1",
		Method: "sign_event",
		Params: []string{string(unsigned)},
	}))
	resp := rig.awaitResponse(t)
	require.Empty(t, resp.Error)

	signed := &types.Event{}
	require.NoError(t, json.Unmarshal([]byte(resp.Result), signed))
	assert.Equal(t, rig.handler.Pubkey(), signed.Pubkey)
	assert.Equal(t, 1, signed.Kind)
	assert.NoError(t, crypto.VerifyEvent(signed))
	assert.NotZero(t, signed.CreatedAt)
}

// TestHandler_GetPublicKey 公钥查询
func TestHandler_GetPublicKey(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	rig.send(rig.request(t, &types.Request{ID: "gpk", Method: "get_public_key"}))
	resp := rig.awaitResponse(t)
	assert.Equal(t, rig.handler.Pubkey(), resp.Result)
}

// TestHandler_Ping 存活探测
func TestHandler_Ping(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	rig.send(rig.request(t, &types.Request{ID: "pn", Method: "ping"}))
	resp := rig.awaitResponse(t)
	assert.Equal(t, "pong", resp.Result)
}

// TestHandler_NIP44RoundTripViaHandler 代理加解密闭环
func TestHandler_NIP44RoundTripViaHandler(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	third, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	rig.send(rig.request(t, &types.Request{
		ID:     "enc",
		Method: "nip44_encrypt",
		Params: []string{third.PublicKeyHex(), "secret memo"},
	}))
	encResp := rig.awaitResponse(t)
	require.Empty(t, encResp.Error)

	rig.send(rig.request(t, &types.Request{
		ID:     "dec",
		Method: "nip44_decrypt",
		Params: []string{third.PublicKeyHex(), encResp.Result},
	}))
	decResp := rig.awaitResponse(t)
	assert.Equal(t, "secret memo", decResp.Result)
}

// TestHandler_UnsupportedMethod 未知方法回明确错误
func TestHandler_UnsupportedMethod(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	rig.send(rig.request(t, &types.Request{ID: "um", Method: "delete_account"}))
	resp := rig.awaitResponse(t)
	assert.Equal(t, msgUnsupportedMethod, resp.Error)
}

// TestHandler_MalformedSignParams 畸形参数回明确错误
func TestHandler_MalformedSignParams(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	rig.send(rig.request(t, &types.Request{
		ID:     "bad",
		Method: "sign_event",
		Params: []string{"{not json"},
	}))
	resp := rig.awaitResponse(t)
	assert.Equal(t, msgMalformedParams, resp.Error)
}

// TestHandler_ExecutionFailureCarriesReason 已授权请求上的操作失败回传具体原因
func TestHandler_ExecutionFailureCarriesReason(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	third, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	// 密文是垃圾：解密失败不是参数畸形，错误里要有真实原因
	rig.send(rig.request(t, &types.Request{
		ID:     "dec-bad",
		Method: "nip44_decrypt",
		Params: []string{third.PublicKeyHex(), "not-a-ciphertext"},
	}))
	resp := rig.awaitResponse(t)
	require.NotEmpty(t, resp.Error)
	assert.NotEqual(t, msgMalformedParams, resp.Error)
	assert.Empty(t, resp.Result)
}

// ============================================================================
// 授权边界测试
// ============================================================================

// TestHandler_DeniedRequestGetsExactlyOneError 拒绝恰好一条 "Not authorized"
func TestHandler_DeniedRequestGetsExactlyOneError(t *testing.T) {
	rig := newTestRig(t)

	unsigned, err := json.Marshal(&types.Event{Kind: 1, Content: "x", Tags: [][]string{}})
	require.NoError(t, err)
	rig.send(rig.request(t, &types.Request{
		ID:     "deny-1",
		Method: "sign_event",
		Params: []string{string(unsigned)},
	}))

	// 无授权关系：请求挂起待审批
	require.Eventually(t, func() bool { return len(rig.gate.Pending()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, rig.gate.Deny(rig.gate.Pending()[0].RequestID))

	resp := rig.awaitResponse(t)
	assert.Equal(t, "deny-1", resp.ID)
	assert.Equal(t, msgNotAuthorized, resp.Error)
	assert.Empty(t, resp.Result)

	rig.assertSilence(t)
}

// TestHandler_MaterializedDenyGetsOneError 物化拒绝恰好一条错误，不挂审批
func TestHandler_MaterializedDenyGetsOneError(t *testing.T) {
	rig := newTestRig(t)

	ku, err := rig.store.UpsertKeyUser("home", rig.app.PublicKeyHex(), types.TrustParanoid)
	require.NoError(t, err)
	require.NoError(t, rig.store.GrantPermission(ku.ID, "sign_event", nil, false))

	unsigned, err := json.Marshal(&types.Event{Kind: 1, Content: "x", Tags: [][]string{}})
	require.NoError(t, err)
	rig.send(rig.request(t, &types.Request{
		ID:     "acl-deny",
		Method: "sign_event",
		Params: []string{string(unsigned)},
	}))

	resp := rig.awaitResponse(t)
	assert.Equal(t, msgNotAuthorized, resp.Error)
	assert.Empty(t, rig.gate.Pending())
	rig.assertSilence(t)
}

// TestHandler_ApprovedRequestProceeds 审批通过后请求继续执行
func TestHandler_ApprovedRequestProceeds(t *testing.T) {
	rig := newTestRig(t)

	unsigned, err := json.Marshal(&types.Event{Kind: 1, Content: "x", Tags: [][]string{}})
	require.NoError(t, err)
	rig.send(rig.request(t, &types.Request{
		ID:     "appr-1",
		Method: "sign_event",
		Params: []string{string(unsigned)},
	}))

	require.Eventually(t, func() bool { return len(rig.gate.Pending()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, rig.gate.Approve(rig.gate.Pending()[0].RequestID))

	resp := rig.awaitResponse(t)
	require.Empty(t, resp.Error)
	signed := &types.Event{}
	require.NoError(t, json.Unmarshal([]byte(resp.Result), signed))
	assert.NoError(t, crypto.VerifyEvent(signed))
}
