// Package signer 实现 NIP-46 远程签名协议处理器
//
// signer 包负责：
// - 每个托管密钥一条 kind 24133 订阅与一个处理器实例
// - 请求管线：签名校验 → 解密 → 信封解码 → 方法分发
// - connect 握手：管理员秘密、一次性令牌、交互审批三条路径
// - 响应加密回发（与请求同一种加密格式）
//
// 静默与解释的边界是协议的安全属性：签名无效、内容解不开、
// connect 秘密不对，一律不回应（不给探测者任何回波）；
// 授权被拒、参数畸形或操作本身失败则回 {id, error}，因为
// 此时对端已证明持有合法密钥材料，值得一个解释。
package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-nostrsigner/internal/config"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/crypto"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

var logger = log.Logger("core/signer")

// publishTimeout 单次响应发布的时间上限
const publishTimeout = 15 * time.Second

// codec 请求使用的加密格式，响应保持一致
type codec int

const (
	codecNIP44 codec = iota
	codecNIP04
)

// session 单次请求的会话上下文
type session struct {
	peer  string
	conv  []byte
	nip04 []byte
	wire  codec
}

// ============================================================================
//                              协议处理器
// ============================================================================

// Handler 单密钥协议处理器
type Handler struct {
	cfg    config.SignerConfig
	keyCfg config.KeyConfig
	kp     *crypto.KeyPair
	pub    string

	pool   pkgif.RelayPool
	subs   pkgif.SubscriptionManager
	gate   pkgif.AuthorizationGate
	tokens pkgif.TokenStore
	clk    clock.Clock

	// convKeys 会话密钥缓存（ECDH + HKDF 每次重算不便宜）
	convKeys *lru.Cache[string, []byte]

	connectedEmitter pkgif.Emitter
	handledEmitter   pkgif.Emitter

	unsubscribe pkgif.CancelFunc
	started     atomic.Bool
	closed      atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewHandler 创建单密钥处理器
func NewHandler(
	cfg config.SignerConfig,
	keyCfg config.KeyConfig,
	kp *crypto.KeyPair,
	pool pkgif.RelayPool,
	subs pkgif.SubscriptionManager,
	gate pkgif.AuthorizationGate,
	tokens pkgif.TokenStore,
	bus pkgif.EventBus,
	clk clock.Clock,
) (*Handler, error) {
	convKeys, err := lru.New[string, []byte](cfg.ConversationCacheSize)
	if err != nil {
		return nil, err
	}
	connectedEmitter, err := bus.Emitter(new(types.EvtAppConnected))
	if err != nil {
		return nil, err
	}
	handledEmitter, err := bus.Emitter(new(types.EvtRequestHandled))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		cfg:              cfg,
		keyCfg:           keyCfg,
		kp:               kp,
		pub:              kp.PublicKeyHex(),
		pool:             pool,
		subs:             subs,
		gate:             gate,
		tokens:           tokens,
		clk:              clk,
		convKeys:         convKeys,
		connectedEmitter: connectedEmitter,
		handledEmitter:   handledEmitter,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Pubkey 返回处理器公钥
func (h *Handler) Pubkey() string {
	return h.pub
}

// SubscriptionID 返回本处理器的订阅 id
func (h *Handler) SubscriptionID() string {
	return "nip46-" + h.keyCfg.Name
}

// Start 注册订阅并开始处理请求（幂等）
func (h *Handler) Start() error {
	if !h.started.CompareAndSwap(false, true) {
		return nil
	}
	if h.closed.Load() {
		return ErrHandlerClosed
	}

	filter := types.Filter{
		Kinds: []int{types.KindNostrConnect},
		TagP:  []string{h.pub},
	}
	cancel, err := h.subs.Subscribe(h.SubscriptionID(), filter, h.onEvent, h.keyCfg.Relays)
	if err != nil {
		return err
	}
	h.unsubscribe = cancel

	logger.Info("signer handler started",
		"key", h.keyCfg.Name,
		"pubkey", log.TruncateID(h.pub, 8))
	return nil
}

// Stop 注销订阅并终止在途处理
func (h *Handler) Stop() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.cancel()
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	_ = h.connectedEmitter.Close()
	_ = h.handledEmitter.Close()
	logger.Info("signer handler stopped", "key", h.keyCfg.Name)
	return nil
}

// onEvent 订阅回调入口
//
// 交互审批可能阻塞数分钟，每个请求独立协程，避免一条待审批
// 请求堵死整条订阅。
func (h *Handler) onEvent(ev *types.Event) {
	if h.closed.Load() {
		return
	}
	go h.process(ev)
}

// ============================================================================
//                              请求管线
// ============================================================================

// process 单请求处理管线
func (h *Handler) process(ev *types.Event) {
	// 自己发出的响应也是 kind 24133，不处理
	if ev.Pubkey == h.pub {
		return
	}

	// 签名无效：静默丢弃
	if err := crypto.VerifyEvent(ev); err != nil {
		logger.Debug("dropping event with bad signature",
			"key", h.keyCfg.Name,
			"event", log.TruncateID(ev.ID, 8))
		return
	}

	sess, plaintext, err := h.openSession(ev)
	if err != nil {
		// 解不开内容：静默丢弃
		logger.Debug("dropping undecryptable event",
			"key", h.keyCfg.Name,
			"from", log.TruncateID(ev.Pubkey, 8))
		return
	}

	req, err := types.DecodeRequest(plaintext)
	if err != nil {
		// 信封连 id 都没有，无处回应：静默丢弃
		logger.Debug("dropping malformed envelope",
			"key", h.keyCfg.Name,
			"from", log.TruncateID(ev.Pubkey, 8))
		return
	}

	method, err := types.ParseMethod(req.Method)
	if err != nil {
		h.respondErr(sess, req.ID, msgUnsupportedMethod)
		h.emitHandled(sess.peer, req.Method, false)
		return
	}

	logger.Debug("request received",
		"key", h.keyCfg.Name,
		"from", log.TruncateID(sess.peer, 8),
		"method", method)

	if method == types.MethodConnect {
		h.handleConnect(sess, req)
		return
	}
	h.handleMethod(sess, req, method)
}

// openSession 建立会话上下文并解密请求内容
//
// 先试 NIP-44，再退 NIP-04 兼容旧客户端。响应沿用请求的
// 加密格式。
func (h *Handler) openSession(ev *types.Event) (*session, []byte, error) {
	conv, err := h.conversationKey(ev.Pubkey)
	if err != nil {
		return nil, nil, err
	}
	sess := &session{peer: ev.Pubkey, conv: conv}

	if plaintext, err := crypto.NIP44Decrypt(conv, ev.Content); err == nil {
		sess.wire = codecNIP44
		return sess, plaintext, nil
	}

	nip04Key, err := crypto.NIP04SharedKey(h.kp, ev.Pubkey)
	if err != nil {
		return nil, nil, err
	}
	sess.nip04 = nip04Key
	if plaintext, err := crypto.NIP04Decrypt(nip04Key, ev.Content); err == nil {
		sess.wire = codecNIP04
		return sess, []byte(plaintext), nil
	}
	return nil, nil, ErrUndecryptable
}

func (h *Handler) conversationKey(peer string) ([]byte, error) {
	if key, ok := h.convKeys.Get(peer); ok {
		return key, nil
	}
	key, err := crypto.ConversationKey(h.kp, peer)
	if err != nil {
		return nil, err
	}
	h.convKeys.Add(peer, key)
	return key, nil
}

// ============================================================================
//                              方法分发
// ============================================================================

// handleMethod connect 之外的方法：授权判定后执行
func (h *Handler) handleMethod(sess *session, req *types.Request, method types.Method) {
	// sign_event 的授权粒度是事件种类，先解析出目标事件
	var target *types.Event
	if method == types.MethodSignEvent {
		target = &types.Event{}
		if err := json.Unmarshal([]byte(req.Param(0)), target); err != nil {
			h.respondErr(sess, req.ID, msgMalformedParams)
			h.emitHandled(sess.peer, req.Method, false)
			return
		}
	}

	if !h.authorize(sess, req, method, primaryParam(method, req, target)) {
		h.respondErr(sess, req.ID, msgNotAuthorized)
		h.emitHandled(sess.peer, req.Method, false)
		return
	}

	result, err := h.execute(sess, req, method, target)
	if err != nil {
		logger.Warn("method execution failed",
			"key", h.keyCfg.Name,
			"method", method,
			"error", err)
		// 已授权请求上的操作失败值得解释，错误原因原样回传
		h.respondErr(sess, req.ID, err.Error())
		h.emitHandled(sess.peer, req.Method, false)
		return
	}

	h.respondOk(sess, req.ID, result)
	h.emitHandled(sess.peer, req.Method, true)
}

// authorize 快路径 + 交互审批
func (h *Handler) authorize(sess *session, req *types.Request, method types.Method, primary string) bool {
	allowed, ok := h.gate.IsRequestPermitted(h.keyCfg.Name, sess.peer, method, primary)
	if ok {
		return allowed
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.AuthTimeout)
	defer cancel()
	err := h.gate.RequestAuthorization(ctx, uuid.NewString(), h.keyCfg.Name, sess.peer, method, primary)
	return err == nil
}

// primaryParam 授权判定的主参数
//
// sign_event 用事件种类，加解密方法用第三方公钥，其余为空。
func primaryParam(method types.Method, req *types.Request, target *types.Event) string {
	switch method {
	case types.MethodSignEvent:
		return strconv.Itoa(target.Kind)
	case types.MethodNIP04Encrypt, types.MethodNIP04Decrypt,
		types.MethodNIP44Encrypt, types.MethodNIP44Decrypt:
		return req.Param(0)
	default:
		return ""
	}
}

// execute 执行已放行的方法
func (h *Handler) execute(sess *session, req *types.Request, method types.Method, target *types.Event) (string, error) {
	switch method {
	case types.MethodSignEvent:
		return h.signEvent(target)
	case types.MethodGetPublicKey:
		return h.pub, nil
	case types.MethodPing:
		return "pong", nil
	case types.MethodNIP04Encrypt:
		key, err := crypto.NIP04SharedKey(h.kp, req.Param(0))
		if err != nil {
			return "", err
		}
		return crypto.NIP04Encrypt(key, req.Param(1))
	case types.MethodNIP04Decrypt:
		key, err := crypto.NIP04SharedKey(h.kp, req.Param(0))
		if err != nil {
			return "", err
		}
		return crypto.NIP04Decrypt(key, req.Param(1))
	case types.MethodNIP44Encrypt:
		key, err := crypto.ConversationKey(h.kp, req.Param(0))
		if err != nil {
			return "", err
		}
		return crypto.NIP44Encrypt(key, []byte(req.Param(1)))
	case types.MethodNIP44Decrypt:
		key, err := crypto.ConversationKey(h.kp, req.Param(0))
		if err != nil {
			return "", err
		}
		plaintext, err := crypto.NIP44Decrypt(key, req.Param(1))
		if err != nil {
			return "", err
		}
		return string(plaintext), nil
	default:
		return "", fmt.Errorf("unreachable method %v", method)
	}
}

// signEvent 补全并签名目标事件
func (h *Handler) signEvent(target *types.Event) (string, error) {
	if target.CreatedAt == 0 {
		target.CreatedAt = h.clk.Now().Unix()
	}
	if target.Tags == nil {
		target.Tags = [][]string{}
	}
	if err := crypto.FinalizeEvent(h.kp, target); err != nil {
		return "", err
	}
	signed, err := json.Marshal(target)
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// ============================================================================
//                              响应回发
// ============================================================================

func (h *Handler) respondOk(sess *session, id, result string) {
	h.respond(sess, types.OkResponse(id, result))
}

func (h *Handler) respondErr(sess *session, id, msg string) {
	h.respond(sess, types.ErrResponse(id, msg))
}

// respond 加密并发布响应事件
func (h *Handler) respond(sess *session, resp *types.Response) {
	data, err := resp.Encode()
	if err != nil {
		logger.Error("encode response failed", "error", err)
		return
	}

	var content string
	switch sess.wire {
	case codecNIP04:
		content, err = crypto.NIP04Encrypt(sess.nip04, string(data))
	default:
		content, err = crypto.NIP44Encrypt(sess.conv, data)
	}
	if err != nil {
		logger.Error("encrypt response failed", "error", err)
		return
	}

	out := &types.Event{
		Pubkey:    h.pub,
		CreatedAt: h.clk.Now().Unix(),
		Kind:      types.KindNostrConnect,
		Tags:      [][]string{{"p", sess.peer}},
		Content:   content,
	}
	if err := crypto.FinalizeEvent(h.kp, out); err != nil {
		logger.Error("sign response failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, publishTimeout)
	defer cancel()
	h.pool.EnsureLive(ctx)
	if err := h.pool.Publish(ctx, out); err != nil {
		logger.Warn("publish response failed",
			"key", h.keyCfg.Name,
			"to", log.TruncateID(sess.peer, 8),
			"error", err)
	}
}

func (h *Handler) emitHandled(peer, method string, ok bool) {
	if err := h.handledEmitter.Emit(&types.EvtRequestHandled{
		KeyName:   h.keyCfg.Name,
		AppPubkey: peer,
		Method:    method,
		Ok:        ok,
		Time:      h.clk.Now(),
	}); err != nil {
		logger.Debug("emit request handled", "error", err)
	}
}
