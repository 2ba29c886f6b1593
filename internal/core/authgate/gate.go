// Package authgate 提供请求级授权决策
//
// authgate 包负责：
// - ACL 快路径：信任级别与已物化方法授权的即时判定
// - 决策缓存：交互审批结果的 LRU 记忆
// - 交互审批：挂起请求、等待管理端批准/拒绝、限时放弃
//
// 快路径三值语义：允许、拒绝、无决策。无决策不等于拒绝，
// 调用方应转入交互审批；拒绝是明确决策，调用方据此回应
// "Not authorized" 而不再打扰管理端。
package authgate

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/delegation"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

var logger = log.Logger("core/authgate")

// decision 缓存的审批决策
type decision struct {
	allow bool
}

// ============================================================================
//                              授权门
// ============================================================================

// Gate 存储支撑的授权门
type Gate struct {
	cfg   config.GateConfig
	store *delegation.Store
	clk   clock.Clock

	// cache 交互审批结果的记忆，避免同一应用反复打扰管理端
	cache *lru.Cache[string, decision]

	mu      sync.Mutex
	pending map[string]*Approval

	closed atomic.Bool
}

// Approval 一条待审批请求
type Approval struct {
	RequestID    string
	KeyName      string
	AppPubkey    string
	Method       types.Method
	PrimaryParam string

	// result 一次性结果通道（批准 true / 拒绝 false）
	result chan bool
}

// NewGate 创建授权门
func NewGate(cfg config.GateConfig, store *delegation.Store, clk clock.Clock) (*Gate, error) {
	cache, err := lru.New[string, decision](cfg.DecisionCacheSize)
	if err != nil {
		return nil, err
	}
	return &Gate{
		cfg:     cfg,
		store:   store,
		clk:     clk,
		cache:   cache,
		pending: make(map[string]*Approval),
	}, nil
}

func cacheKey(keyName, pubkey string, method types.Method, primaryParam string) string {
	return keyName + "/" + pubkey + "/" + method.String() + "/" + primaryParam
}

// ============================================================================
//                              ACL 快路径
// ============================================================================

// IsRequestPermitted 无阻塞的授权判定
//
// 判定顺序：决策缓存 → 授权关系存在性与吊销 → 信任级别 →
// 物化的方法授权。任何一层给出明确决策即返回。
func (g *Gate) IsRequestPermitted(keyName, pubkey string, method types.Method, primaryParam string) (allowed bool, ok bool) {
	if d, hit := g.cache.Get(cacheKey(keyName, pubkey, method, primaryParam)); hit {
		return d.allow, true
	}

	ku, err := g.store.GetKeyUser(keyName, pubkey)
	if err != nil {
		// 没有授权关系：无决策，走交互审批
		return false, false
	}
	if ku.Revoked() {
		return false, true
	}

	switch ku.Trust {
	case types.TrustFull:
		return true, true
	case types.TrustReasonable:
		if method == types.MethodGetPublicKey || method == types.MethodPing {
			return true, true
		}
	}

	perm, err := g.store.GetPermission(ku.ID, method.String())
	if err != nil || perm == nil {
		return false, false
	}
	if !perm.Allow {
		return false, true
	}
	if method == types.MethodSignEvent {
		kind, err := strconv.Atoi(primaryParam)
		if err != nil {
			return false, false
		}
		if !perm.AllowsKind(kind) {
			// 授权没覆盖这个事件种类，让管理端裁决
			return false, false
		}
	}
	return true, true
}

// ============================================================================
//                              交互审批
// ============================================================================

// RequestAuthorization 挂起请求并等待管理端裁决
//
// 批准时把决策物化进存储（授权关系 upsert + 方法授权落库）
// 并写入缓存；拒绝只进缓存。超时与 ctx 取消不留决策，下次
// 同样的请求会再次进入审批。
func (g *Gate) RequestAuthorization(ctx context.Context, requestID, keyName, pubkey string, method types.Method, primaryParam string) error {
	if g.closed.Load() {
		return ErrGateClosed
	}

	ap := &Approval{
		RequestID:    requestID,
		KeyName:      keyName,
		AppPubkey:    pubkey,
		Method:       method,
		PrimaryParam: primaryParam,
		result:       make(chan bool, 1),
	}

	// 超时定时器先于挂起登记建立：管理端一旦看到这条审批，
	// 它的时限就已经在走
	timer := g.clk.Timer(g.cfg.ApprovalTimeout)
	defer timer.Stop()

	g.mu.Lock()
	g.pending[requestID] = ap
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, requestID)
		g.mu.Unlock()
	}()

	logger.Info("authorization pending",
		"request", requestID,
		"key", keyName,
		"app", log.TruncateID(pubkey, 8),
		"method", method)

	select {
	case approved := <-ap.result:
		return g.settle(ap, approved)
	case <-timer.C:
		logger.Warn("authorization timed out", "request", requestID)
		return ErrApprovalTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle 落库并缓存审批结果
func (g *Gate) settle(ap *Approval, approved bool) error {
	g.cache.Add(cacheKey(ap.KeyName, ap.AppPubkey, ap.Method, ap.PrimaryParam), decision{allow: approved})

	if !approved {
		logger.Info("authorization denied", "request", ap.RequestID)
		return ErrAuthorizationDenied
	}

	ku, err := g.store.GetKeyUser(ap.KeyName, ap.AppPubkey)
	if err != nil {
		ku, err = g.store.UpsertKeyUser(ap.KeyName, ap.AppPubkey, types.TrustParanoid)
		if err != nil {
			return err
		}
	}

	var kinds []int
	if ap.Method == types.MethodSignEvent {
		if kind, err := strconv.Atoi(ap.PrimaryParam); err == nil {
			kinds = []int{kind}
		}
	}
	if err := g.store.GrantPermission(ku.ID, ap.Method.String(), kinds, true); err != nil {
		return err
	}

	logger.Info("authorization approved", "request", ap.RequestID, "method", ap.Method)
	return nil
}

// ============================================================================
//                              管理端操作
// ============================================================================

// Pending 列出全部待审批请求
func (g *Gate) Pending() []Approval {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Approval, 0, len(g.pending))
	for _, ap := range g.pending {
		out = append(out, *ap)
	}
	return out
}

// Approve 批准待审批请求
func (g *Gate) Approve(requestID string) error {
	return g.resolve(requestID, true)
}

// Deny 拒绝待审批请求
func (g *Gate) Deny(requestID string) error {
	return g.resolve(requestID, false)
}

func (g *Gate) resolve(requestID string, approved bool) error {
	g.mu.Lock()
	ap, ok := g.pending[requestID]
	if ok {
		delete(g.pending, requestID)
	}
	g.mu.Unlock()

	if !ok {
		return ErrApprovalNotFound
	}
	ap.result <- approved
	return nil
}

// Close 关闭授权门，拒绝所有在途审批
func (g *Gate) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	g.mu.Lock()
	for id, ap := range g.pending {
		delete(g.pending, id)
		select {
		case ap.result <- false:
		default:
		}
	}
	g.mu.Unlock()
	return nil
}
