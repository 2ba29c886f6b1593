package nostrsigner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/authgate"
	"github.com/dep2p/go-nostrsigner/internal/core/delegation"
	"github.com/dep2p/go-nostrsigner/internal/core/signer"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"

	"go.uber.org/fx"
)

var logger = log.Logger("nostrsigner")

// ============================================================================
//                              守护进程
// ============================================================================

// Daemon NIP-46 签名守护进程
//
// New 只装配不启动；Start 建立中继连接、注册订阅并开始服务。
// 管理操作（令牌、策略、审批）在 Start 之后可用。
type Daemon struct {
	cfg *config.Config
	app *fx.App

	// fx.Invoke 注入的组件
	store  *delegation.Store
	gate   *authgate.Gate
	signer *signer.Service

	started atomic.Bool
	closed  atomic.Bool
}

// New 创建守护进程
func New(opts ...Option) (*Daemon, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	cfg, err := o.buildConfig()
	if err != nil {
		return nil, err
	}

	d := &Daemon{cfg: cfg}
	app, err := buildFxApp(cfg, d, o.userFxOptions)
	if err != nil {
		return nil, err
	}
	d.app = app
	return d, nil
}

// Start 启动全部子系统（连接池、订阅管理器、签名处理器）
func (d *Daemon) Start(ctx context.Context) error {
	if d.closed.Load() {
		return ErrDaemonClosed
	}
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := d.app.Start(ctx); err != nil {
		d.started.Store(false)
		return err
	}
	logger.Info("daemon started",
		"relays", len(d.cfg.Relays),
		"keys", len(d.cfg.Keys))
	return nil
}

// Stop 停止全部子系统
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !d.started.Load() {
		return nil
	}
	err := d.app.Stop(ctx)
	logger.Info("daemon stopped")
	return err
}

// Config 返回生效的内部配置（只读使用）
func (d *Daemon) Config() *config.Config {
	return d.cfg
}

// keyConfig 查找密钥配置
func (d *Daemon) keyConfig(name string) (config.KeyConfig, bool) {
	for _, k := range d.cfg.Keys {
		if k.Name == name {
			return k, true
		}
	}
	return config.KeyConfig{}, false
}

// ============================================================================
//                              连接串
// ============================================================================

// BunkerURL 返回指定密钥的 bunker:// 连接串
//
// 包含管理员共享秘密（如配置了），只应展示给密钥主人。
func (d *Daemon) BunkerURL(keyName string) (string, error) {
	if !d.started.Load() {
		return "", ErrNotStarted
	}
	keyCfg, ok := d.keyConfig(keyName)
	if !ok {
		return "", ErrUnknownKey
	}
	h := d.signer.Handler(keyName)
	if h == nil {
		return "", ErrUnknownKey
	}
	relays := keyCfg.Relays
	if len(relays) == 0 {
		relays = d.cfg.Relays
	}
	return types.BunkerURL(h.Pubkey(), relays, keyCfg.ConnectSecret), nil
}

// ============================================================================
//                              策略与令牌管理
// ============================================================================

// CreatePolicy 创建授权策略
func (d *Daemon) CreatePolicy(p types.Policy) (*types.Policy, error) {
	if !d.started.Load() {
		return nil, ErrNotStarted
	}
	return d.store.CreatePolicy(p)
}

// ListPolicies 列出全部授权策略
func (d *Daemon) ListPolicies() ([]types.Policy, error) {
	if !d.started.Load() {
		return nil, ErrNotStarted
	}
	return d.store.ListPolicies()
}

// DeletePolicy 删除授权策略
func (d *Daemon) DeletePolicy(id string) error {
	if !d.started.Load() {
		return ErrNotStarted
	}
	return d.store.DeletePolicy(id)
}

// CreateToken 为指定密钥签发一次性委托令牌
//
// ttl 为零时使用配置的默认有效期。
func (d *Daemon) CreateToken(keyName, policyID string, ttl time.Duration) (*types.TokenRecord, error) {
	if !d.started.Load() {
		return nil, ErrNotStarted
	}
	if _, ok := d.keyConfig(keyName); !ok {
		return nil, ErrUnknownKey
	}
	return d.store.CreateToken(keyName, policyID, ttl)
}

// ListTokens 列出令牌，keyName 为空列出全部
func (d *Daemon) ListTokens(keyName string) ([]types.TokenRecord, error) {
	if !d.started.Load() {
		return nil, ErrNotStarted
	}
	return d.store.ListTokens(keyName)
}

// RevokeToken 吊销未兑换的令牌
func (d *Daemon) RevokeToken(id string) error {
	if !d.started.Load() {
		return ErrNotStarted
	}
	return d.store.RevokeToken(id)
}

// ApplyToken 本地兑换令牌（带外分发场景的管理操作）
func (d *Daemon) ApplyToken(ctx context.Context, callerPubkey, token string) (*types.KeyUser, error) {
	if !d.started.Load() {
		return nil, ErrNotStarted
	}
	return d.store.ApplyToken(ctx, callerPubkey, token)
}

// ============================================================================
//                              授权关系管理
// ============================================================================

// ListKeyUsers 列出指定密钥的授权关系
func (d *Daemon) ListKeyUsers(keyName string) ([]types.KeyUser, error) {
	if !d.started.Load() {
		return nil, ErrNotStarted
	}
	return d.store.ListKeyUsers(keyName)
}

// RevokeKeyUser 吊销指定应用的授权关系
func (d *Daemon) RevokeKeyUser(keyName, pubkey string) error {
	if !d.started.Load() {
		return ErrNotStarted
	}
	return d.store.RevokeKeyUser(keyName, pubkey)
}

// ============================================================================
//                              交互审批
// ============================================================================

// Pending 列出待审批的授权请求
func (d *Daemon) Pending() []authgate.Approval {
	if !d.started.Load() {
		return nil
	}
	return d.gate.Pending()
}

// Approve 批准待审批请求
func (d *Daemon) Approve(requestID string) error {
	if !d.started.Load() {
		return ErrNotStarted
	}
	return d.gate.Approve(requestID)
}

// Deny 拒绝待审批请求
func (d *Daemon) Deny(requestID string) error {
	if !d.started.Load() {
		return ErrNotStarted
	}
	return d.gate.Deny(requestID)
}
