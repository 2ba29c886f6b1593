package signer

import (
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/keystore"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
//                              多密钥服务
// ============================================================================

// Service 管理全部托管密钥的处理器
//
// 单个密钥启动失败只影响它自己：解锁失败或订阅失败记录错误
// 后继续下一个，守护进程照常服务其余密钥。
type Service struct {
	cfg      *config.Config
	keys     *keystore.Keystore
	pool     pkgif.RelayPool
	subs     pkgif.SubscriptionManager
	gate     pkgif.AuthorizationGate
	tokens   pkgif.TokenStore
	bus      pkgif.EventBus
	clk      clock.Clock
	handlers map[string]*Handler
	started  atomic.Bool
}

// NewService 创建签名服务
func NewService(
	cfg *config.Config,
	keys *keystore.Keystore,
	pool pkgif.RelayPool,
	subs pkgif.SubscriptionManager,
	gate pkgif.AuthorizationGate,
	tokens pkgif.TokenStore,
	bus pkgif.EventBus,
	clk clock.Clock,
) *Service {
	return &Service{
		cfg:      cfg,
		keys:     keys,
		pool:     pool,
		subs:     subs,
		gate:     gate,
		tokens:   tokens,
		bus:      bus,
		clk:      clk,
		handlers: make(map[string]*Handler),
	}
}

// Start 启动全部密钥的处理器（幂等）
func (s *Service) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	for _, keyCfg := range s.cfg.Keys {
		if err := s.startKey(keyCfg); err != nil {
			logger.Error("key startup failed, continuing with remaining keys",
				"key", keyCfg.Name,
				"error", err)
		}
	}
	logger.Info("signer service started",
		"keys", len(s.cfg.Keys),
		"active", len(s.handlers))
	return nil
}

func (s *Service) startKey(keyCfg config.KeyConfig) error {
	kp, err := s.keys.LoadOrCreate(keyCfg.Name)
	if err != nil {
		return err
	}

	h, err := NewHandler(s.cfg.Signer, keyCfg, kp, s.pool, s.subs, s.gate, s.tokens, s.bus, s.clk)
	if err != nil {
		return err
	}
	if err := h.Start(); err != nil {
		return err
	}
	s.handlers[keyCfg.Name] = h

	relays := keyCfg.Relays
	if len(relays) == 0 {
		relays = s.cfg.Relays
	}
	logger.Info("key online",
		"key", keyCfg.Name,
		"bunker", displayBunkerURL(h.Pubkey(), relays))
	return nil
}

// displayBunkerURL 日志展示用连接串
//
// connect 秘密和签名密钥一样不落日志，完整连接串只经由
// 管理 API 交付。
func displayBunkerURL(pubkey string, relays []string) string {
	return types.BunkerURL(pubkey, relays, "")
}

// Stop 停止全部处理器
func (s *Service) Stop() error {
	for name, h := range s.handlers {
		if err := h.Stop(); err != nil {
			logger.Warn("handler stop failed", "key", name, "error", err)
		}
	}
	s.handlers = make(map[string]*Handler)
	logger.Info("signer service stopped")
	return nil
}

// Handler 返回指定密钥的处理器（测试与管理 API 用）
func (s *Service) Handler(name string) *Handler {
	return s.handlers[name]
}
