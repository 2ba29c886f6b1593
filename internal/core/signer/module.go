package signer

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/keystore"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置
	Config *config.Config

	// Keystore 密钥库
	Keystore *keystore.Keystore

	// Pool 中继连接池
	Pool pkgif.RelayPool

	// Manager 订阅管理器
	Manager pkgif.SubscriptionManager

	// Gate 授权判定能力
	Gate pkgif.AuthorizationGate

	// Tokens 令牌兑换能力
	Tokens pkgif.TokenStore

	// EventBus 事件总线
	EventBus pkgif.EventBus

	// Clock 时钟
	Clock clock.Clock
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Service 签名服务
	Service *Service
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	svc := NewService(
		input.Config,
		input.Keystore,
		input.Pool,
		input.Manager,
		input.Gate,
		input.Tokens,
		input.EventBus,
		input.Clock,
	)
	return ModuleOutput{Service: svc}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("signer",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return svc.Start()
		},
		OnStop: func(_ context.Context) error {
			return svc.Stop()
		},
	})
}
