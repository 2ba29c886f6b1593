package submgr

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-nostrsigner/internal/config"
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

	// Pool 中继连接池
	Pool pkgif.RelayPool

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

	// Manager 订阅管理器
	Manager pkgif.SubscriptionManager
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	mgr, err := NewManager(input.Config.Health, input.Pool, input.EventBus, input.Clock)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Manager: mgr}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("submgr",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, mgr pkgif.SubscriptionManager) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return mgr.Start()
		},
		OnStop: func(_ context.Context) error {
			return mgr.Stop()
		},
	})
}
