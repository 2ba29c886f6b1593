package relaypool

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

	// Pool 中继连接池
	Pool pkgif.RelayPool
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	pool, err := NewPool(input.Config.Pool, input.Config.Relays, input.EventBus, input.Clock)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Pool: pool}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("relaypool",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, pool pkgif.RelayPool) {
	p, ok := pool.(*Pool)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return p.Start()
		},
		OnStop: func(_ context.Context) error {
			return p.Stop()
		},
	})
}
