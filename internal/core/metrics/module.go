package metrics

import (
	"context"

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
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Collector 指标收集器
	Collector *Collector
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	collector, err := NewCollector(input.EventBus)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Collector: collector}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, collector *Collector) {
	var server *Server
	if cfg.Metrics.Enabled {
		server = NewServer(cfg.Metrics, collector)
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := collector.Start(); err != nil {
				return err
			}
			if server != nil {
				server.Start()
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if server != nil {
				_ = server.Stop()
			}
			return collector.Stop()
		},
	})
}
