package storage

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
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Engine 存储引擎
	Engine pkgif.Engine
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	engine, err := New(input.Config.DataDir)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Engine: engine}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, engine pkgif.Engine) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return engine.Close()
		},
	})
}
