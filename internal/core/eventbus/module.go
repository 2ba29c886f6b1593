package eventbus

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
)

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// EventBus 事件总线
	EventBus pkgif.EventBus
}

// ProvideServices 提供模块服务
func ProvideServices() ModuleOutput {
	return ModuleOutput{
		EventBus: NewBus(),
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideServices),
	)
}
