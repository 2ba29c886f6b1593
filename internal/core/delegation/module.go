package delegation

import (
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

	// Engine 存储引擎
	Engine pkgif.Engine

	// Clock 时钟
	Clock clock.Clock
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Store 委托存储（具体类型，管理 API 需要全部操作）
	Store *Store

	// TokenStore 令牌兑换能力
	TokenStore pkgif.TokenStore
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	store := NewStore(input.Engine, input.Config.Token, input.Clock)
	return ModuleOutput{Store: store, TokenStore: store}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("delegation",
		fx.Provide(ProvideServices),
	)
}
