package authgate

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/delegation"
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

	// Store 委托存储
	Store *delegation.Store

	// Clock 时钟
	Clock clock.Clock
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Gate 授权门（具体类型，管理 API 需要审批操作）
	Gate *Gate

	// AuthorizationGate 授权判定能力
	AuthorizationGate pkgif.AuthorizationGate
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	gate, err := NewGate(input.Config.Gate, input.Store, input.Clock)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Gate: gate, AuthorizationGate: gate}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("authgate",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, gate *Gate) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return gate.Close()
		},
	})
}
