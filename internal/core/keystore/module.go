package keystore

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-nostrsigner/internal/config"
)

// ============================================================================
//                              模块定义
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置
	Config *config.Config
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Keystore 密钥库
	Keystore *Keystore
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	ks, err := New(input.Config.KeysDir, input.Config.KeysPassphrase)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Keystore: ks}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("keystore",
		fx.Provide(ProvideServices),
	)
}
