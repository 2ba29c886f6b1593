package nostrsigner

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/authgate"
	"github.com/dep2p/go-nostrsigner/internal/core/delegation"
	"github.com/dep2p/go-nostrsigner/internal/core/eventbus"
	"github.com/dep2p/go-nostrsigner/internal/core/keystore"
	"github.com/dep2p/go-nostrsigner/internal/core/metrics"
	"github.com/dep2p/go-nostrsigner/internal/core/relaypool"
	"github.com/dep2p/go-nostrsigner/internal/core/signer"
	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	"github.com/dep2p/go-nostrsigner/internal/core/submgr"
)

// buildFxApp 构建 fx 应用
//
// 组装全部内部模块。加载顺序（按依赖）：
//  1. 基础设施: EventBus → Storage → Keystore
//  2. 委托与授权: Delegation → AuthGate
//  3. 中继层: RelayPool → SubscriptionManager
//  4. 协议层: Signer
//  5. 可观测性: Metrics
func buildFxApp(cfg *config.Config, d *Daemon, userOpts []fx.Option) (*fx.App, error) {
	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(func() clock.Clock { return clock.New() }),

		eventbus.Module(),
		storage.Module(),
		keystore.Module(),

		delegation.Module(),
		authgate.Module(),

		relaypool.Module(),
		submgr.Module(),

		signer.Module(),
		metrics.Module(),
	}

	if len(userOpts) > 0 {
		modules = append(modules, userOpts...)
	}

	modules = append(modules,
		fx.Invoke(injectDaemonComponents(d)),

		// 禁用 fx 自身的日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	return fx.New(modules...), nil
}

// daemonInjectParams Daemon 组件注入参数
type daemonInjectParams struct {
	fx.In

	Store  *delegation.Store
	Gate   *authgate.Gate
	Signer *signer.Service
}

// injectDaemonComponents 创建 Daemon 组件注入函数
func injectDaemonComponents(d *Daemon) interface{} {
	return func(params daemonInjectParams) {
		d.store = params.Store
		d.gate = params.Gate
		d.signer = params.Signer
	}
}
