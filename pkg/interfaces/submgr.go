// 本文件定义订阅管理器接口。
package interfaces

import (
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// SubscriptionManager 定义声明式订阅注册表
//
// 给定一组命名过滤器，保证每个订阅在连接池上保持存活：
// 池重置后重建，静默失效由轮转探测发现并修复。
type SubscriptionManager interface {
	// Subscribe 注册命名订阅并立即建立
	//
	// 同名重复注册视作"重新注册"，替换旧订阅，不报错。
	// 返回注销该订阅的能力句柄。
	Subscribe(id string, filter types.Filter, onEvent EventCallback, relays []string) (CancelFunc, error)

	// Unsubscribe 取消并移除命名订阅，未知 id 为空操作
	Unsubscribe(id string)

	// Start 启动健康检查定时器与池重置监听，幂等
	Start() error

	// Stop 停止后台任务并取消全部订阅
	Stop() error
}
