// Package interfaces 定义签名守护进程的公共接口
//
// 核心引擎通过这些能力接口与协作方解耦：
//
//   - RelayPool: 中继连接池（订阅、发布、健康上报）
//   - SubscriptionManager: 声明式订阅注册表与健康保活
//   - AuthorizationGate: 授权决策（缓存快路径 + 交互审批）
//   - TokenStore: 一次性委托令牌的原子兑换
//   - EventBus: 进程内类型化事件总线
//   - Engine: 底层键值存储引擎
//
// 依赖方向：internal/core/* 实现这些接口，pkg/types 提供数据类型，
// 接口本身不依赖任何实现。
package interfaces
