// Package types 定义签名守护进程的公共类型
//
// 本包只包含纯数据类型和序列化逻辑，不依赖任何内部实现：
//
//   - Event / Filter: Nostr 事件与订阅过滤器（NIP-01）
//   - Request / Response: NIP-46 协议信封
//   - Method: 协议方法封闭枚举
//   - TokenRecord / Policy / KeyUser: 委托授权数据模型
//   - Evt*: 事件总线上的领域事件
//
// 加密与签名原语位于 pkg/lib/crypto。
package types
