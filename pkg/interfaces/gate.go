// 本文件定义授权门接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// AuthorizationGate 定义授权决策能力
//
// 协议处理器把它当作能力消费，不关心实现：
// 可以是存储支撑的 ACL 缓存，也可以桥接到外部审批界面。
type AuthorizationGate interface {
	// IsRequestPermitted 缓存/ACL 快路径
	//
	// ok 为 false 表示没有现成决策，调用方应转入交互审批。
	IsRequestPermitted(keyName, pubkey string, method types.Method, primaryParam string) (allowed bool, ok bool)

	// RequestAuthorization 交互审批流程
	//
	// 阻塞直到批准、拒绝或超时；拒绝与超时都返回错误。
	RequestAuthorization(ctx context.Context, requestID, keyName, pubkey string, method types.Method, primaryParam string) error
}

// TokenStore 定义委托令牌的原子兑换能力
type TokenStore interface {
	// ApplyToken 兑换一次性令牌为常驻授权
	//
	// 至多一次成功；并发兑换同一令牌时其余调用返回
	// ErrTokenAlreadyRedeemed。授权物化失败时兑换回滚，
	// 令牌保持可用。
	ApplyToken(ctx context.Context, callerPubkey, token string) (*types.KeyUser, error)
}
