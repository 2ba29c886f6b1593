package delegation

import "errors"

// 委托令牌相关错误
var (
	// ErrTokenNotFound 令牌不存在
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenAlreadyRedeemed 令牌已被兑换
	ErrTokenAlreadyRedeemed = errors.New("token already redeemed")
	// ErrTokenExpired 令牌已过期
	ErrTokenExpired = errors.New("token expired")
	// ErrPolicyNotFound 策略不存在
	ErrPolicyNotFound = errors.New("policy not found")
	// ErrKeyUserNotFound 授权关系不存在
	ErrKeyUserNotFound = errors.New("key user not found")
)
