package signer

import "errors"

// 协议处理器相关错误
var (
	// ErrHandlerClosed 处理器已关闭
	ErrHandlerClosed = errors.New("signer handler closed")
	// ErrUndecryptable 请求内容无法解密
	ErrUndecryptable = errors.New("request content undecryptable")
)

// 线上错误消息
//
// 授权拒绝的措辞是协议级约定，客户端按字面匹配展示。
const (
	msgNotAuthorized     = "Not authorized"
	msgUnsupportedMethod = "unsupported method"
	msgMalformedParams   = "malformed params"
)
