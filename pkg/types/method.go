package types

import (
	"fmt"
)

// ============================================================================
//                              Method - 协议方法
// ============================================================================

// Method NIP-46 协议方法封闭枚举
//
// 方法集合是协议的一部分，新增方法必须同时扩展
// ParseMethod、String 与协议处理器的分发 switch，
// 漏掉任何一处都会在编译或测试阶段暴露。
type Method int

const (
	// MethodUnknown 未知方法（解析失败的占位值）
	MethodUnknown Method = iota
	// MethodConnect 建立应用授权
	MethodConnect
	// MethodSignEvent 签名事件
	MethodSignEvent
	// MethodGetPublicKey 查询公钥
	MethodGetPublicKey
	// MethodNIP04Encrypt NIP-04 加密
	MethodNIP04Encrypt
	// MethodNIP04Decrypt NIP-04 解密
	MethodNIP04Decrypt
	// MethodNIP44Encrypt NIP-44 加密
	MethodNIP44Encrypt
	// MethodNIP44Decrypt NIP-44 解密
	MethodNIP44Decrypt
	// MethodPing 存活探测
	MethodPing
)

// ParseMethod 解析协议方法名
//
// 未知方法返回 MethodUnknown 和错误，调用方决定如何回应。
func ParseMethod(s string) (Method, error) {
	switch s {
	case "connect":
		return MethodConnect, nil
	case "sign_event":
		return MethodSignEvent, nil
	case "get_public_key":
		return MethodGetPublicKey, nil
	case "nip04_encrypt":
		return MethodNIP04Encrypt, nil
	case "nip04_decrypt":
		return MethodNIP04Decrypt, nil
	case "nip44_encrypt":
		return MethodNIP44Encrypt, nil
	case "nip44_decrypt":
		return MethodNIP44Decrypt, nil
	case "ping":
		return MethodPing, nil
	default:
		return MethodUnknown, fmt.Errorf("unknown method %q", s)
	}
}

// String 返回协议线上的方法名
func (m Method) String() string {
	switch m {
	case MethodConnect:
		return "connect"
	case MethodSignEvent:
		return "sign_event"
	case MethodGetPublicKey:
		return "get_public_key"
	case MethodNIP04Encrypt:
		return "nip04_encrypt"
	case MethodNIP04Decrypt:
		return "nip04_decrypt"
	case MethodNIP44Encrypt:
		return "nip44_encrypt"
	case MethodNIP44Decrypt:
		return "nip44_decrypt"
	case MethodPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Methods 返回全部已知方法（用于权限物化与测试遍历）
func Methods() []Method {
	return []Method{
		MethodConnect,
		MethodSignEvent,
		MethodGetPublicKey,
		MethodNIP04Encrypt,
		MethodNIP04Decrypt,
		MethodNIP44Encrypt,
		MethodNIP44Decrypt,
		MethodPing,
	}
}
