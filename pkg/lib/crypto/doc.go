// Package crypto 提供远程签名守护进程的密码学原语
//
// 本包封装 Nostr 生态的全部密码学操作：
//
//   - Secp256k1 密钥对（BIP-340 x-only 公钥）
//   - 事件签名与验证（Schnorr）
//   - 会话密钥派生（ECDH + HKDF）
//   - NIP-44 v2 信封加密（ChaCha20 + HMAC-SHA256）
//   - NIP-04 遗留加密（AES-256-CBC）
//
// # 快速开始
//
// 生成密钥对并签名事件：
//
//	kp, err := crypto.GenerateKeyPair()
//	err = crypto.FinalizeEvent(kp, ev)
//
// 派生会话密钥并加密信封：
//
//	ck, err := crypto.ConversationKey(kp, peerPubkey)
//	payload, err := crypto.NIP44Encrypt(ck, plaintext)
//
// # 安全特性
//
//   - MAC 与共享秘密的比较全部使用常量时间操作
//   - 私钥材料只存在于进程内存，Zero() 显式清除
//   - 签名验证同时校验事件 ID 与 Schnorr 签名
package crypto
