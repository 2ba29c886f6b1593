package crypto

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"
)

// ============================================================================
//                              会话密钥派生
// ============================================================================

// ConversationKey 派生 NIP-44 会话密钥
//
// 取 ECDH 共享点的 x 坐标，以 "nip44-v2" 为盐做 HKDF-Extract。
// 会话密钥是对称的：双方用对方公钥派生出同一把密钥。
func ConversationKey(kp *KeyPair, peerPubkeyHex string) ([]byte, error) {
	shared, err := sharedX(kp, peerPubkeyHex)
	if err != nil {
		return nil, err
	}
	return hkdf.Extract(sha256.New, shared, []byte("nip44-v2")), nil
}

// NIP04SharedKey 派生 NIP-04 遗留共享密钥
//
// NIP-04 直接把共享点 x 坐标用作 AES-256-CBC 密钥，不做 KDF。
// 仅用于 nip04_encrypt/nip04_decrypt 方法本身，信封传输
// 加密始终使用 NIP-44。
func NIP04SharedKey(kp *KeyPair, peerPubkeyHex string) ([]byte, error) {
	return sharedX(kp, peerPubkeyHex)
}

// sharedX 计算 ECDH 共享点的 x 坐标（32 字节）
func sharedX(kp *KeyPair, peerPubkeyHex string) ([]byte, error) {
	pub, err := ParsePublicKey(peerPubkeyHex)
	if err != nil {
		return nil, err
	}
	return secp256k1.GenerateSharedSecret(kp.priv, pub), nil
}
