package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// 密钥常量
const (
	// SecretKeySize 私钥大小（32 字节）
	SecretKeySize = 32
	// PublicKeySize x-only 公钥大小（32 字节）
	PublicKeySize = 32
	// SignatureSize Schnorr 签名大小（64 字节）
	SignatureSize = 64
)

// 密钥相关错误
var (
	// ErrInvalidSecretKey 私钥格式非法或超出曲线阶
	ErrInvalidSecretKey = errors.New("invalid secret key")
	// ErrInvalidPublicKey 公钥不是合法的 x-only secp256k1 点
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// ============================================================================
//                              KeyPair
// ============================================================================

// KeyPair 签名身份密钥对
//
// 私钥材料由所属的协议处理器独占持有，除作为签名/加密原语的
// 临时输入外不向外暴露，也永远不写入日志。
type KeyPair struct {
	priv *btcec.PrivateKey
	pub  string // x-only 公钥十六进制缓存
}

// GenerateKeyPair 生成新的密钥对
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return newKeyPair(priv), nil
}

// KeyPairFromSecret 从 32 字节私钥恢复密钥对
func KeyPairFromSecret(secret []byte) (*KeyPair, error) {
	if len(secret) != SecretKeySize {
		return nil, ErrInvalidSecretKey
	}
	priv, _ := btcec.PrivKeyFromBytes(secret)
	if priv.Key.IsZero() {
		return nil, ErrInvalidSecretKey
	}
	return newKeyPair(priv), nil
}

// KeyPairFromHex 从十六进制私钥恢复密钥对
func KeyPairFromHex(s string) (*KeyPair, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidSecretKey
	}
	return KeyPairFromSecret(raw)
}

func newKeyPair(priv *btcec.PrivateKey) *KeyPair {
	pub := schnorr.SerializePubKey(priv.PubKey())
	return &KeyPair{
		priv: priv,
		pub:  hex.EncodeToString(pub),
	}
}

// PublicKeyHex 返回 x-only 公钥（64 位十六进制）
func (kp *KeyPair) PublicKeyHex() string {
	return kp.pub
}

// SecretBytes 返回私钥原始字节
//
// 仅供密钥库加密落盘使用，调用方用完必须清零。
func (kp *KeyPair) SecretBytes() []byte {
	return kp.priv.Serialize()
}

// Zero 清除私钥材料
//
// 调用后密钥对不可再用于签名或派生。
func (kp *KeyPair) Zero() {
	kp.priv.Zero()
}

// ============================================================================
//                              公钥解析
// ============================================================================

// ParsePublicKey 解析 x-only 十六进制公钥
func ParsePublicKey(pubHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil || len(raw) != PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	pub, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// ValidPublicKeyHex 快速校验公钥格式
func ValidPublicKeyHex(pubHex string) bool {
	_, err := ParsePublicKey(pubHex)
	return err == nil
}
