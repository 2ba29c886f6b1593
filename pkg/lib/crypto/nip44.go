package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// NIP-44 v2 常量
const (
	nip44Version      = 2
	nip44NonceSize    = 32
	nip44MACSize      = 32
	nip44MinPlaintext = 1
	nip44MaxPlaintext = 65535
)

// NIP-44 相关错误
var (
	// ErrNIP44Payload 密文负载格式非法
	ErrNIP44Payload = errors.New("invalid nip44 payload")
	// ErrNIP44MAC MAC 校验失败
	ErrNIP44MAC = errors.New("nip44 mac mismatch")
	// ErrNIP44PlaintextSize 明文长度超出协议范围
	ErrNIP44PlaintextSize = errors.New("nip44 plaintext size out of range")
)

// ============================================================================
//                              NIP-44 v2 加密
// ============================================================================

// NIP44Encrypt 用会话密钥加密明文
//
// 负载格式：base64( 0x02 || nonce(32) || ciphertext || mac(32) )。
// 明文先做长度前缀 + 2 的幂次分块填充，隐藏真实长度。
func NIP44Encrypt(conversationKey, plaintext []byte) (string, error) {
	nonce := make([]byte, nip44NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	return nip44EncryptWithNonce(conversationKey, plaintext, nonce)
}

func nip44EncryptWithNonce(conversationKey, plaintext, nonce []byte) (string, error) {
	if len(plaintext) < nip44MinPlaintext || len(plaintext) > nip44MaxPlaintext {
		return "", ErrNIP44PlaintextSize
	}

	chachaKey, chachaNonce, hmacKey, err := nip44MessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	padded := nip44Pad(plaintext)
	ciphertext := make([]byte, len(padded))

	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", fmt.Errorf("init chacha20: %w", err)
	}
	stream.XORKeyStream(ciphertext, padded)

	mac := nip44MAC(hmacKey, nonce, ciphertext)

	payload := make([]byte, 0, 1+nip44NonceSize+len(ciphertext)+nip44MACSize)
	payload = append(payload, nip44Version)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	payload = append(payload, mac...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// NIP44Decrypt 用会话密钥解密负载
func NIP44Decrypt(conversationKey []byte, payload string) ([]byte, error) {
	// "#" 前缀是 NIP-44 对不支持版本的显式标记
	if len(payload) == 0 || payload[0] == '#' {
		return nil, ErrNIP44Payload
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrNIP44Payload
	}
	// 1 版本 + 32 nonce + 至少 32 密文块 + 32 MAC
	if len(raw) < 1+nip44NonceSize+32+nip44MACSize {
		return nil, ErrNIP44Payload
	}
	if raw[0] != nip44Version {
		return nil, ErrNIP44Payload
	}

	nonce := raw[1 : 1+nip44NonceSize]
	ciphertext := raw[1+nip44NonceSize : len(raw)-nip44MACSize]
	mac := raw[len(raw)-nip44MACSize:]

	chachaKey, chachaNonce, hmacKey, err := nip44MessageKeys(conversationKey, nonce)
	if err != nil {
		return nil, err
	}

	if !hmac.Equal(mac, nip44MAC(hmacKey, nonce, ciphertext)) {
		return nil, ErrNIP44MAC
	}

	padded := make([]byte, len(ciphertext))
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return nil, fmt.Errorf("init chacha20: %w", err)
	}
	stream.XORKeyStream(padded, ciphertext)

	return nip44Unpad(padded)
}

// ============================================================================
//                              内部辅助
// ============================================================================

// nip44MessageKeys 从会话密钥和 nonce 派生消息密钥
//
// HKDF-Expand 输出 76 字节：chacha 密钥 32 + chacha nonce 12 + hmac 密钥 32。
func nip44MessageKeys(conversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 || len(nonce) != nip44NonceSize {
		return nil, nil, nil, ErrNIP44Payload
	}

	out := make([]byte, 76)
	r := hkdf.Expand(sha256.New, conversationKey, nonce)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, nil, nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out[0:32], out[32:44], out[44:76], nil
}

// nip44MAC 计算 HMAC-SHA256(nonce || ciphertext)，nonce 充当 AAD
func nip44MAC(hmacKey, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, hmacKey)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// nip44PaddedLen 计算协议规定的填充后长度
func nip44PaddedLen(unpadded int) int {
	if unpadded <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(unpadded-1))
	chunk := nextPower / 8
	if chunk < 32 {
		chunk = 32
	}
	return chunk * ((unpadded-1)/chunk + 1)
}

// nip44Pad 前缀明文长度并填零到协议长度
func nip44Pad(plaintext []byte) []byte {
	padded := make([]byte, 2+nip44PaddedLen(len(plaintext)))
	binary.BigEndian.PutUint16(padded, uint16(len(plaintext)))
	copy(padded[2:], plaintext)
	return padded
}

// nip44Unpad 剥离长度前缀并校验填充
func nip44Unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrNIP44Payload
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < nip44MinPlaintext || n > nip44MaxPlaintext ||
		len(padded) != 2+nip44PaddedLen(n) {
		return nil, ErrNIP44Payload
	}
	return padded[2 : 2+n], nil
}
