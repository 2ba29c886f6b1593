package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// NIP-04 相关错误
var (
	// ErrNIP04Payload 密文负载格式非法（缺少 ?iv= 或 base64 解码失败）
	ErrNIP04Payload = errors.New("invalid nip04 payload")
	// ErrNIP04Padding PKCS#7 填充非法
	ErrNIP04Padding = errors.New("invalid nip04 padding")
)

// ============================================================================
//                              NIP-04 遗留加密
// ============================================================================

// NIP04Encrypt 用共享密钥加密明文
//
// 输出格式：base64(ciphertext) + "?iv=" + base64(iv)。
// 仅为兼容老客户端的 nip04_encrypt 方法保留。
func NIP04Encrypt(sharedKey []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(sharedKey)
	if err != nil {
		return "", fmt.Errorf("init aes: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) +
		"?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// NIP04Decrypt 用共享密钥解密负载
func NIP04Decrypt(sharedKey []byte, payload string) (string, error) {
	parts := strings.Split(payload, "?iv=")
	if len(parts) != 2 {
		return "", ErrNIP04Payload
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrNIP04Payload
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrNIP04Payload
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrNIP04Payload
	}

	block, err := aes.NewCipher(sharedKey)
	if err != nil {
		return "", fmt.Errorf("init aes: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// ============================================================================
//                              PKCS#7 填充
// ============================================================================

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNIP04Padding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrNIP04Padding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrNIP04Padding
		}
	}
	return data[:len(data)-n], nil
}
