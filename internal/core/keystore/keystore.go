// Package keystore 提供签名密钥的加密落盘存储
//
// 每个密钥一个文件：口令经 argon2id 派生出文件密钥，私钥用
// XChaCha20-Poly1305 密封。文件里只有盐、随机数、密文与公钥
// 明文（公钥用于不解锁时的展示与 bunker 串构造）。
package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dep2p/go-nostrsigner/pkg/lib/crypto"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
)

var logger = log.Logger("core/keystore")

// 密钥库相关错误
var (
	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("key file not found")
	// ErrBadPassphrase 口令错误（或文件被篡改）
	ErrBadPassphrase = errors.New("bad passphrase or corrupted key file")
)

// argon2id 派生参数
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	saltSize     = 16
)

// keyFile 密钥文件的落盘格式
type keyFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Pubkey     string `json:"pubkey"`
}

// ============================================================================
//                              密钥库
// ============================================================================

// Keystore 目录型密钥库
type Keystore struct {
	dir        string
	passphrase []byte
}

// New 创建密钥库，确保目录存在
func New(dir string, passphrase string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keys dir: %w", err)
	}
	return &Keystore{dir: dir, passphrase: []byte(passphrase)}, nil
}

func (ks *Keystore) path(name string) string {
	return filepath.Join(ks.dir, name+".key")
}

// Load 解锁并载入指定密钥
func (ks *Keystore) Load(name string) (*crypto.KeyPair, error) {
	raw, err := os.ReadFile(ks.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	salt, err := hex.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("parse key file salt: %w", err)
	}
	nonce, err := hex.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("parse key file nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("parse key file ciphertext: %w", err)
	}

	aead, err := chacha20poly1305.NewX(ks.fileKey(salt))
	if err != nil {
		return nil, err
	}
	secret, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	defer zero(secret)

	return crypto.KeyPairFromSecret(secret)
}

// Save 密封并落盘密钥
func (ks *Keystore) Save(name string, kp *crypto.KeyPair) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(ks.fileKey(salt))
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	secret := kp.SecretBytes()
	defer zero(secret)
	ciphertext := aead.Seal(nil, nonce, secret, nil)

	kf := keyFile{
		Version:    1,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
		Pubkey:     kp.PublicKeyHex(),
	}
	data, err := json.MarshalIndent(&kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ks.path(name), data, 0o600)
}

// LoadOrCreate 载入密钥，不存在时生成并落盘
func (ks *Keystore) LoadOrCreate(name string) (*crypto.KeyPair, error) {
	kp, err := ks.Load(name)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	kp, err = crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := ks.Save(name, kp); err != nil {
		return nil, err
	}
	logger.Info("key generated", "key", name, "pubkey", log.TruncateID(kp.PublicKeyHex(), 8))
	return kp, nil
}

// Import 导入十六进制私钥并落盘
func (ks *Keystore) Import(name, secretHex string) (*crypto.KeyPair, error) {
	kp, err := crypto.KeyPairFromHex(secretHex)
	if err != nil {
		return nil, err
	}
	if err := ks.Save(name, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Pubkey 不解锁读取公钥
func (ks *Keystore) Pubkey(name string) (string, error) {
	raw, err := os.ReadFile(ks.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return "", err
	}
	return kf.Pubkey, nil
}

func (ks *Keystore) fileKey(salt []byte) []byte {
	return argon2.IDKey(ks.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
