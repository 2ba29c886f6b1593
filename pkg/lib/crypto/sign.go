package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// 签名相关错误
var (
	// ErrIDMismatch 事件 ID 与内容不一致
	ErrIDMismatch = errors.New("event id does not match serialized content")
	// ErrBadSignature 签名验证失败
	ErrBadSignature = errors.New("bad event signature")
)

// ============================================================================
//                              事件签名
// ============================================================================

// FinalizeEvent 补全并签名事件
//
// 设置 Pubkey、计算 ID、生成 BIP-340 Schnorr 签名。
// 调用方负责事先填好 Kind/Tags/Content/CreatedAt。
func FinalizeEvent(kp *KeyPair, ev *types.Event) error {
	ev.Pubkey = kp.PublicKeyHex()

	id, err := ev.ComputeID()
	if err != nil {
		return err
	}
	ev.ID = id

	digest, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("decode event id: %w", err)
	}

	sig, err := schnorr.Sign(kp.priv, digest)
	if err != nil {
		return fmt.Errorf("schnorr sign: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// VerifyEvent 验证事件的 ID 与 Schnorr 签名
//
// 两者任一不成立都返回错误；协议处理器对验证失败的事件
// 静默丢弃，不回应。
func VerifyEvent(ev *types.Event) error {
	if !ev.CheckID() {
		return ErrIDMismatch
	}

	pub, err := ParsePublicKey(ev.Pubkey)
	if err != nil {
		return err
	}

	digest, err := hex.DecodeString(ev.ID)
	if err != nil || len(digest) != 32 {
		return ErrIDMismatch
	}

	rawSig, err := hex.DecodeString(ev.Sig)
	if err != nil || len(rawSig) != SignatureSize {
		return ErrBadSignature
	}
	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return ErrBadSignature
	}

	if !sig.Verify(digest, pub) {
		return ErrBadSignature
	}
	return nil
}
