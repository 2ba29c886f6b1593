package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              NIP-04 测试
// ============================================================================

// TestNIP04_RoundTrip 测试遗留加解密往返
func TestNIP04_RoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	k1, err := NIP04SharedKey(alice, bob.PublicKeyHex())
	require.NoError(t, err)
	k2, err := NIP04SharedKey(bob, alice.PublicKeyHex())
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	for _, msg := range []string{"", "hi", strings.Repeat("block boundary..", 16)} {
		payload, err := NIP04Encrypt(k1, msg)
		require.NoError(t, err)
		assert.Contains(t, payload, "?iv=")

		plain, err := NIP04Decrypt(k2, payload)
		require.NoError(t, err)
		assert.Equal(t, msg, plain)
	}
}

// TestNIP04_InvalidPayload 非法负载
func TestNIP04_InvalidPayload(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	peer, err := GenerateKeyPair()
	require.NoError(t, err)
	key, err := NIP04SharedKey(kp, peer.PublicKeyHex())
	require.NoError(t, err)

	for _, payload := range []string{
		"",
		"no-separator",
		"YWJj?iv=c2hvcnQ=",     // iv 长度错误
		"bm90YmxvY2s=?iv=YWFhYWFhYWFhYWFhYWFhYQ==", // 密文非块对齐
	} {
		_, err := NIP04Decrypt(key, payload)
		assert.Error(t, err, "payload %q", payload)
	}
}

// TestNIP04_WrongKey 错误密钥解出乱填充
func TestNIP04_WrongKey(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	eve, err := GenerateKeyPair()
	require.NoError(t, err)

	good, err := NIP04SharedKey(alice, bob.PublicKeyHex())
	require.NoError(t, err)
	bad, err := NIP04SharedKey(eve, bob.PublicKeyHex())
	require.NoError(t, err)

	payload, err := NIP04Encrypt(good, "secret")
	require.NoError(t, err)

	plain, err := NIP04Decrypt(bad, payload)
	if err == nil {
		// 填充恰好合法的小概率情况下也绝不会解出原文
		assert.NotEqual(t, "secret", plain)
	}
}
