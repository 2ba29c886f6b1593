package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDisplayBunkerURL_OmitsSecret 日志连接串不携带 connect 秘密
func TestDisplayBunkerURL_OmitsSecret(t *testing.T) {
	url := displayBunkerURL("a1b2c3", []string{"wss://relay.example"})
	assert.Contains(t, url, "bunker://a1b2c3")
	assert.Contains(t, url, "relay=wss")
	assert.NotContains(t, url, "secret")
}
