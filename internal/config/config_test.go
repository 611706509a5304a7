package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlatformConfigured(t *testing.T) {
	assert.False(t, (&Config{}).PlatformConfigured())
	assert.False(t, (&Config{PlatformURL: "https://x.example"}).PlatformConfigured())
	assert.False(t, (&Config{PlatformKey: "anon"}).PlatformConfigured())
	assert.True(t, (&Config{PlatformURL: "https://x.example", PlatformKey: "anon"}).PlatformConfigured())
}

func TestDurations(t *testing.T) {
	cfg := &Config{SignedURLTTL: 3600, BootstrapWait: 1500}

	assert.Equal(t, time.Hour, cfg.SignedURLExpiry())
	assert.Equal(t, 1500*time.Millisecond, cfg.BootstrapTimeout())
}

func TestDefaultSecrets(t *testing.T) {
	assert.Equal(t, []string{"COOKIE_SECRET", "SIGNING_SECRET"},
		(&Config{CookieSecret: "password", SigningSecret: "password"}).DefaultSecrets())
	assert.Equal(t, []string{"SIGNING_SECRET"},
		(&Config{CookieSecret: "s3cr3t-cookie", SigningSecret: "password"}).DefaultSecrets())
	assert.Empty(t, (&Config{CookieSecret: "a", SigningSecret: "b"}).DefaultSecrets())
}
