package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_BAD", "nope")

	assert.True(t, envBool("TEST_BOOL", false))
	assert.Equal(t, 42, envInt("TEST_INT", 1))
	assert.Equal(t, 0.25, envFloat("TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, envDuration("TEST_DUR", time.Second))
	assert.Equal(t, "fallback", envString("TEST_UNSET_STRING", "fallback"))

	assert.True(t, envBool("TEST_BAD", true))
	assert.Equal(t, 7, envInt("TEST_BAD", 7))
	assert.Equal(t, time.Minute, envDuration("TEST_BAD", time.Minute))
}

func TestGetServiceConfig(t *testing.T) {
	t.Setenv("MODEL_NAME", "")
	t.Setenv("PERSONA_MODEL", "")
	t.Setenv("PERSONA_MAX_TOKENS", "")
	t.Setenv("PERSONA_TEMPERATURE", "")
	t.Setenv("DNS_PERSONA_MODEL", "")
	t.Setenv("DNS_PERSONA_MAX_TOKENS", "")

	sc := getServiceConfig("HTTP")
	assert.Equal(t, "gpt-4o", sc.Model)
	assert.Equal(t, 0, sc.MaxTokens)
	assert.Equal(t, 0.8, sc.Temperature)
	assert.Equal(t, 200, getServiceConfig("DNS").MaxTokens)

	t.Setenv("PERSONA_MODEL", "gpt-4o-mini")
	t.Setenv("DNS_PERSONA_MODEL", "gpt-3.5-turbo")
	t.Setenv("DNS_PERSONA_MAX_TOKENS", "120")
	t.Setenv("PERSONA_TEMPERATURE", "0.3")

	assert.Equal(t, "gpt-4o-mini", getServiceConfig("HTTP").Model)
	dnsCfg := getServiceConfig("DNS")
	assert.Equal(t, "gpt-3.5-turbo", dnsCfg.Model)
	assert.Equal(t, 120, dnsCfg.MaxTokens)
	assert.Equal(t, 0.3, dnsCfg.Temperature)
}

func TestCountTokens(t *testing.T) {
	assert.Zero(t, countTokens(""))
	n := countTokens("Hôm nay trời đẹp quá")
	assert.Positive(t, n)
	assert.Less(t, n, 40)
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	require.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestLoadPortConfig(t *testing.T) {
	for _, k := range []string{"HTTP_PORT", "HTTPS_PORT", "SSH_PORT", "DNS_PORT"} {
		t.Setenv(k, "")
	}
	t.Setenv("HIGH_PORT_MODE", "true")
	t.Setenv("SSH_PORT", "2022")

	loadPortConfig(&Options{DNSPort: -1, HTTPPort: 9090})
	assert.Equal(t, 9090, HTTP_PORT)
	assert.Equal(t, 8443, HTTPS_PORT)
	assert.Equal(t, 2022, SSH_PORT)
	assert.Equal(t, 0, DNS_PORT)
	assert.True(t, highPortMode)
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-c", "conf", "--ssh-port=-1", "-d"})
	require.NoError(t, err)
	assert.Equal(t, "conf", opts.ConfigDir)
	assert.Equal(t, -1, opts.SSHPort)
	assert.True(t, opts.Debug)

	_, err = parseOptions([]string{"--no-such-flag"})
	assert.Error(t, err)
}
