package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestHandleSSHLine_Commands(t *testing.T) {
	stub := &stubCompleter{content: "thở đều nào"}
	setupGlobals(t, stub)
	sess := sessionManager.Create()
	ctx := context.Background()

	out, quit := handleSSHLine(ctx, sess, "/personas")
	assert.False(t, quit)
	assert.Contains(t, out, "calm-self")
	assert.Contains(t, out, "Inner Critic")

	out, _ = handleSSHLine(ctx, sess, "before choosing")
	assert.Contains(t, out, "/talk")
	assert.Zero(t, stub.count())

	out, _ = handleSSHLine(ctx, sess, "/talk nobody")
	assert.Contains(t, out, "No such persona")

	out, _ = handleSSHLine(ctx, sess, "/talk")
	assert.Contains(t, out, "Usage")

	out, _ = handleSSHLine(ctx, sess, "/talk calm-self")
	assert.Contains(t, out, "Calm Self")

	out, _ = handleSSHLine(ctx, sess, "/group")
	assert.Contains(t, out, "/reset")

	out, _ = handleSSHLine(ctx, sess, "mình lo quá")
	assert.Equal(t, "Calm Self: thở đều nào\n", out)

	out, _ = handleSSHLine(ctx, sess, "/reset")
	assert.Contains(t, out, "/group")

	out, _ = handleSSHLine(ctx, sess, "/bogus")
	assert.Contains(t, out, "/help")

	out, _ = handleSSHLine(ctx, sess, "   ")
	assert.Empty(t, out)

	out, quit = handleSSHLine(ctx, sess, "/quit")
	assert.True(t, quit)
	assert.NotEmpty(t, out)
}

func TestHandleSSHLine_GroupDebateMarker(t *testing.T) {
	stub := &stubCompleter{content: "ừ"}
	setupGlobals(t, stub)
	sessionManager = newDebateManager()
	sess := sessionManager.Create()
	ctx := context.Background()

	_, _ = handleSSHLine(ctx, sess, "/group")
	out, _ := handleSSHLine(ctx, sess, "ai đúng?")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Inner Child: ừ", lines[0])
	assert.True(t, strings.HasPrefix(lines[4], "↪ "), lines[4])
}

func TestRunSSHChat_OverTerminal(t *testing.T) {
	stub := &stubCompleter{content: "ổn mà"}
	setupGlobals(t, stub)

	var out bytes.Buffer
	rw := struct {
		io.Reader
		io.Writer
	}{strings.NewReader("/talk future-self\rhello\r/quit\r"), &out}

	runSSHChat(context.Background(), rw, "192.0.2.20:2222")

	assert.Contains(t, out.String(), "Future Self: ổn mà")
	assert.Equal(t, 1, stub.count())
	assert.Zero(t, sessionManager.Len())
}

func TestLoadHostKey(t *testing.T) {
	signer, err := loadHostKey("")
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoED25519, signer.PublicKey().Type())

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "host_key")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	signer, err = loadHostKey(path)
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoED25519, signer.PublicKey().Type())

	_, err = loadHostKey(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
