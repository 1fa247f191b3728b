package executor

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/pkg/lg"
)

func writeKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestSSHAddress(t *testing.T) {
	s := NewSSH(SSHConfig{}, lg.Discard)

	_, err := s.address("  ")
	assert.Error(t, err)

	addr, err := s.address("node-a")
	require.NoError(t, err)
	assert.Equal(t, "node-a:22", addr)

	addr, err = s.address("node-a:2222")
	require.NoError(t, err)
	assert.Equal(t, "node-a:2222", addr)

	s = NewSSH(SSHConfig{Port: "2200"}, lg.Discard)
	addr, err = s.address("node-a")
	require.NoError(t, err)
	assert.Equal(t, "node-a:2200", addr)
}

func TestSSHClientConfigValidation(t *testing.T) {
	_, err := NewSSH(SSHConfig{}, lg.Discard).clientConfig()
	assert.ErrorContains(t, err, "user is required")

	_, err = NewSSH(SSHConfig{User: "ops"}, lg.Discard).clientConfig()
	assert.ErrorContains(t, err, "key path is required")

	key := writeKey(t)
	_, err = NewSSH(SSHConfig{User: "ops", KeyPath: key, KnownHostsPath: filepath.Join(t.TempDir(), "nope")}, lg.Discard).clientConfig()
	assert.ErrorContains(t, err, "known_hosts")

	conf, err := NewSSH(SSHConfig{User: "ops", KeyPath: key, InsecureSkipHostKeyChecking: true}, lg.Discard).clientConfig()
	require.NoError(t, err)
	assert.Equal(t, "ops", conf.User)
	assert.Equal(t, DefaultDialTimeout, conf.Timeout)
}

func TestSSHRunUnreachableNode(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := NewSSH(SSHConfig{User: "ops", KeyPath: writeKey(t), InsecureSkipHostKeyChecking: true}, lg.Discard)
	res := s.Run(context.Background(), Command{Node: addr, Program: "/opt/plugins/noop.sh"})

	assert.Equal(t, protocol.ExitNotFound, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Contains(t, res.Stderr, "dial")
}

func TestSSHRunMissingUser(t *testing.T) {
	res := NewSSH(SSHConfig{}, lg.Discard).Run(context.Background(), Command{Node: "node-a", Program: "noop.sh"})
	assert.Equal(t, protocol.ExitNotFound, res.ExitCode)
	assert.Contains(t, res.Stderr, "user is required")
}
