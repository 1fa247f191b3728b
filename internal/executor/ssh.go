package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/errgroup"

	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/pkg/lg"
)

const DefaultDialTimeout = 10 * time.Second

type SSHConfig struct {
	User                        string
	Port                        string
	KeyPath                     string
	Passphrase                  string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	DialTimeout                 time.Duration
	DialRetries                 uint64
	Interpreter                 string
}

// SSH runs plugins on the target node over an SSH session. The plugin path
// is resolved on the remote host.
type SSH struct {
	cfg    SSHConfig
	logger lg.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewSSH(cfg SSHConfig, logger lg.Logger) *SSH {
	if logger == nil {
		logger = lg.Discard
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &SSH{cfg: cfg, logger: logger, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *SSH) Run(ctx context.Context, cmd Command) protocol.RawResult {
	addr, err := s.address(cmd.Node)
	if err != nil {
		return protocol.RawResult{Stderr: err.Error(), ExitCode: protocol.ExitNotFound}
	}

	res, err := s.breaker(addr).Execute(func() (any, error) {
		return s.open(ctx, addr)
	})
	if err != nil {
		s.logger.Warn("ssh session unavailable", lg.String("addr", addr), lg.Err(err))
		if ctx.Err() != nil {
			return protocol.RawResult{Stderr: err.Error(), ExitCode: protocol.ExitTimeout}
		}
		return protocol.RawResult{Stderr: err.Error(), ExitCode: protocol.ExitNotFound}
	}
	conn := res.(*sshConn)
	defer conn.Close()

	var stdout, stderr bytes.Buffer
	sess := conn.session
	sess.Stdin = bytes.NewReader(cmd.Stdin)
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	var runErr error
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		runErr = sess.Run(joinCommand(s.cfg.Interpreter, cmd.Program))
		return nil
	})
	g.Go(func() error {
		select {
		case <-done:
			return nil
		case <-gctx.Done():
			_ = sess.Signal(ssh.SIGKILL)
			_ = sess.Close()
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return protocol.RawResult{
			Stderr:   fmt.Sprintf("plugin timed out: %v\n%s", err, stderr.String()),
			ExitCode: protocol.ExitTimeout,
		}
	}

	return protocol.RawResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: sshExitCode(runErr),
	}
}

func sshExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitStatus(); code > 0 {
			return code
		}
		return 1
	}
	return protocol.ExitNotFound
}

type sshConn struct {
	client  *ssh.Client
	session *ssh.Session
}

func (c *sshConn) Close() error {
	_ = c.session.Close()
	return c.client.Close()
}

// open dials addr, retrying according to DialRetries, and starts a session.
func (s *SSH) open(ctx context.Context, addr string) (*sshConn, error) {
	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	client, err := backoff.RetryWithData(func() (*ssh.Client, error) {
		return s.dial(ctx, addr, config)
	}, dialBackOff(ctx, s.cfg.DialRetries))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("new session: %w", err)
	}
	return &sshConn{client: client, session: session}, nil
}

func (s *SSH) dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (s *SSH) breaker(addr string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[addr]
	if !ok {
		cb = newBreaker(addr)
		s.breakers[addr] = cb
	}
	return cb
}

func (s *SSH) address(node string) (string, error) {
	host := strings.TrimSpace(node)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}
	if s.cfg.Port != "" {
		return net.JoinHostPort(host, s.cfg.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, "22"), nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	if s.cfg.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}
	signer, err := s.signer()
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !s.cfg.InsecureSkipHostKeyChecking {
		path := s.cfg.KnownHostsPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve known_hosts: %w", err)
			}
			path = filepath.Join(home, ".ssh", "known_hosts")
		}
		hostKeyCallback, err = knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
		}
	}

	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.cfg.DialTimeout,
		BannerCallback:  func(string) error { return nil },
	}, nil
}

func (s *SSH) signer() (ssh.Signer, error) {
	if s.cfg.KeyPath == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}
	key, err := os.ReadFile(s.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}
	if s.cfg.Passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(s.cfg.Passphrase))
	}
	return ssh.ParsePrivateKey(key)
}
