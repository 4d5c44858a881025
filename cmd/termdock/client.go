package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/termdock/internal/appconfig"
	"pkt.systems/termdock/internal/clientkeys"
)

// runControl executes one control command against the daemon's SSH
// channel and streams its output.
func runControl(ctx context.Context, cfg appconfig.Config, username, command string, in io.Reader, out, errOut io.Writer) error {
	client, err := dialControl(ctx, cfg, username, in, errOut)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()
	session.Stdout = out
	session.Stderr = errOut

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()
	select {
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return nil
	case err := <-done:
		return err
	}
}

func dialControl(ctx context.Context, cfg appconfig.Config, username string, in io.Reader, errOut io.Writer) (*ssh.Client, error) {
	keys, err := clientkeys.NewStore(cfg.SSH.KeyStorePath, cfg.SSH.KeyDir, pslog.Ctx(ctx))
	if err != nil {
		return nil, err
	}
	signer, err := keys.LoadSigner(username)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no client key for %q; enroll with: termdock users add %s", username, username)
		}
		return nil, err
	}

	prompts := bufio.NewReader(in)
	clientCfg := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i, question := range questions {
					_, _ = fmt.Fprint(errOut, question)
					line, err := prompts.ReadString('\n')
					if err != nil && line == "" {
						return nil, err
					}
					answers[i] = strings.TrimSpace(line)
				}
				return answers, nil
			}),
		},
		HostKeyCallback: trustOnFirstUse(filepath.Join(cfg.StateDir, "control_host_key.pub")),
		Timeout:         10 * time.Second,
	}

	addr := cfg.SSH.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return ssh.Dial("tcp", addr, clientCfg)
}

// trustOnFirstUse pins the daemon's host key in a file under the state
// dir. First contact records the key; later mismatches fail the dial.
func trustOnFirstUse(path string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		presented := ssh.MarshalAuthorizedKey(key)
		stored, err := os.ReadFile(path)
		if err == nil {
			if !bytes.Equal(bytes.TrimSpace(stored), bytes.TrimSpace(presented)) {
				return fmt.Errorf("host key mismatch for %s; remove %s if the daemon key was rotated", hostname, path)
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return err
		}
		return os.WriteFile(path, presented, 0o600)
	}
}

func defaultUsername() string {
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}
	return os.Getenv("USER")
}

func requireUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("username is required; pass --user")
	}
	return username, nil
}
