// Package sshserver exposes the termdock control channel over SSH.
// Clients authenticate with a public key followed by a TOTP challenge,
// then either run a single command in exec mode or land in a small
// interactive prompt.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/termdock/internal/command"
)

// Server serves control commands over SSH.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	Handler     *command.Handler
	AuthStore   LoginAuthStore
	Prompt      string
	logger      pslog.Logger
}

// LoginAuthStore validates SSH login credentials.
type LoginAuthStore interface {
	HasPubKey(username string, key ssh.PublicKey) (bool, error)
	ValidateTOTP(username, totpCode string) error
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Prompt == "" {
		s.Prompt = "termdock> "
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.AuthStore == nil {
		return errors.New("auth store is required for SSH")
	}
	if s.Handler == nil {
		return errors.New("command handler is required for SSH")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:                       s.Addr,
		Handler:                    s.handleSession,
		PublicKeyHandler:           s.handlePublicKey,
		KeyboardInteractiveHandler: s.handleKeyboardInteractive,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	fingerprint := ssh.FingerprintSHA256(key)
	remote := remoteAddr(ctx)
	username := ctx.User()
	if username == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing user", "remote", remote, "fingerprint", fingerprint)
		return false
	}
	log = log.With("user", username, "remote", remote, "fingerprint", fingerprint)
	if id := ctx.SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}
	ok, err := s.AuthStore.HasPubKey(username, key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	ctx.SetValue(loginPubKeyOK, true)
	log.Info("ssh pubkey accepted")
	// Returning false forces the second factor before login completes.
	return false
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	if username := ctx.User(); username != "" {
		log = log.With("user", username, "remote", remoteAddr(ctx))
	}
	answers, err := challenger(ctx.User(), "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if err := s.AuthStore.ValidateTOTP(ctx.User(), answers[0]); err != nil {
		log.Warn("ssh totp rejected", "reason", "invalid code", "err", err)
		return false
	}
	log.Info("ssh totp accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	username := sess.User()
	if username == "" {
		log.Info("ssh session rejected", "reason", "missing user", "remote", sess.RemoteAddr().String())
		_, _ = io.WriteString(sess, "missing user\n")
		return
	}
	log = log.With("user", username, "remote", sess.RemoteAddr().String())
	if id := sess.Context().SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}
	ctx := pslog.ContextWithLogger(sess.Context(), log)

	if args := sess.Command(); len(args) > 0 {
		s.handleExec(ctx, sess, username, args)
		return
	}

	_, _, hasPty := sess.Pty()
	log.Info("ssh session opened", "mode", "interactive", "pty", hasPty)
	repl := newREPL(sess, s.Handler, username, s.Prompt, hasPty)
	_ = repl.Run(ctx)
	log.Info("ssh session closed")
}

// handleExec runs a single control command and maps its outcome to the
// process exit status.
func (s *Server) handleExec(ctx context.Context, sess gliderssh.Session, username string, args []string) {
	line := strings.Join(args, " ")
	handled, err := s.Handler.Handle(ctx, username, sess, line)
	if !handled {
		err = fmt.Errorf("unknown command: %s", line)
	}
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "error: %v\n", err)
		_ = sess.Exit(1)
		return
	}
	_ = sess.Exit(0)
}
