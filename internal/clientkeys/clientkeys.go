// Package clientkeys stores the per-user SSH keypairs the CLI uses to
// authenticate against the control channel. Private keys are encrypted
// at rest with per-user data keys derived from a kryptograf key store.
package clientkeys

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

const (
	keyFile          = "key.enc"
	pubFile          = "key.pub"
	descriptorPrefix = "termdock:clientkey:"
)

// Store manages encrypted client key material.
type Store struct {
	storePath string
	keyDir    string
	log       pslog.Logger
}

// NewStore initializes the key store and ensures the root key exists.
func NewStore(storePath, keyDir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(storePath) == "" {
		return nil, fmt.Errorf("client key store path is required")
	}
	if strings.TrimSpace(keyDir) == "" {
		return nil, fmt.Errorf("client key directory is required")
	}
	if err := ensureKeyStore(storePath); err != nil {
		if logger != nil {
			logger.Warn("client key store ensure failed", "err", err)
		}
		return nil, err
	}
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("key_store", storePath, "key_dir", keyDir)
	}
	return &Store{storePath: storePath, keyDir: keyDir, log: logger}, nil
}

// ensureKeyStore creates or loads the key store and guarantees a root key.
func ensureKeyStore(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	store, err := keymgmt.LoadProto(path)
	if err != nil {
		return err
	}
	if _, err := store.EnsureRootKey(); err != nil {
		return err
	}
	return store.Commit()
}

// EnsureKey returns the user's public key, generating a keypair first if
// none exists.
func (s *Store) EnsureKey(username string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", errors.New("username is required")
	}
	if _, err := os.Stat(s.privateKeyPath(username)); err == nil {
		return s.LoadPublicKey(username)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	return s.writeKey(username, false)
}

// RotateKey replaces the user's keypair and its data key.
func (s *Store) RotateKey(username string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", errors.New("username is required")
	}
	return s.writeKey(username, true)
}

// RemoveKey deletes stored key material for the user.
func (s *Store) RemoveKey(username string) error {
	dir := s.userDir(username)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		s.warn("client key remove failed", "user", username, "err", err)
		return err
	}
	s.info("client key removed", "user", username)
	return nil
}

// LoadSigner decrypts the user's private key and wraps it as an ssh.Signer.
func (s *Store) LoadSigner(username string) (ssh.Signer, error) {
	material, root, err := s.material(username, false)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(s.privateKeyPath(username))
	if err != nil {
		s.warn("client key load failed", "user", username, "err", err)
		return nil, err
	}
	defer func() { _ = file.Close() }()
	reader, err := kryptograf.New(root).DecryptReader(file, material)
	if err != nil {
		s.warn("client key decrypt failed", "user", username, "err", err)
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	priv, err := ssh.ParseRawPrivateKey(plain)
	if err != nil {
		s.warn("client key parse failed", "user", username, "err", err)
		return nil, err
	}
	return ssh.NewSignerFromKey(priv)
}

// LoadPublicKey returns the stored public key in authorized_keys form.
func (s *Store) LoadPublicKey(username string) (string, error) {
	data, err := os.ReadFile(s.publicKeyPath(username))
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	signer, err := s.LoadSigner(username)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

func (s *Store) writeKey(username string, rotate bool) (string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	block, err := ssh.MarshalPrivateKey(crypto.PrivateKey(priv), username)
	if err != nil {
		return "", err
	}
	plain := pem.EncodeToMemory(block)

	material, root, err := s.material(username, rotate)
	if err != nil {
		return "", err
	}
	dir := s.userDir(username)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "key-*.enc")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		s.warn("client key write failed", "user", username, "err", err)
		return "", err
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fail(err)
	}
	writer, err := kryptograf.New(root).EncryptWriter(tmp, material)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(writer, bytes.NewReader(plain)); err != nil {
		_ = writer.Close()
		return fail(err)
	}
	if err := writer.Close(); err != nil {
		return fail(err)
	}
	_ = tmp.Close()
	if err := os.Rename(tmpPath, s.privateKeyPath(username)); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return "", err
	}
	pub := ssh.MarshalAuthorizedKey(signer.PublicKey())
	if err := os.WriteFile(s.publicKeyPath(username), pub, 0o644); err != nil {
		return "", err
	}
	action := "generated"
	if rotate {
		action = "rotated"
	}
	s.info("client key write ok", "user", username, "action", action)
	return strings.TrimSpace(string(pub)), nil
}

// material resolves the user's data key, minting a fresh one on rotation.
func (s *Store) material(username string, rotate bool) (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.storePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	descName := descriptorPrefix + username
	contextBytes := []byte(descName)
	var material keymgmt.Material
	if rotate {
		material, err = keymgmt.MintDEK(root, contextBytes)
		if err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
		if err := store.SetDescriptor(descName, material.Descriptor); err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
	} else {
		material, err = store.EnsureDescriptor(descName, root, contextBytes)
		if err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}

func (s *Store) userDir(username string) string {
	return filepath.Join(s.keyDir, username)
}

func (s *Store) privateKeyPath(username string) string {
	return filepath.Join(s.userDir(username), keyFile)
}

func (s *Store) publicKeyPath(username string) string {
	return filepath.Join(s.userDir(username), pubFile)
}

func (s *Store) info(msg string, kv ...any) {
	if s.log != nil {
		s.log.Info(msg, kv...)
	}
}

func (s *Store) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}
