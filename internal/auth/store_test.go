package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"pkt.systems/termdock/internal/appconfig"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStore(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreRejectsInvalidUsername(t *testing.T) {
	store := newTestStore(t)
	if err := store.AddUser(User{
		Username:     "Alice",
		PasswordHash: "hash",
		TOTPSecret:   "secret",
	}); err == nil {
		t.Fatalf("expected invalid username error")
	}
}

func TestStoreRejectsInvalidSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	_, err := NewStore(path, []appconfig.SeedUser{
		{Username: "BadUser", PasswordHash: "hash", TOTPSecret: "secret"},
	}, nil)
	if err == nil {
		t.Fatalf("expected error for invalid seed user")
	}
}

func TestStoreAuthenticate(t *testing.T) {
	store := newTestStore(t)
	secret := "JBSWY3DPEHPK3PXP"
	if err := store.AddUser(User{
		Username:     "alice",
		PasswordHash: mustHash(t, "pass"),
		TOTPSecret:   secret,
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if err := store.Authenticate("alice", "pass", mustTOTP(t, secret)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := store.Authenticate("alice", "wrong", mustTOTP(t, secret)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := store.Authenticate("alice", "pass", "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad totp, got %v", err)
	}
	if err := store.Authenticate("nobody", "pass", mustTOTP(t, secret)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user must report invalid credentials, got %v", err)
	}
}

func TestStorePubKeysCRUD(t *testing.T) {
	store := newTestStore(t)
	if err := store.AddUser(User{
		Username:     "alice",
		PasswordHash: "hash",
		TOTPSecret:   "secret",
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	signer := mustSigner(t)
	pubKey := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))

	if _, err := store.AddPubKey("alice", pubKey); err != nil {
		t.Fatalf("add pubkey: %v", err)
	}
	if _, err := store.AddPubKey("alice", pubKey); err == nil {
		t.Fatalf("expected duplicate pubkey rejection")
	}
	keys, err := store.ListPubKeys("alice")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list pubkeys: %v %v", keys, err)
	}
	ok, err := store.HasPubKey("alice", signer.PublicKey())
	if err != nil || !ok {
		t.Fatalf("expected stored pubkey to match: %v %v", ok, err)
	}
	if err := store.RemovePubKey("alice", 1); err != nil {
		t.Fatalf("remove pubkey: %v", err)
	}
	ok, err = store.HasPubKey("alice", signer.PublicKey())
	if err != nil || ok {
		t.Fatalf("expected pubkey removed: %v %v", ok, err)
	}
}

func TestStoreReloadsExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writer, err := NewStore(path, nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reader, err := NewStore(path, nil, nil)
	if err != nil {
		t.Fatalf("new store reader: %v", err)
	}
	secret := "JBSWY3DPEHPK3PXP"
	if err := writer.AddUser(User{
		Username:     "bob",
		PasswordHash: mustHash(t, "pass"),
		TOTPSecret:   secret,
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if err := reader.Authenticate("bob", "pass", mustTOTP(t, secret)); err != nil {
		t.Fatalf("authenticate after external add: %v", err)
	}
	if err := writer.SetPassword("bob", mustHash(t, "new-pass")); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := reader.Authenticate("bob", "new-pass", mustTOTP(t, secret)); err != nil {
		t.Fatalf("authenticate after external password change: %v", err)
	}
	if err := writer.DeleteUser("bob"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := reader.Authenticate("bob", "new-pass", mustTOTP(t, secret)); err == nil {
		t.Fatalf("expected deleted user login to fail")
	}
}

func TestStoreRotatesTOTP(t *testing.T) {
	store := newTestStore(t)
	secretA := "JBSWY3DPEHPK3PXP"
	if err := store.AddUser(User{
		Username:     "alice",
		PasswordHash: mustHash(t, "pass"),
		TOTPSecret:   secretA,
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	secretB := "KRSXG5DSNFXGOIDB"
	if err := store.SetTOTP("alice", secretB); err != nil {
		t.Fatalf("set totp: %v", err)
	}
	if err := store.ValidateTOTP("alice", mustTOTP(t, secretB)); err != nil {
		t.Fatalf("validate rotated totp: %v", err)
	}
	if err := store.ValidateTOTP("alice", mustTOTP(t, secretA)); err == nil {
		t.Fatalf("expected old totp to fail")
	}
}

func mustSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func mustTOTP(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate totp: %v", err)
	}
	return code
}
