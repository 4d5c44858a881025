package clientkeys

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "keys.bundle"), filepath.Join(dir, "keys"), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestEnsureKeyGeneratesOnce(t *testing.T) {
	store := newTestStore(t)

	pub, err := store.EnsureKey("alice")
	if err != nil {
		t.Fatalf("ensure key: %v", err)
	}
	if !strings.HasPrefix(pub, "ssh-ed25519") {
		t.Fatalf("expected ed25519 pub key, got %q", pub)
	}

	again, err := store.EnsureKey("alice")
	if err != nil {
		t.Fatalf("ensure key again: %v", err)
	}
	if again != pub {
		t.Fatalf("ensure regenerated an existing key")
	}

	signer, err := store.LoadSigner("alice")
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	derived := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))
	if derived != pub {
		t.Fatalf("signer public key mismatch")
	}
}

func TestRotateKeyReplacesKeypair(t *testing.T) {
	store := newTestStore(t)

	pub, err := store.EnsureKey("alice")
	if err != nil {
		t.Fatalf("ensure key: %v", err)
	}
	rotated, err := store.RotateKey("alice")
	if err != nil {
		t.Fatalf("rotate key: %v", err)
	}
	if rotated == pub {
		t.Fatalf("rotation kept the old key")
	}
	if _, err := store.LoadSigner("alice"); err != nil {
		t.Fatalf("load signer after rotation: %v", err)
	}
}

func TestRemoveKey(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.EnsureKey("bob"); err != nil {
		t.Fatalf("ensure key: %v", err)
	}
	if err := store.RemoveKey("bob"); err != nil {
		t.Fatalf("remove key: %v", err)
	}
	if _, err := store.LoadSigner("bob"); err == nil || !os.IsNotExist(err) {
		t.Fatalf("expected os.ErrNotExist after removal, got %v", err)
	}
	if err := store.RemoveKey("bob"); err != nil {
		t.Fatalf("removing a missing key must be a no-op, got %v", err)
	}
}
