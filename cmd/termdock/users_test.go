package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"pkt.systems/termdock/internal/appconfig"
	"pkt.systems/termdock/internal/auth"
)

func TestUsersAddRejectsInvalidUsername(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "BadUser", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for invalid username")
	}
}

func TestUsersAddAndDelete(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "alice.dev", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}

	store, err := auth.NewStore(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	user := findUser(store.Users(), "alice.dev")
	if user == nil {
		t.Fatalf("expected alice.dev in store")
	}
	if len(user.PubKeys) != 1 {
		t.Fatalf("expected enrolled client pubkey, got %v", user.PubKeys)
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "delete", "alice.dev"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	store, err = auth.NewStore(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if findUser(store.Users(), "alice.dev") != nil {
		t.Fatalf("expected alice.dev to be removed")
	}
	if _, err := os.Stat(filepath.Join(cfg.SSH.KeyDir, "alice.dev")); err == nil {
		t.Fatalf("expected client key material to be removed")
	}
}

func TestUsersRotateTOTP(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "bob", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}

	store, err := auth.NewStore(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	orig := findUser(store.Users(), "bob")
	if orig == nil {
		t.Fatalf("expected bob user")
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "rotate-totp", "bob"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("rotate-totp: %v", err)
	}

	store, err = auth.NewStore(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	updated := findUser(store.Users(), "bob")
	if updated == nil {
		t.Fatalf("expected bob user after rotate")
	}
	if updated.TOTPSecret == orig.TOTPSecret {
		t.Fatalf("expected TOTP secret to change")
	}
}

func TestUsersChpasswd(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "carol", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}

	store, err := auth.NewStore(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	orig := findUser(store.Users(), "carol")
	if orig == nil {
		t.Fatalf("expected carol user")
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "chpasswd", "carol", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chpasswd: %v", err)
	}

	store, err = auth.NewStore(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	updated := findUser(store.Users(), "carol")
	if updated == nil {
		t.Fatalf("expected carol user after chpasswd")
	}
	if updated.PasswordHash == orig.PasswordHash {
		t.Fatalf("expected password hash to change")
	}
}

func TestUsersRotateKeyChangesClientKey(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "dave", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "rotate-key", "dave"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("rotate-key: %v", err)
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = t.TempDir()
	cfg.SSH.HostKeyPath = filepath.Join(t.TempDir(), "host_key")
	cfg.SSH.KeyStorePath = filepath.Join(t.TempDir(), "keys.bundle")
	cfg.SSH.KeyDir = filepath.Join(t.TempDir(), "keys")
	cfg.Auth.UserFile = filepath.Join(t.TempDir(), "users.json")
	cfg.Auth.SeedUsers = nil
	path := filepath.Join(t.TempDir(), "config.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadConfigFromPath(t *testing.T, path string) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func findUser(users []auth.User, username string) *auth.User {
	for _, user := range users {
		if user.Username == username {
			copied := user
			return &copied
		}
	}
	return nil
}
