package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("unexpected config version %d", cfg.ConfigVersion)
	}
	if cfg.Tmux.Binary != "tmux" || cfg.Tmux.DockSession != "_termdock" {
		t.Fatalf("tmux defaults not applied: %+v", cfg.Tmux)
	}
	if len(cfg.Sessions) != 1 || cfg.Sessions[0].Name != "shell" {
		t.Fatalf("default sessions not applied: %+v", cfg.Sessions)
	}
}

func TestLoadParsesSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `config_version: 1
sessions:
  - name: shell
    command: bash
  - name: git
    command: lazygit
    view_tag: my-git
    on_exit: notify-send done
tmux:
  socket_name: custom
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %+v", cfg.Sessions)
	}
	if cfg.Sessions[1].ViewTag != "my-git" || cfg.Sessions[1].OnExit != "notify-send done" {
		t.Fatalf("session fields not parsed: %+v", cfg.Sessions[1])
	}
	if cfg.Tmux.SocketName != "custom" {
		t.Fatalf("tmux override not applied: %+v", cfg.Tmux)
	}
	if cfg.Tmux.Binary != "tmux" {
		t.Fatalf("tmux default lost on partial override: %+v", cfg.Tmux)
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `config_version: 99
sessions:
  - name: shell
    command: bash
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestLoadRejectsDuplicateSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `config_version: 1
sessions:
  - name: shell
    command: bash
  - name: shell
    command: zsh
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TERMDOCK_TEST_CMD", "htop")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `config_version: 1
state_dir: /tmp/$TERMDOCK_TEST_CMD
sessions:
  - name: mon
    command: $TERMDOCK_TEST_CMD
    expand_env: true
  - name: raw
    command: $TERMDOCK_TEST_CMD
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateDir != "/tmp/htop" {
		t.Fatalf("state_dir not expanded: %q", cfg.StateDir)
	}
	// Session commands stay verbatim here; expansion happens at launch
	// for sessions that opt in.
	if cfg.Sessions[0].Command != "$TERMDOCK_TEST_CMD" || cfg.Sessions[1].Command != "$TERMDOCK_TEST_CMD" {
		t.Fatalf("session commands expanded at load: %+v", cfg.Sessions)
	}
	if ExpandEnv(cfg.Sessions[0].Command) != "htop" {
		t.Fatalf("ExpandEnv did not resolve command: %q", ExpandEnv(cfg.Sessions[0].Command))
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("WriteDefault overwrite: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load written default: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("written default not loadable: %+v", cfg)
	}
}
