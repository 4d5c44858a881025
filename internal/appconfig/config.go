package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/termdock/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string           `mapstructure:"state_dir" yaml:"state_dir"`
	Sessions      []SessionConfig  `mapstructure:"sessions" yaml:"sessions"`
	Controller    ControllerConfig `mapstructure:"controller" yaml:"controller"`
	Tmux          TmuxConfig       `mapstructure:"tmux" yaml:"tmux"`
	SSH           SSHConfig        `mapstructure:"ssh" yaml:"ssh"`
	Auth          AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// SessionConfig declares one named session.
type SessionConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Command string `mapstructure:"command" yaml:"command"`
	ViewTag string `mapstructure:"view_tag" yaml:"view_tag,omitempty"`
	// OnExit is a shell command run when the session's process exits.
	// The captured terminal output is fed to it on stdin.
	OnExit string `mapstructure:"on_exit" yaml:"on_exit,omitempty"`
	// ExpandEnv expands $VAR references in the command at first launch.
	ExpandEnv bool `mapstructure:"expand_env" yaml:"expand_env,omitempty"`
}

// ControllerConfig tunes the session controller.
type ControllerConfig struct {
	CaptureMaxLines int  `mapstructure:"capture_max_lines" yaml:"capture_max_lines"`
	DisableAudit    bool `mapstructure:"disable_audit" yaml:"disable_audit"`
}

// TmuxConfig configures the tmux view host.
type TmuxConfig struct {
	Binary     string `mapstructure:"binary" yaml:"binary"`
	SocketName string `mapstructure:"socket_name" yaml:"socket_name"`
	// DockSession names the detached session that owns all managed views.
	DockSession string `mapstructure:"dock_session" yaml:"dock_session"`
	// TargetSession names the user-facing session windows are linked into.
	TargetSession  string `mapstructure:"target_session" yaml:"target_session"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// SSHConfig configures the SSH control server.
type SSHConfig struct {
	Addr         string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath  string `mapstructure:"host_key_path" yaml:"host_key_path"`
	KeyStorePath string `mapstructure:"key_store_path" yaml:"key_store_path"`
	KeyDir       string `mapstructure:"key_dir" yaml:"key_dir"`
}

// AuthConfig configures auth storage and seed users.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// SeedUser seeds a user record in the auth store.
type SeedUser struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".termdock", "state"),
		Sessions: []SessionConfig{
			{Name: "shell", Command: "bash"},
		},
		Controller: ControllerConfig{
			CaptureMaxLines: schema.DefaultCaptureMaxLines,
		},
		Tmux: TmuxConfig{
			Binary:         "tmux",
			SocketName:     "termdock",
			DockSession:    "_termdock",
			TargetSession:  "",
			PollIntervalMS: 500,
		},
		SSH: SSHConfig{
			Addr:         ":27522",
			HostKeyPath:  filepath.Join(home, ".termdock", "ssh_host_key"),
			KeyStorePath: filepath.Join(home, ".termdock", "state", "ssh", "keys.bundle"),
			KeyDir:       filepath.Join(home, ".termdock", "state", "ssh", "keys"),
		},
		Auth: AuthConfig{
			UserFile: filepath.Join(home, ".termdock", "users.json"),
			SeedUsers: []SeedUser{
				{
					Username:     "admin",
					PasswordHash: "$2a$12$PyjGUD8qnJie1MULQVHJdu9zuS/juh5W5RtDUVHv5HFb.62gNnY/q",
					TOTPSecret:   "JBSWY3DPEHPK3PXP",
				},
			},
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termdock", "config.yaml"), nil
}
