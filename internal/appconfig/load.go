package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("controller.capture_max_lines", cfg.Controller.CaptureMaxLines)
	v.SetDefault("controller.disable_audit", cfg.Controller.DisableAudit)
	v.SetDefault("tmux.binary", cfg.Tmux.Binary)
	v.SetDefault("tmux.socket_name", cfg.Tmux.SocketName)
	v.SetDefault("tmux.dock_session", cfg.Tmux.DockSession)
	v.SetDefault("tmux.target_session", cfg.Tmux.TargetSession)
	v.SetDefault("tmux.poll_interval_ms", cfg.Tmux.PollIntervalMS)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.key_store_path", cfg.SSH.KeyStorePath)
	v.SetDefault("ssh.key_dir", cfg.SSH.KeyDir)
	v.SetDefault("auth.user_file", cfg.Auth.UserFile)
	v.SetDefault("auth.seed_users", cfg.Auth.SeedUsers)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.IsSet("sessions") {
			return Config{}, fmt.Errorf("sessions is required for config_version %d", CurrentConfigVersion)
		}
		// Sessions come only from the file once one is declared.
		cfg.Sessions = nil
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateSessions(cfg.Sessions); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateSessions(sessions []SessionConfig) error {
	if len(sessions) == 0 {
		return fmt.Errorf("at least one session must be configured")
	}
	seen := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		name := strings.TrimSpace(sess.Name)
		if name == "" {
			return fmt.Errorf("session name must not be empty")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate session name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Tmux.Binary = expandEnv(cfg.Tmux.Binary)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.KeyStorePath = expandEnv(cfg.SSH.KeyStorePath)
	cfg.SSH.KeyDir = expandEnv(cfg.SSH.KeyDir)
	cfg.Auth.UserFile = expandEnv(cfg.Auth.UserFile)
	// Session commands with expand_env set are expanded at first
	// launch, not here, so the daemon's environment at launch time
	// wins over its environment at config load.
	for i := range cfg.Sessions {
		cfg.Sessions[i].OnExit = expandEnv(cfg.Sessions[i].OnExit)
	}
}

// ExpandEnv expands $VAR references, keeping unknown variables verbatim.
func ExpandEnv(value string) string {
	return expandEnv(value)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
