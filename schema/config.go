package schema

// ControllerConfig defines limits and toggles for the session controller.
type ControllerConfig struct {
	// CaptureMaxLines caps the output captured from a view on process exit.
	CaptureMaxLines int
	// DisableAuditLogging disables audit trail debug logs for toggles.
	DisableAuditLogging bool
}

// DefaultCaptureMaxLines is the default cap on captured exit output.
const DefaultCaptureMaxLines = 2000

// NormalizeControllerConfig applies defaults to the config.
func NormalizeControllerConfig(cfg ControllerConfig) ControllerConfig {
	if cfg.CaptureMaxLines <= 0 {
		cfg.CaptureMaxLines = DefaultCaptureMaxLines
	}
	return cfg
}
