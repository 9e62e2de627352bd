package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// KarmaConfig tunes the karma/MANA detector.
type KarmaConfig struct {
	SSIDThreshold int `yaml:"ssid_threshold" json:"ssid_threshold"`   // distinct SSIDs before flagging
	HighThreshold int `yaml:"high_threshold" json:"high_threshold"`   // distinct SSIDs that escalate to high
	WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`   // sliding window for SSID counting
	MaxGapSeconds int `yaml:"max_gap_seconds" json:"max_gap_seconds"` // longest sighting gap still counted as continuous presence
}

// Window returns the karma sliding window as a duration.
func (k KarmaConfig) Window() time.Duration {
	return time.Duration(k.WindowSeconds) * time.Second
}

// MaxGap returns the continuity gap as a duration.
func (k KarmaConfig) MaxGap() time.Duration {
	return time.Duration(k.MaxGapSeconds) * time.Second
}

// EvilTwinConfig tunes the evil-twin detector.
type EvilTwinConfig struct {
	DowngradeSeverity   string `yaml:"downgrade_severity" json:"downgrade_severity"`       // pair with mismatched security
	OUIMismatchSeverity string `yaml:"oui_mismatch_severity" json:"oui_mismatch_severity"` // equal security, different vendor
}

// PineappleWeights are the per-signal contributions to the pineapple score.
type PineappleWeights struct {
	RogueOUI     float64 `yaml:"rogue_oui" json:"rogue_oui"`
	ChannelChurn float64 `yaml:"channel_churn" json:"channel_churn"`
	Colocation   float64 `yaml:"colocation" json:"colocation"`
	SSIDPattern  float64 `yaml:"ssid_pattern" json:"ssid_pattern"`
}

// PineappleConfig tunes the rogue-hardware heuristic scorer. Weights and
// bands are configuration, not constants: false-positive tuning in the field
// is expected.
type PineappleConfig struct {
	RogueOUIs          []string         `yaml:"rogue_ouis" json:"rogue_ouis"`
	SSIDPatterns       []string         `yaml:"ssid_patterns" json:"ssid_patterns"`     // substring matches, lowercased
	ChurnThreshold     int              `yaml:"churn_threshold" json:"churn_threshold"` // distinct channels within the window
	ChurnWindowSeconds int              `yaml:"churn_window_seconds" json:"churn_window_seconds"`
	Weights            PineappleWeights `yaml:"weights" json:"weights"`
	MediumScore        float64          `yaml:"medium_score" json:"medium_score"` // low-water mark: below this, no finding
	HighScore          float64          `yaml:"high_score" json:"high_score"`
	CriticalScore      float64          `yaml:"critical_score" json:"critical_score"`
}

// ChurnWindow returns the churn measurement window as a duration.
func (p PineappleConfig) ChurnWindow() time.Duration {
	return time.Duration(p.ChurnWindowSeconds) * time.Second
}

// StoreConfig bounds the observation store.
type StoreConfig struct {
	RetentionSeconds  int `yaml:"retention_seconds" json:"retention_seconds"`     // lastSeen within this counts as active
	StaleAfterSeconds int `yaml:"stale_after_seconds" json:"stale_after_seconds"` // lastSeen older than this is evicted
	ChannelHistoryCap int `yaml:"channel_history_cap" json:"channel_history_cap"` // entries kept per BSSID
	MaxNetworks       int `yaml:"max_networks" json:"max_networks"`               // hard cap on tracked BSSIDs
}

// Retention returns the active-network window as a duration.
func (s StoreConfig) Retention() time.Duration {
	return time.Duration(s.RetentionSeconds) * time.Second
}

// StaleAfter returns the eviction threshold as a duration.
func (s StoreConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterSeconds) * time.Second
}

// EngineConfig tunes the correlation engine.
type EngineConfig struct {
	GraceCycles int `yaml:"grace_cycles" json:"grace_cycles"` // unconfirmed cycles before auto-resolve
	AuditCap    int `yaml:"audit_cap" json:"audit_cap"`       // resolved findings retained for audit
}

// Config is the full recognized configuration surface of the service.
type Config struct {
	HTTPAddr        string          `yaml:"http_addr" json:"http_addr"`
	NATSURL         string          `yaml:"nats_url" json:"nats_url"`
	ScanSubject     string          `yaml:"scan_subject" json:"scan_subject"`
	FindingsSubject string          `yaml:"findings_subject" json:"findings_subject"`
	LogLevel        string          `yaml:"log_level" json:"log_level"`
	Karma           KarmaConfig     `yaml:"karma" json:"karma"`
	EvilTwin        EvilTwinConfig  `yaml:"evil_twin" json:"evil_twin"`
	Pineapple       PineappleConfig `yaml:"pineapple" json:"pineapple"`
	Store           StoreConfig     `yaml:"store" json:"store"`
	Engine          EngineConfig    `yaml:"engine" json:"engine"`
}

// Default returns the configuration used when no file or override supplies a
// value. Thresholds are starting points, expected to be tuned per site.
func Default() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		NATSURL:         "nats://localhost:4222",
		ScanSubject:     "scans.raw",
		FindingsSubject: "rfsentry.findings",
		LogLevel:        "info",
		Karma: KarmaConfig{
			SSIDThreshold: 5,
			HighThreshold: 10,
			WindowSeconds: 600,
			MaxGapSeconds: 120,
		},
		EvilTwin: EvilTwinConfig{
			DowngradeSeverity:   "high",
			OUIMismatchSeverity: "medium",
		},
		Pineapple: PineappleConfig{
			// Prefixes seen on common rogue-AP hardware (Hak5, GL.iNet,
			// Alfa, Raspberry Pi).
			RogueOUIs: []string{
				"00:13:37",
				"00:c0:ca",
				"94:83:c4",
				"b8:27:eb",
				"dc:a6:32",
				"e4:5f:01",
			},
			SSIDPatterns: []string{
				"pineapple",
				"openwrt",
				"linksys",
				"free wifi",
				"free_wifi",
				"attwifi",
				"xfinitywifi",
			},
			ChurnThreshold:     5,
			ChurnWindowSeconds: 300,
			Weights: PineappleWeights{
				RogueOUI:     0.5,
				ChannelChurn: 0.3,
				Colocation:   0.2,
				SSIDPattern:  0.2,
			},
			MediumScore:   0.3,
			HighScore:     0.5,
			CriticalScore: 0.7,
		},
		Store: StoreConfig{
			RetentionSeconds:  900,
			StaleAfterSeconds: 1800,
			ChannelHistoryCap: 32,
			MaxNetworks:       4096,
		},
		Engine: EngineConfig{
			GraceCycles: 3,
			AuditCap:    1024,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays RFSENTRY_* environment variables onto the config.
func (c *Config) ApplyEnv() {
	c.HTTPAddr = getEnv("RFSENTRY_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = getEnv("RFSENTRY_NATS_URL", c.NATSURL)
	c.ScanSubject = getEnv("RFSENTRY_SCAN_SUBJECT", c.ScanSubject)
	c.FindingsSubject = getEnv("RFSENTRY_FINDINGS_SUBJECT", c.FindingsSubject)
	c.LogLevel = getEnv("RFSENTRY_LOG_LEVEL", c.LogLevel)
	c.Karma.SSIDThreshold = getEnvInt("RFSENTRY_KARMA_SSID_THRESHOLD", c.Karma.SSIDThreshold)
	c.Karma.WindowSeconds = getEnvInt("RFSENTRY_KARMA_WINDOW_SEC", c.Karma.WindowSeconds)
	c.Store.RetentionSeconds = getEnvInt("RFSENTRY_RETENTION_SEC", c.Store.RetentionSeconds)
	c.Store.MaxNetworks = getEnvInt("RFSENTRY_MAX_NETWORKS", c.Store.MaxNetworks)
	c.Engine.GraceCycles = getEnvInt("RFSENTRY_GRACE_CYCLES", c.Engine.GraceCycles)
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Karma.SSIDThreshold < 2 {
		return &ValidationError{Field: "karma.ssid_threshold", Message: "must be at least 2"}
	}
	if c.Karma.HighThreshold <= c.Karma.SSIDThreshold {
		return &ValidationError{Field: "karma.high_threshold", Message: "must exceed ssid_threshold"}
	}
	if c.Karma.WindowSeconds <= 0 {
		return &ValidationError{Field: "karma.window_seconds", Message: "must be positive"}
	}
	if c.Karma.MaxGapSeconds <= 0 {
		return &ValidationError{Field: "karma.max_gap_seconds", Message: "must be positive"}
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"evil_twin.downgrade_severity", c.EvilTwin.DowngradeSeverity},
		{"evil_twin.oui_mismatch_severity", c.EvilTwin.OUIMismatchSeverity},
	} {
		if !validSeverities[field.value] {
			return &ValidationError{Field: field.name, Message: "invalid severity, must be low/medium/high/critical"}
		}
	}
	if c.Pineapple.ChurnThreshold <= 0 {
		return &ValidationError{Field: "pineapple.churn_threshold", Message: "must be positive"}
	}
	if c.Pineapple.MediumScore <= 0 || c.Pineapple.HighScore <= c.Pineapple.MediumScore || c.Pineapple.CriticalScore <= c.Pineapple.HighScore {
		return &ValidationError{Field: "pineapple", Message: "score bands must be positive and strictly increasing"}
	}
	if c.Store.RetentionSeconds <= 0 {
		return &ValidationError{Field: "store.retention_seconds", Message: "must be positive"}
	}
	if c.Store.StaleAfterSeconds < c.Store.RetentionSeconds {
		return &ValidationError{Field: "store.stale_after_seconds", Message: "must not be shorter than retention_seconds"}
	}
	if c.Store.ChannelHistoryCap <= 0 {
		return &ValidationError{Field: "store.channel_history_cap", Message: "must be positive"}
	}
	if c.Store.MaxNetworks <= 0 {
		return &ValidationError{Field: "store.max_networks", Message: "must be positive"}
	}
	if c.Engine.GraceCycles <= 0 {
		return &ValidationError{Field: "engine.grace_cycles", Message: "must be positive"}
	}
	if c.Engine.AuditCap <= 0 {
		return &ValidationError{Field: "engine.audit_cap", Message: "must be positive"}
	}
	return nil
}

var validSeverities = map[string]bool{
	"low": true, "medium": true, "high": true, "critical": true,
}

// ValidationError reports a configuration field the service refuses to start with.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
