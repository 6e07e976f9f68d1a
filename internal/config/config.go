package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const gib = 1 << 30

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr       string
	TickInterval     time.Duration
	AllowedOrigins   []string
	GPU              string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	SysfsRoot        string
	ProcRoot         string
	WS               WebsocketConfig
	Alarm            AlarmConfig
	Watch            WatchConfig
	VMLogInterval    time.Duration
	MaxBandwidthBps  float64
	DBPath           string
	WebhookURL       string
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// AlarmConfig groups the thresholds driving the alarm pipeline.
type AlarmConfig struct {
	// VRAMWarnThresholdBytes is the dedicated-memory floor; readings below
	// it count as "job likely interrupted".
	VRAMWarnThresholdBytes uint64
	// VRAMTriggerCount is the per-condition debounce of the VRAM monitor.
	VRAMTriggerCount int
	// WarnCountThreshold is the controller-level debounce over the
	// aggregated condition.
	WarnCountThreshold int
	// CommittedWarnThresholdBytes drives the commit-charge risk display
	// only; it never feeds the alarm.
	CommittedWarnThresholdBytes uint64
	// WAVPath is the alarm clip. Empty means terminal-bell only.
	WAVPath string
}

// WatchConfig configures the output-directory stall detector.
type WatchConfig struct {
	Dir           string
	DailySubdir   bool
	CheckInterval time.Duration
	WarnCycles    int
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       ":8080",
		TickInterval:     1500 * time.Millisecond,
		AllowedOrigins:   []string{"*"},
		GPU:              "auto",
		EnablePrometheus: false,
		EnablePprof:      false,
		LogLevel:         slog.LevelInfo,
		SysfsRoot:        "/sys",
		ProcRoot:         "/proc",
		WS: WebsocketConfig{
			MaxClients:   1024,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
		Alarm: AlarmConfig{
			VRAMWarnThresholdBytes:      8 * gib,
			VRAMTriggerCount:            1,
			WarnCountThreshold:          7,
			CommittedWarnThresholdBytes: 80 * gib,
		},
		Watch: WatchConfig{
			DailySubdir:   true,
			CheckInterval: 30 * time.Second,
			WarnCycles:    2,
		},
		VMLogInterval:   30 * time.Minute,
		MaxBandwidthBps: 100 * (1 << 20),
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_LISTEN_ADDR")); value != "" {
		cfg.ListenAddr = value
	}

	if err := loadDuration("STALLWATCH_TICK_INTERVAL", &cfg.TickInterval); err != nil {
		return Config{}, err
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_ALLOWED_ORIGINS")); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("STALLWATCH_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_GPU")); value != "" {
		cfg.GPU = value
	}

	if err := loadBool("STALLWATCH_ENABLE_PROMETHEUS", &cfg.EnablePrometheus); err != nil {
		return Config{}, err
	}
	if err := loadBool("STALLWATCH_ENABLE_PPROF", &cfg.EnablePprof); err != nil {
		return Config{}, err
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse STALLWATCH_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_SYSFS_ROOT")); value != "" {
		cfg.SysfsRoot = value
	}
	if value := strings.TrimSpace(os.Getenv("STALLWATCH_PROC_ROOT")); value != "" {
		cfg.ProcRoot = value
	}

	if err := loadPositiveInt("STALLWATCH_WS_MAX_CLIENTS", &cfg.WS.MaxClients); err != nil {
		return Config{}, err
	}
	if err := loadDuration("STALLWATCH_WS_WRITE_TIMEOUT", &cfg.WS.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := loadDuration("STALLWATCH_WS_READ_TIMEOUT", &cfg.WS.ReadTimeout); err != nil {
		return Config{}, err
	}

	if err := loadBytes("STALLWATCH_VRAM_WARN_THRESHOLD_BYTES", &cfg.Alarm.VRAMWarnThresholdBytes); err != nil {
		return Config{}, err
	}
	if err := loadPositiveInt("STALLWATCH_VRAM_TRIGGER_COUNT", &cfg.Alarm.VRAMTriggerCount); err != nil {
		return Config{}, err
	}
	if err := loadPositiveInt("STALLWATCH_WARN_COUNT_THRESHOLD", &cfg.Alarm.WarnCountThreshold); err != nil {
		return Config{}, err
	}
	if err := loadBytes("STALLWATCH_COMMITTED_WARN_THRESHOLD_BYTES", &cfg.Alarm.CommittedWarnThresholdBytes); err != nil {
		return Config{}, err
	}
	if value := strings.TrimSpace(os.Getenv("STALLWATCH_ALARM_WAV")); value != "" {
		cfg.Alarm.WAVPath = value
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_WATCH_DIR")); value != "" {
		cfg.Watch.Dir = value
	}
	if err := loadBool("STALLWATCH_WATCH_DAILY_SUBDIR", &cfg.Watch.DailySubdir); err != nil {
		return Config{}, err
	}
	if err := loadDuration("STALLWATCH_STALL_CHECK_INTERVAL", &cfg.Watch.CheckInterval); err != nil {
		return Config{}, err
	}
	if err := loadPositiveInt("STALLWATCH_STALL_WARN_CYCLES", &cfg.Watch.WarnCycles); err != nil {
		return Config{}, err
	}

	if err := loadDuration("STALLWATCH_VM_LOG_INTERVAL", &cfg.VMLogInterval); err != nil {
		return Config{}, err
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_MAX_BANDWIDTH_BYTES")); value != "" {
		bw, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse STALLWATCH_MAX_BANDWIDTH_BYTES: %w", err)
		}
		if bw <= 0 {
			return Config{}, fmt.Errorf("STALLWATCH_MAX_BANDWIDTH_BYTES must be > 0")
		}
		cfg.MaxBandwidthBps = bw
	}

	if value := strings.TrimSpace(os.Getenv("STALLWATCH_DB_PATH")); value != "" {
		cfg.DBPath = value
	}
	if value := strings.TrimSpace(os.Getenv("STALLWATCH_WEBHOOK_URL")); value != "" {
		cfg.WebhookURL = value
	}

	return cfg, nil
}

func loadDuration(key string, dst *time.Duration) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if duration <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = duration
	return nil
}

func loadBool(key string, dst *bool) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = enabled
	return nil
}

func loadPositiveInt(key string, dst *int) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = parsed
	return nil
}

func loadBytes(key string, dst *uint64) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed == 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = parsed
	return nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
