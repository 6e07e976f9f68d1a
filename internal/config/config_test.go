package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected ListenAddr %q", cfg.ListenAddr)
	}
	if cfg.TickInterval != 1500*time.Millisecond {
		t.Fatalf("unexpected TickInterval %s", cfg.TickInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.SysfsRoot != "/sys" {
		t.Fatalf("unexpected SysfsRoot %q", cfg.SysfsRoot)
	}
	if cfg.ProcRoot != "/proc" {
		t.Fatalf("unexpected ProcRoot %q", cfg.ProcRoot)
	}
	if cfg.Alarm.VRAMWarnThresholdBytes != 8<<30 {
		t.Fatalf("unexpected VRAM threshold %d", cfg.Alarm.VRAMWarnThresholdBytes)
	}
	if cfg.Alarm.VRAMTriggerCount != 1 {
		t.Fatalf("unexpected VRAM trigger count %d", cfg.Alarm.VRAMTriggerCount)
	}
	if cfg.Alarm.WarnCountThreshold != 7 {
		t.Fatalf("unexpected warn count threshold %d", cfg.Alarm.WarnCountThreshold)
	}
	if cfg.Alarm.CommittedWarnThresholdBytes != 80<<30 {
		t.Fatalf("unexpected committed threshold %d", cfg.Alarm.CommittedWarnThresholdBytes)
	}
	if cfg.Watch.CheckInterval != 30*time.Second {
		t.Fatalf("unexpected stall check interval %s", cfg.Watch.CheckInterval)
	}
	if cfg.Watch.WarnCycles != 2 {
		t.Fatalf("unexpected stall warn cycles %d", cfg.Watch.WarnCycles)
	}
	if !cfg.Watch.DailySubdir {
		t.Fatalf("expected daily subdir counting by default")
	}
	if cfg.VMLogInterval != 30*time.Minute {
		t.Fatalf("unexpected VM log interval %s", cfg.VMLogInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STALLWATCH_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("STALLWATCH_TICK_INTERVAL", "500ms")
	t.Setenv("STALLWATCH_ALLOWED_ORIGINS", "https://example.com, https://other.test")
	t.Setenv("STALLWATCH_GPU", "card42")
	t.Setenv("STALLWATCH_ENABLE_PROMETHEUS", "true")
	t.Setenv("STALLWATCH_ENABLE_PPROF", "true")
	t.Setenv("STALLWATCH_LOG_LEVEL", "debug")
	t.Setenv("STALLWATCH_SYSFS_ROOT", "/tmp/sys")
	t.Setenv("STALLWATCH_PROC_ROOT", "/tmp/proc")
	t.Setenv("STALLWATCH_WS_MAX_CLIENTS", "2048")
	t.Setenv("STALLWATCH_WS_WRITE_TIMEOUT", "10s")
	t.Setenv("STALLWATCH_WS_READ_TIMEOUT", "45s")
	t.Setenv("STALLWATCH_VRAM_WARN_THRESHOLD_BYTES", "4294967296")
	t.Setenv("STALLWATCH_VRAM_TRIGGER_COUNT", "7")
	t.Setenv("STALLWATCH_WARN_COUNT_THRESHOLD", "3")
	t.Setenv("STALLWATCH_COMMITTED_WARN_THRESHOLD_BYTES", "1073741824")
	t.Setenv("STALLWATCH_ALARM_WAV", "/srv/alarm.wav")
	t.Setenv("STALLWATCH_WATCH_DIR", "/srv/outputs")
	t.Setenv("STALLWATCH_WATCH_DAILY_SUBDIR", "false")
	t.Setenv("STALLWATCH_STALL_CHECK_INTERVAL", "10s")
	t.Setenv("STALLWATCH_STALL_WARN_CYCLES", "4")
	t.Setenv("STALLWATCH_VM_LOG_INTERVAL", "15m")
	t.Setenv("STALLWATCH_MAX_BANDWIDTH_BYTES", "52428800")
	t.Setenv("STALLWATCH_DB_PATH", "/var/lib/stallwatch/journal.db")
	t.Setenv("STALLWATCH_WEBHOOK_URL", "https://hooks.example.com/alert")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr override failed, got %q", cfg.ListenAddr)
	}
	if cfg.TickInterval != 500*time.Millisecond {
		t.Fatalf("TickInterval override failed, got %s", cfg.TickInterval)
	}
	wantOrigins := []string{"https://example.com", "https://other.test"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins mismatch: %+v", cfg.AllowedOrigins)
	}
	if cfg.GPU != "card42" {
		t.Fatalf("GPU override failed, got %q", cfg.GPU)
	}
	if !cfg.EnablePrometheus || !cfg.EnablePprof {
		t.Fatalf("feature toggles override failed")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.WS.MaxClients != 2048 {
		t.Fatalf("WS.MaxClients override failed, got %d", cfg.WS.MaxClients)
	}
	if cfg.WS.WriteTimeout != 10*time.Second || cfg.WS.ReadTimeout != 45*time.Second {
		t.Fatalf("WS timeout overrides failed: %+v", cfg.WS)
	}
	if cfg.Alarm.VRAMWarnThresholdBytes != 4<<30 {
		t.Fatalf("VRAM threshold override failed, got %d", cfg.Alarm.VRAMWarnThresholdBytes)
	}
	if cfg.Alarm.VRAMTriggerCount != 7 {
		t.Fatalf("VRAM trigger count override failed, got %d", cfg.Alarm.VRAMTriggerCount)
	}
	if cfg.Alarm.WarnCountThreshold != 3 {
		t.Fatalf("warn count override failed, got %d", cfg.Alarm.WarnCountThreshold)
	}
	if cfg.Alarm.CommittedWarnThresholdBytes != 1<<30 {
		t.Fatalf("committed threshold override failed, got %d", cfg.Alarm.CommittedWarnThresholdBytes)
	}
	if cfg.Alarm.WAVPath != "/srv/alarm.wav" {
		t.Fatalf("WAVPath override failed, got %q", cfg.Alarm.WAVPath)
	}
	if cfg.Watch.Dir != "/srv/outputs" {
		t.Fatalf("Watch.Dir override failed, got %q", cfg.Watch.Dir)
	}
	if cfg.Watch.DailySubdir {
		t.Fatalf("Watch.DailySubdir override failed, expected false")
	}
	if cfg.Watch.CheckInterval != 10*time.Second {
		t.Fatalf("Watch.CheckInterval override failed, got %s", cfg.Watch.CheckInterval)
	}
	if cfg.Watch.WarnCycles != 4 {
		t.Fatalf("Watch.WarnCycles override failed, got %d", cfg.Watch.WarnCycles)
	}
	if cfg.VMLogInterval != 15*time.Minute {
		t.Fatalf("VMLogInterval override failed, got %s", cfg.VMLogInterval)
	}
	if cfg.MaxBandwidthBps != 50*(1<<20) {
		t.Fatalf("MaxBandwidthBps override failed, got %f", cfg.MaxBandwidthBps)
	}
	if cfg.DBPath != "/var/lib/stallwatch/journal.db" {
		t.Fatalf("DBPath override failed, got %q", cfg.DBPath)
	}
	if cfg.WebhookURL != "https://hooks.example.com/alert" {
		t.Fatalf("WebhookURL override failed, got %q", cfg.WebhookURL)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"NegativeTickInterval", "STALLWATCH_TICK_INTERVAL", "-1s"},
		{"InvalidOrigins", "STALLWATCH_ALLOWED_ORIGINS", ","},
		{"InvalidPrometheusBool", "STALLWATCH_ENABLE_PROMETHEUS", "maybe"},
		{"InvalidLogLevel", "STALLWATCH_LOG_LEVEL", "loud"},
		{"InvalidWSMaxClients", "STALLWATCH_WS_MAX_CLIENTS", "zero"},
		{"NonPositiveWSMaxClients", "STALLWATCH_WS_MAX_CLIENTS", "0"},
		{"InvalidWSWriteTimeout", "STALLWATCH_WS_WRITE_TIMEOUT", "nope"},
		{"InvalidVRAMThreshold", "STALLWATCH_VRAM_WARN_THRESHOLD_BYTES", "lots"},
		{"ZeroVRAMThreshold", "STALLWATCH_VRAM_WARN_THRESHOLD_BYTES", "0"},
		{"InvalidTriggerCount", "STALLWATCH_VRAM_TRIGGER_COUNT", "-1"},
		{"InvalidWarnCount", "STALLWATCH_WARN_COUNT_THRESHOLD", "0"},
		{"InvalidStallInterval", "STALLWATCH_STALL_CHECK_INTERVAL", "fast"},
		{"NonPositiveStallCycles", "STALLWATCH_STALL_WARN_CYCLES", "0"},
		{"InvalidVMLogInterval", "STALLWATCH_VM_LOG_INTERVAL", "0"},
		{"InvalidBandwidth", "STALLWATCH_MAX_BANDWIDTH_BYTES", "-5"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
