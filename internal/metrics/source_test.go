package metrics

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stallwatch/stallwatch/internal/config"
)

func TestGPUReaderValues(t *testing.T) {
	t.Parallel()

	sysfs := t.TempDir()
	devicePath := createDevice(t, sysfs, "card0")
	writeFile(t, filepath.Join(devicePath, gpuBusyFilename), "42\n")
	writeFile(t, filepath.Join(devicePath, vramUsedFilename), "8589934592\n")
	writeFile(t, filepath.Join(devicePath, vramTotalFilename), "17179869184\n")

	reader, err := newGPUReader("card0", sysfs, testLogger())
	if err != nil {
		t.Fatalf("newGPUReader returned error: %v", err)
	}

	util, used, total := reader.read()
	if util != 42 {
		t.Fatalf("unexpected util %f", util)
	}
	if used != 8<<30 || total != 16<<30 {
		t.Fatalf("unexpected vram used=%d total=%d", used, total)
	}
}

func TestGPUReaderScaledBusyPercent(t *testing.T) {
	t.Parallel()

	sysfs := t.TempDir()
	devicePath := createDevice(t, sysfs, "card0")
	writeFile(t, filepath.Join(devicePath, gpuBusyFilename), "5500\n")

	reader, err := newGPUReader("card0", sysfs, testLogger())
	if err != nil {
		t.Fatalf("newGPUReader returned error: %v", err)
	}

	util, used, total := reader.read()
	if util != 55 {
		t.Fatalf("expected scaled busy percent 55, got %f", util)
	}
	if used != 0 || total != 0 {
		t.Fatalf("expected zero vram on missing files, got %d/%d", used, total)
	}
}

func TestGPUReaderMissingDevice(t *testing.T) {
	t.Parallel()

	if _, err := newGPUReader("card9", t.TempDir(), testLogger()); err == nil {
		t.Fatal("expected error for missing device path")
	}
}

func TestProcReaderCommitCharge(t *testing.T) {
	t.Parallel()

	proc := t.TempDir()
	writeFile(t, filepath.Join(proc, "meminfo"),
		"MemTotal:       32768000 kB\nCommitted_AS:   10485760 kB\nCommitLimit:    41943040 kB\n")

	reader := &procReader{root: proc}
	committed, limit, err := reader.commitCharge()
	if err != nil {
		t.Fatalf("commitCharge returned error: %v", err)
	}
	if committed != 10485760*1024 {
		t.Fatalf("unexpected committed %d", committed)
	}
	if limit != 41943040*1024 {
		t.Fatalf("unexpected limit %d", limit)
	}
}

func TestProcReaderMissingFields(t *testing.T) {
	t.Parallel()

	proc := t.TempDir()
	writeFile(t, filepath.Join(proc, "meminfo"), "MemTotal: 1 kB\n")

	reader := &procReader{root: proc}
	if _, _, err := reader.commitCharge(); err == nil {
		t.Fatal("expected error when commit fields missing")
	}
}

func TestNetRateTracker(t *testing.T) {
	t.Parallel()

	proc := t.TempDir()
	netDev := filepath.Join(proc, "net", "dev")
	writeFile(t, netDev, netDevContent(1000, 500))

	tracker := newNetRateTracker(proc)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	recv, sent := tracker.rates(start)
	if recv != 0 || sent != 0 {
		t.Fatalf("first observation must yield zero rates, got %f/%f", recv, sent)
	}

	writeFile(t, netDev, netDevContent(3000, 1500))
	recv, sent = tracker.rates(start.Add(2 * time.Second))
	if recv != 1000 {
		t.Fatalf("unexpected recv rate %f", recv)
	}
	if sent != 500 {
		t.Fatalf("unexpected sent rate %f", sent)
	}
}

func TestNetRateTrackerIgnoresLoopback(t *testing.T) {
	t.Parallel()

	proc := t.TempDir()
	content := "Inter-|   Receive\n face |bytes\n" +
		"    lo: 999999 0 0 0 0 0 0 0 999999 0 0 0 0 0 0 0\n" +
		"  eth0: 100 0 0 0 0 0 0 0 200 0 0 0 0 0 0 0\n"
	writeFile(t, filepath.Join(proc, "net", "dev"), content)

	tracker := newNetRateTracker(proc)
	recv, sent, err := tracker.readCounters()
	if err != nil {
		t.Fatalf("readCounters returned error: %v", err)
	}
	if recv != 100 || sent != 200 {
		t.Fatalf("loopback not excluded: recv=%d sent=%d", recv, sent)
	}
}

func TestCountWatchedFiles(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := t.TempDir()
	daily := filepath.Join(base, "2026-03-01")
	if err := os.MkdirAll(filepath.Join(daily, "subdir"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(daily, "a.png"), "x")
	writeFile(t, filepath.Join(daily, "b.png"), "x")

	watch := config.WatchConfig{Dir: base, DailySubdir: true}
	if got := countWatchedFiles(watch, now); got != 2 {
		t.Fatalf("expected 2 files, got %d", got)
	}

	// Directories are not counted; flat mode counts the date dir itself out.
	watch.DailySubdir = false
	if got := countWatchedFiles(watch, now); got != 0 {
		t.Fatalf("expected 0 non-dir entries at base, got %d", got)
	}

	watch = config.WatchConfig{Dir: filepath.Join(base, "missing"), DailySubdir: false}
	if got := countWatchedFiles(watch, now); got != 0 {
		t.Fatalf("missing dir must count as 0, got %d", got)
	}
}

func TestSystemSourceCollect(t *testing.T) {
	t.Parallel()

	sysfs := t.TempDir()
	proc := t.TempDir()
	watchDir := t.TempDir()

	devicePath := createDevice(t, sysfs, "card0")
	writeFile(t, filepath.Join(devicePath, gpuBusyFilename), "80\n")
	writeFile(t, filepath.Join(devicePath, vramUsedFilename), "1024\n")
	writeFile(t, filepath.Join(devicePath, vramTotalFilename), "4096\n")
	writeFile(t, filepath.Join(proc, "meminfo"), "Committed_AS: 2048 kB\nCommitLimit: 4096 kB\n")
	writeFile(t, filepath.Join(proc, "net", "dev"), netDevContent(10, 20))
	writeFile(t, filepath.Join(watchDir, "out1.png"), "x")

	cfg := config.Config{
		SysfsRoot: sysfs,
		ProcRoot:  proc,
		Watch:     config.WatchConfig{Dir: watchDir, DailySubdir: false},
	}
	source, err := NewSystemSource("card0", cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSystemSource returned error: %v", err)
	}

	sample, err := source.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if sample.GPUUtilPct != 80 {
		t.Fatalf("unexpected gpu util %f", sample.GPUUtilPct)
	}
	if sample.VRAMUsedBytes != 1024 || sample.VRAMTotalBytes != 4096 {
		t.Fatalf("unexpected vram %d/%d", sample.VRAMUsedBytes, sample.VRAMTotalBytes)
	}
	if sample.CommittedBytes != 2048*1024 || sample.CommitLimitBytes != 4096*1024 {
		t.Fatalf("unexpected commit %d/%d", sample.CommittedBytes, sample.CommitLimitBytes)
	}
	if sample.WatchedFileCount != 1 {
		t.Fatalf("unexpected file count %d", sample.WatchedFileCount)
	}
	if sample.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestSystemSourceCollectCancelled(t *testing.T) {
	t.Parallel()

	proc := t.TempDir()
	writeFile(t, filepath.Join(proc, "meminfo"), "Committed_AS: 1 kB\nCommitLimit: 2 kB\n")

	cfg := config.Config{SysfsRoot: t.TempDir(), ProcRoot: proc}
	source, err := NewSystemSource("", cfg, testLogger())
	if err != nil {
		t.Fatalf("NewSystemSource returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := source.Collect(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createDevice(t *testing.T, root, cardID string) string {
	t.Helper()
	devicePath := filepath.Join(root, "class", "drm", cardID, "device")
	if err := os.MkdirAll(devicePath, 0o750); err != nil {
		t.Fatalf("failed to create device directory: %v", err)
	}
	return devicePath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directories for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func netDevContent(rx, tx uint64) string {
	return "Inter-|   Receive                                                |  Transmit\n" +
		" face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n" +
		"  eth0: " + formatCounters(rx, tx) + "\n"
}

func formatCounters(rx, tx uint64) string {
	return itoa(rx) + " 0 0 0 0 0 0 0 " + itoa(tx) + " 0 0 0 0 0 0 0"
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
