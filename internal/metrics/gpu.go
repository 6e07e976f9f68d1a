package metrics

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	drmClassPath      = "class/drm"
	gpuBusyFilename   = "gpu_busy_percent"
	vramUsedFilename  = "mem_info_vram_used"
	vramTotalFilename = "mem_info_vram_total"
)

// gpuReader fetches utilization and dedicated-memory readings for a single
// DRM card. Non-fatal read errors yield zero values.
type gpuReader struct {
	cardID     string
	devicePath string
	logger     *slog.Logger
}

func newGPUReader(cardID, sysfsRoot string, logger *slog.Logger) (*gpuReader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	devicePath := filepath.Join(sysfsRoot, drmClassPath, cardID, "device")
	if _, err := os.Stat(devicePath); err != nil {
		return nil, fmt.Errorf("stat device path: %w", err)
	}
	return &gpuReader{
		cardID:     cardID,
		devicePath: devicePath,
		logger:     logger,
	}, nil
}

func (r *gpuReader) read() (utilPct float64, usedBytes, totalBytes uint64) {
	utilPct = r.readPercent(filepath.Join(r.devicePath, gpuBusyFilename))
	usedBytes = r.readUint(filepath.Join(r.devicePath, vramUsedFilename))
	totalBytes = r.readUint(filepath.Join(r.devicePath, vramTotalFilename))
	return utilPct, usedBytes, totalBytes
}

func (r *gpuReader) readPercent(path string) float64 {
	value, err := readFloatFile(path)
	if err != nil {
		return 0
	}
	if value < 0 {
		return 0
	}
	if value > 100 {
		// Some kernels report busy % scaled by 100.
		value = value / 100
		if value > 100 {
			value = 100
		}
	}
	return value
}

func (r *gpuReader) readUint(path string) uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	valueStr := strings.TrimSpace(string(data))
	if valueStr == "" {
		return 0
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		r.logger.Debug("failed to parse uint value", "path", path, "value", valueStr, "err", err)
		return 0
	}
	return value
}

func readFloatFile(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	valueStr := strings.TrimSpace(string(data))
	if valueStr == "" {
		return 0, fmt.Errorf("empty value")
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return value, nil
}
