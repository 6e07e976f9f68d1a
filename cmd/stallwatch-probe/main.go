package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/stallwatch/stallwatch/internal/config"
	"github.com/stallwatch/stallwatch/internal/gpu"
	"github.com/stallwatch/stallwatch/internal/metrics"
)

type options struct {
	sysfsRoot  string
	procRoot   string
	watchDir   string
	gpuFilter  string
	jsonOutput bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.sysfsRoot, "sysfs", envOrDefault("STALLWATCH_SYSFS_ROOT", "/sys"), "Path to sysfs root")
	flag.StringVar(&opts.procRoot, "proc", envOrDefault("STALLWATCH_PROC_ROOT", "/proc"), "Path to proc root")
	flag.StringVar(&opts.watchDir, "watch-dir", envOrDefault("STALLWATCH_WATCH_DIR", ""), "Watched output directory")
	flag.StringVar(&opts.gpuFilter, "gpu", envOrDefault("STALLWATCH_GPU", ""), "Limit to specific GPU id")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit discovery result as JSON")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	infos, err := gpu.Discover(opts.sysfsRoot, logger.With("component", "gpu_discovery"))
	if err != nil {
		logger.Error("gpu discovery failed", "err", err)
		os.Exit(1)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(infos); err != nil {
			logger.Error("encode discovery output", "err", err)
			os.Exit(1)
		}
	} else {
		if len(infos) == 0 {
			fmt.Println("No GPUs detected")
		} else {
			fmt.Println("Discovered GPUs:")
		}
		for _, info := range infos {
			fmt.Printf("- %s (PCI: %s, PCIID: %s, Name: %s)\n", info.ID, info.PCI, info.PCIID, info.Name)
		}
	}

	selected, err := gpu.Select(infos, opts.gpuFilter)
	if err != nil {
		logger.Error("gpu selection failed", "err", err)
		os.Exit(1)
	}

	cfg := config.Config{
		SysfsRoot: opts.sysfsRoot,
		ProcRoot:  opts.procRoot,
		Watch:     config.WatchConfig{Dir: opts.watchDir},
	}
	source, err := metrics.NewSystemSource(selected.ID, cfg, logger.With("component", "metrics"))
	if err != nil {
		logger.Error("metrics source init failed", "err", err)
		os.Exit(1)
	}

	sample, err := source.Collect(context.Background())
	if err != nil {
		logger.Error("sample collection failed", "err", err)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		logger.Error("encode sample", "err", err)
		os.Exit(1)
	}
	fmt.Printf("\nSample:\n%s\n", string(data))
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
