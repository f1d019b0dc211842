package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otusprobe/flowprobe/internal/capture"
	"github.com/otusprobe/flowprobe/internal/config"
	"github.com/otusprobe/flowprobe/internal/core"
	"github.com/otusprobe/flowprobe/internal/export"
	"github.com/otusprobe/flowprobe/internal/flowcache"
	"github.com/otusprobe/flowprobe/internal/fragcache"
	"github.com/otusprobe/flowprobe/internal/log"
	"github.com/otusprobe/flowprobe/internal/parser"
	"github.com/otusprobe/flowprobe/internal/plugin"
	"github.com/otusprobe/flowprobe/internal/probe"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start capturing and exporting flows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(cfg.Log)
	logger := log.GetLogger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	exporter := export.NewConsoleExporter(os.Stdout, logger)

	pluginSets := make([]*plugin.Set, cfg.FlowCache.Shards)
	cachePluginSets := make([]flowcache.PluginSet, cfg.FlowCache.Shards)
	for i := range pluginSets {
		set, err := plugin.NewSet(cfg.Plugins)
		if err != nil {
			return fmt.Errorf("build plugin set for shard %d: %w", i, err)
		}
		pluginSets[i] = set
		cachePluginSets[i] = set
	}

	cache, err := flowcache.New(flowcache.Config{
		Capacity:        cfg.FlowCache.Capacity,
		RowSize:         cfg.FlowCache.RowSize,
		Shards:          cfg.FlowCache.Shards,
		ActiveTimeout:   cfg.FlowCache.ActiveTimeoutDuration(defaultActiveTimeout),
		InactiveTimeout: cfg.FlowCache.InactiveTimeoutDuration(defaultInactiveTimeout),
		Split:           cfg.FlowCache.Split,
	}, cachePluginSets, exporter)
	if err != nil {
		return fmt.Errorf("build flow cache: %w", err)
	}

	frags := fragcache.New(cfg.FragmentCache.TimeoutDuration(defaultFragTimeout).Microseconds())
	dec := parser.New(frags, logger)

	capturers := make([]core.Capturer, cfg.Indexer.Inputs)
	for i := range capturers {
		capCfg := capture.Config{
			Interface:   cfg.Capture.Interface,
			ReadFile:    cfg.Capture.ReadFile,
			BPFFilter:   cfg.Capture.BPFFilter,
			Promiscuous: true,
		}
		// Bind capturer i to its own interface/file when the config
		// lists one; otherwise it shares the singular Interface/ReadFile
		// with every other capturer.
		if i < len(cfg.Capture.Interfaces) {
			capCfg.Interface = cfg.Capture.Interfaces[i]
		}
		if i < len(cfg.Capture.ReadFiles) {
			capCfg.ReadFile = cfg.Capture.ReadFiles[i]
		}
		capturers[i] = capture.NewPcapCapturer(capCfg, logger)
	}

	p := probe.New(logger, capturers, dec, cache, pluginSets, exporter)
	logger.Infof("flowprobe: starting with %d capture input(s), %d shard(s)", len(capturers), cache.NumShards())
	return p.Run(ctx)
}
