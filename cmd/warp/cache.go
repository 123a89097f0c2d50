package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/warp/pkg/checkpoint"
	"github.com/cuemby/warp/pkg/config"
	"github.com/cuemby/warp/pkg/refs"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the checkpoint seek-cache",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Apply LRU eviction to the seek-cache index, trimming it to its configured bound",
	RunE:  runCacheSweep,
}

func init() {
	cacheSweepCmd.Flags().String("config", "", "Path to the engine config YAML file")
	_ = cacheSweepCmd.MarkFlagRequired("config")
	cacheCmd.AddCommand(cacheSweepCmd)
}

func runCacheSweep(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closer, ok := s.(io.Closer); ok {
		defer closer.Close()
	}

	cache := checkpoint.NewCache(s, refs.SeekCacheRef(cfg.Graph))
	if cfg.CacheMaxEntries > 0 {
		cache.MaxEntries = cfg.CacheMaxEntries
	}

	sweeper := checkpoint.NewSweeper(cache, time.Minute)
	if err := sweeper.Sweep(); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	keys, err := cache.Keys(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("seek-cache for %s holds %d entries after sweep\n", cfg.Graph, len(keys))
	return nil
}
