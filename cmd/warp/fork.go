package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cuemby/warp/pkg/config"
	"github.com/cuemby/warp/pkg/fork"
)

var forkCmd = &cobra.Command{
	Use:   "fork",
	Short: "Create a new graph namespace rooted at a validated ancestor commit",
	RunE:  runFork,
}

func init() {
	forkCmd.Flags().String("config", "", "Path to the source engine's config YAML file")
	forkCmd.Flags().String("at", "", "Source commit the fork starts from")
	forkCmd.Flags().String("target-graph", "", "Name of the new graph")
	forkCmd.Flags().String("target-writer", "", "Writer id the new graph's chain belongs to")
	_ = forkCmd.MarkFlagRequired("config")
	_ = forkCmd.MarkFlagRequired("at")
	_ = forkCmd.MarkFlagRequired("target-graph")
	_ = forkCmd.MarkFlagRequired("target-writer")
}

func runFork(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	atSHA, _ := cmd.Flags().GetString("at")
	targetGraph, _ := cmd.Flags().GetString("target-graph")
	targetWriter, _ := cmd.Flags().GetString("target-writer")

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

	svc := fork.NewService(s)
	result, err := svc.Fork(context.Background(), cfg.Graph, cfg.WriterID, atSHA, targetGraph, targetWriter)
	if err != nil {
		return fmt.Errorf("fork: %w", err)
	}

	fmt.Printf("forked %s/%s -> %s/%s at %s\n", cfg.Graph, cfg.WriterID, targetGraph, targetWriter, result.TipSHA)
	return nil
}
