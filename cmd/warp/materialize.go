package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/warp/pkg/config"
	"github.com/cuemby/warp/pkg/engine"
)

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Load the latest checkpoint, fold every writer's chain, and print the resulting state",
	RunE:  runMaterialize,
}

func init() {
	materializeCmd.Flags().String("config", "", "Path to the engine config YAML file")
	_ = materializeCmd.MarkFlagRequired("config")
}

type materializeSummary struct {
	Graph string   `json:"graph"`
	Nodes []string `json:"nodes"`
	Edges int      `json:"edgeCount"`
}

func runMaterialize(cmd *cobra.Command, args []string) error {
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

	e, err := engine.Open(s, cfg.Graph, cfg.WriterID, cfg.EngineOptions())
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	ctx := context.Background()
	state, err := e.Materialize(ctx, nil)
	if err != nil {
		return fmt.Errorf("materialize: %w", err)
	}

	edges, err := state.Edges()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(materializeSummary{Graph: cfg.Graph, Nodes: state.Nodes(), Edges: len(edges)})
}
