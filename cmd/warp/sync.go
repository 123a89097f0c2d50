package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/warp/pkg/codec"
	"github.com/cuemby/warp/pkg/config"
	"github.com/cuemby/warp/pkg/engine"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/syncproto"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drive a sync exchange through CBOR files (demo transport, no networking)",
}

var syncRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Materialize locally and write this replica's frontier as a sync request",
	RunE:  runSyncRequest,
}

var syncApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a sync response file against the locally materialized state",
	RunE:  runSyncApply,
}

func init() {
	syncRequestCmd.Flags().String("config", "", "Path to the engine config YAML file")
	syncRequestCmd.Flags().String("out", "", "Output path for the serialized sync request")
	_ = syncRequestCmd.MarkFlagRequired("config")
	_ = syncRequestCmd.MarkFlagRequired("out")

	syncApplyCmd.Flags().String("config", "", "Path to the engine config YAML file")
	syncApplyCmd.Flags().String("in", "", "Path to a serialized sync response")
	_ = syncApplyCmd.MarkFlagRequired("config")
	_ = syncApplyCmd.MarkFlagRequired("in")

	syncCmd.AddCommand(syncRequestCmd)
	syncCmd.AddCommand(syncApplyCmd)
}

func openEngine(cfg config.EngineConfig) (*engine.Engine, func(), error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closeFn := func() {
		if closer, ok := s.(io.Closer); ok {
			closer.Close()
		}
	}

	e, err := engine.Open(s, cfg.Graph, cfg.WriterID, cfg.EngineOptions())
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("open engine: %w", err)
	}
	return e, closeFn, nil
}

func runSyncRequest(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	outPath, _ := cmd.Flags().GetString("out")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	e, closeFn, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	if _, err := e.Materialize(ctx, nil); err != nil {
		return fmt.Errorf("materialize: %w", err)
	}

	req := syncproto.NewRequest(e.CachedFrontier())
	data, err := codec.Marshal(req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote sync request for %d known writer(s) to %s\n", len(req.Frontier), outPath)
	return nil
}

func runSyncApply(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	inPath, _ := cmd.Flags().GetString("in")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	e, closeFn, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	state, err := e.Materialize(ctx, nil)
	if err != nil {
		return fmt.Errorf("materialize: %w", err)
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	var resp syncproto.Response
	if err := codec.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode sync response: %w", err)
	}

	result, err := syncproto.ApplySyncResponse(graph.NewJoinReducer(), state, e.CachedFrontier(), resp)
	if err != nil {
		return fmt.Errorf("apply sync response: %w", err)
	}

	fmt.Printf("applied %d patch(es); state now has %d node(s)\n", result.AppliedCount, len(result.State.Nodes()))
	return nil
}
