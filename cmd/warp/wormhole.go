package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/warp/pkg/config"
	"github.com/cuemby/warp/pkg/wormhole"
)

var wormholeCmd = &cobra.Command{
	Use:   "wormhole",
	Short: "Create wormholes",
}

var wormholeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Validate a commit range and write a replayable wormhole to a file",
	RunE:  runWormholeCreate,
}

func init() {
	wormholeCreateCmd.Flags().String("config", "", "Path to the engine config YAML file")
	wormholeCreateCmd.Flags().String("from", "", "Oldest commit included in the range")
	wormholeCreateCmd.Flags().String("to", "", "Newest commit included in the range")
	wormholeCreateCmd.Flags().String("out", "", "Output path for the serialized wormhole")
	_ = wormholeCreateCmd.MarkFlagRequired("config")
	_ = wormholeCreateCmd.MarkFlagRequired("from")
	_ = wormholeCreateCmd.MarkFlagRequired("to")
	_ = wormholeCreateCmd.MarkFlagRequired("out")

	wormholeCmd.AddCommand(wormholeCreateCmd)
}

func runWormholeCreate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	fromSHA, _ := cmd.Flags().GetString("from")
	toSHA, _ := cmd.Flags().GetString("to")
	outPath, _ := cmd.Flags().GetString("out")

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

	svc := wormhole.NewService(s)
	w, err := svc.CreateWormhole(context.Background(), cfg.Graph, fromSHA, toSHA)
	if err != nil {
		return fmt.Errorf("create wormhole: %w", err)
	}

	data, err := w.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("wormhole %s..%s (writer=%s, patches=%d) written to %s\n",
		w.FromSHA, w.ToSHA, w.WriterID, w.PatchCount, outPath)
	return nil
}
