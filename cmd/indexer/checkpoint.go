package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"eventScope/internal/checkpoint"
	"eventScope/internal/config"
	"eventScope/internal/model"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect and reset contract checkpoints",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: withCheckpointStore(func(ctx context.Context, cmd *cobra.Command, store checkpoint.Store, logger *zap.Logger) error {
			cps, err := store.List(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, cp := range cps {
				if err := enc.Encode(cp); err != nil {
					return err
				}
			}
			return nil
		}),
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show one checkpoint",
		RunE: withCheckpointStore(func(ctx context.Context, cmd *cobra.Command, store checkpoint.Store, logger *zap.Logger) error {
			key, err := keyFromFlags(cmd)
			if err != nil {
				return err
			}
			cp, found, err := store.Get(ctx, key)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no checkpoint for %s", key)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(cp)
		}),
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a checkpoint to a block, allowing re-ingestion of later blocks",
		RunE: withCheckpointStore(func(ctx context.Context, cmd *cobra.Command, store checkpoint.Store, logger *zap.Logger) error {
			key, err := keyFromFlags(cmd)
			if err != nil {
				return err
			}
			block, _ := cmd.Flags().GetUint64("block")
			cp, err := store.Reset(ctx, key, block)
			if err != nil {
				return err
			}
			logger.Info("checkpoint reset", zap.String("contract", key.String()), zap.Uint64("block", block), zap.Uint64("version", cp.Version))
			return json.NewEncoder(cmd.OutOrStdout()).Encode(cp)
		}),
	}
	resetCmd.Flags().Uint64("block", 0, "last processed block to store")
	_ = resetCmd.MarkFlagRequired("block")

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a checkpoint so the contract restarts from its start block",
		RunE: withCheckpointStore(func(ctx context.Context, cmd *cobra.Command, store checkpoint.Store, logger *zap.Logger) error {
			key, err := keyFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := store.Delete(ctx, key); err != nil {
				return err
			}
			logger.Info("checkpoint deleted", zap.String("contract", key.String()))
			return nil
		}),
	}

	for _, sub := range []*cobra.Command{listCmd, getCmd, resetCmd, deleteCmd} {
		addCheckpointFlags(sub)
		sub.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
		if sub != listCmd {
			sub.Flags().Uint64("chain-id", 0, "chain id")
			sub.Flags().String("address", "", "contract address")
		}
		cmd.AddCommand(sub)
	}
	return cmd
}

type checkpointAction func(ctx context.Context, cmd *cobra.Command, store checkpoint.Store, logger *zap.Logger) error

func withCheckpointStore(action checkpointAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		cfg, level, err := config.LoadCheckpoint(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		logger, err := newLogger(level)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res := newResources(logger)
		defer res.Close()

		store, err := res.checkpointStore(ctx, cfg)
		if err != nil {
			return err
		}
		return action(ctx, cmd, store, logger)
	}
}

func keyFromFlags(cmd *cobra.Command) (model.ContractKey, error) {
	chainID, _ := cmd.Flags().GetUint64("chain-id")
	address, _ := cmd.Flags().GetString("address")
	if chainID == 0 || address == "" {
		return model.ContractKey{}, fmt.Errorf("chain-id and address are required")
	}
	return model.NewContractKey(chainID, address), nil
}
