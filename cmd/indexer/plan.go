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

	"eventScope/internal/config"
	"eventScope/internal/indexer"
	"eventScope/internal/model"
)

type planLine struct {
	ChainID    uint64             `json:"chain_id"`
	Address    string             `json:"contract_address"`
	Name       string             `json:"name,omitempty"`
	Head       uint64             `json:"head"`
	Checkpoint *uint64            `json:"last_processed_block"`
	Next       *model.BlockRange  `json:"next_range"`
	Backlog    []model.BlockRange `json:"backlog"`
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	head, _ := cmd.Flags().GetUint64("head")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := newResources(logger)
	defer res.Close()

	contracts, err := res.contracts(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := res.checkpointStore(ctx, cfg.Checkpoint)
	if err != nil {
		return err
	}

	heads := make(map[uint64]uint64)
	if head == 0 {
		fetcher, err := res.fetcher(ctx, cfg)
		if err != nil {
			return err
		}
		for _, c := range contracts {
			if _, ok := heads[c.ChainID]; ok {
				continue
			}
			h, err := fetcher.ChainHead(ctx, c.ChainID)
			if err != nil {
				return fmt.Errorf("chain %d head: %w", c.ChainID, err)
			}
			heads[c.ChainID] = h
		}
	}

	policy := indexer.PlanPolicy{ConfirmationDepth: cfg.ConfirmationDepth, MaxRangeSize: cfg.MaxRangeSize}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, c := range contracts {
		chainHead := head
		if chainHead == 0 {
			chainHead = heads[c.ChainID]
		}
		cp, found, err := store.Get(ctx, c.Key())
		if err != nil {
			return fmt.Errorf("read checkpoint %s: %w", c.Key(), err)
		}

		line := planLine{ChainID: c.ChainID, Address: c.Key().Address, Name: c.Name, Head: chainHead}
		if found {
			last := cp.LastProcessedBlock
			line.Checkpoint = &last
		}
		if next, ok := indexer.Plan(c, cp.LastProcessedBlock, found, chainHead, policy); ok {
			line.Next = &next
			backlog, err := backlogRanges(c, next, chainHead, policy)
			if err != nil {
				return err
			}
			line.Backlog = backlog
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	logger.Debug("plan complete", zap.Int("contracts", len(contracts)))
	return nil
}

// backlogRanges lists every range needed to reach the confirmed head from
// next.From.
func backlogRanges(c model.ContractConfig, next model.BlockRange, head uint64, policy indexer.PlanPolicy) ([]model.BlockRange, error) {
	to := head - policy.ConfirmationDepth
	if c.HasEndBlock() && c.EndBlock < to {
		to = c.EndBlock
	}
	return indexer.SplitRange(next.From, to, policy.MaxRangeSize)
}
