package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"eventScope/internal/config"
	"eventScope/internal/decoder"
	"eventScope/internal/indexer"
	"eventScope/internal/model"
	"eventScope/internal/registry"
	"eventScope/internal/storage"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	addressFilter, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	topicFilter, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}
	filter := newLogFilter(addressFilter, topicFilter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	contracts, err := config.LoadContracts(cfg.Contracts)
	if err != nil {
		return err
	}
	res := newResources(logger)
	defer res.Close()
	abiSource, err := res.abiSource(ctx, cfg.ABIDir, cfg.Contracts, cfg.Object)
	if err != nil {
		return err
	}
	reg := registry.New(abiSource, contracts, logger)
	configured := make(map[model.ContractKey]bool, len(contracts))
	for _, c := range contracts {
		configured[c.Key()] = true
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.Int("contracts", len(contracts)),
	)

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	byContract := make(map[model.ContractKey][]model.RawLog)
	var total, skipped, malformed int
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.RawLog
		if err := json.Unmarshal(line, &record); err != nil {
			malformed++
			logger.Warn("skip malformed line", zap.Int("line", total), zap.Error(err))
			continue
		}
		key := model.NewContractKey(record.ChainID, record.Address)
		if !configured[key] || !filter.match(record) {
			skipped++
			continue
		}
		record.Address = key.Address
		byContract[key] = append(byContract[key], record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	sink := storage.NewJsonlStorage(storage.LocalBlobs{Dir: cfg.Out})
	runID := "redecode-" + uuid.NewString()
	keys := make([]model.ContractKey, 0, len(byContract))
	for key := range byContract {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var decoded, failed, unmatched int
	for _, key := range keys {
		logs := byContract[key]
		sort.SliceStable(logs, func(i, j int) bool { return logs[i].Less(logs[j]) })

		batch, err := decoder.DecodeBatch(ctx, reg, logs)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		part := storage.Partition{
			ChainID: key.ChainID,
			Address: key.Address,
			Range:   model.BlockRange{From: logs[0].BlockNumber, To: logs[len(logs)-1].BlockNumber},
			RunID:   runID,
		}
		if err := sink.WriteDecoded(ctx, part, batch.Events, batch.Failures); err != nil {
			return err
		}
		decoded += len(batch.Events)
		failed += len(batch.Failures)
		unmatched += batch.Unmatched
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("failed", failed),
		zap.Int("unmatched", unmatched),
		zap.Int("skipped", skipped),
		zap.Int("malformed", malformed),
	)
	return nil
}
