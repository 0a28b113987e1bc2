package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eventScope/internal/alert"
	"eventScope/internal/checkpoint"
	"eventScope/internal/decoder"
	"eventScope/internal/metrics"
	"eventScope/internal/model"
	"eventScope/internal/provider"
	"eventScope/internal/storage"
)

const (
	defaultWorkers       = 5
	defaultCommitTimeout = 2 * time.Minute
)

// Fetcher fetches contract logs and chain heads from a provider.
type Fetcher interface {
	Fetch(ctx context.Context, cfg model.ContractConfig, rng model.BlockRange) (provider.FetchResult, error)
	ChainHead(ctx context.Context, chainID uint64) (uint64, error)
}

// Config holds runtime settings for the coordinator.
type Config struct {
	Plan    PlanPolicy
	Workers int
	// DecodeFailureThreshold fails a range when failures / attempted decodes
	// exceeds it.
	DecodeFailureThreshold float64
	// MaxRangesPerRun limits the backlog drained per contract, 0 is unlimited.
	MaxRangesPerRun int
	CommitTimeout   time.Duration
}

// Dependencies are the collaborators of a Coordinator. Alerter is optional.
type Dependencies struct {
	Fetcher     Fetcher
	Resolver    decoder.Resolver
	Checkpoints checkpoint.Store
	Sink        storage.Sink
	Alerter     alert.Alerter
}

// Coordinator runs the plan, fetch, decode, persist and checkpoint pipeline
// for every configured contract.
type Coordinator struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
	runID  func() string
}

func NewCoordinator(cfg Config, deps Dependencies, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaultCommitTimeout
	}
	return &Coordinator{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
		runID:  uuid.NewString,
	}
}

// Run processes every contract once. Contract failures are reported in the
// summary and never abort siblings; an error is returned only when the
// coordinator is missing a dependency.
func (c *Coordinator) Run(ctx context.Context, runAt time.Time, contracts []model.ContractConfig) (RunSummary, error) {
	if c.deps.Fetcher == nil {
		return RunSummary{}, fmt.Errorf("fetcher is nil")
	}
	if c.deps.Resolver == nil {
		return RunSummary{}, fmt.Errorf("resolver is nil")
	}
	if c.deps.Checkpoints == nil {
		return RunSummary{}, fmt.Errorf("checkpoint store is nil")
	}
	if c.deps.Sink == nil {
		return RunSummary{}, fmt.Errorf("sink is nil")
	}

	summary := RunSummary{
		RunID:     c.runID(),
		RunAt:     runAt,
		StartedAt: c.now().UTC(),
		Results:   make([]ContractResult, len(contracts)),
	}
	logger := c.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("run start",
		zap.Time("run_at", runAt),
		zap.Int("contracts", len(contracts)),
		zap.Int("workers", c.cfg.Workers),
	)

	heads := newHeadCache(c.deps.Fetcher)
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, cfg := range contracts {
		i, cfg := i, cfg
		g.Go(func() error {
			summary.Results[i] = c.runContract(ctx, summary.RunID, cfg, heads, logger)
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = c.now().UTC()
	metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	for _, r := range summary.Results {
		metrics.ContractsTotal.WithLabelValues(chainLabel(r.ChainID), string(r.State)).Inc()
		if r.State == StateFailed {
			c.alert(ctx, summary.RunID, r)
		}
	}
	return summary, nil
}

type contractRun struct {
	result ContractResult
	logger *zap.Logger
}

func (r *contractRun) transition(to State) {
	r.logger.Debug("state transition",
		zap.String("from", string(r.result.State)),
		zap.String("to", string(to)),
	)
	r.result.State = to
}

func (r *contractRun) finish(state State, reason string, err error) ContractResult {
	r.transition(state)
	r.result.Reason = reason
	if err != nil {
		r.result.Error = err.Error()
	}
	switch state {
	case StateFailed:
		r.logger.Error("contract failed", zap.String("reason", reason), zap.Error(err))
	case StateSkipped:
		r.logger.Info("contract skipped", zap.String("reason", reason), zap.Error(err))
	default:
		r.logger.Info("contract done", zap.Int("ranges", r.result.Ranges), zap.String("reason", reason))
	}
	return r.result
}

// runContract drives one contract through its state machine, draining the
// backlog range by range in ascending order.
func (c *Coordinator) runContract(ctx context.Context, runID string, cfg model.ContractConfig, heads *headCache, logger *zap.Logger) ContractResult {
	key := cfg.Key()
	chain := chainLabel(cfg.ChainID)
	run := &contractRun{
		result: ContractResult{ChainID: cfg.ChainID, Address: key.Address, Name: cfg.Name, State: StatePlanning},
		logger: logger.With(zap.String("contract", key.String())),
	}
	res := &run.result

	for {
		if err := ctx.Err(); err != nil {
			if res.Ranges == 0 {
				return run.finish(StateSkipped, "canceled", err)
			}
			return run.finish(StateDone, "canceled", nil)
		}
		if c.cfg.MaxRangesPerRun > 0 && res.Ranges >= c.cfg.MaxRangesPerRun {
			return run.finish(StateDone, "range limit reached", nil)
		}

		run.transition(StatePlanning)
		cp, found, err := c.deps.Checkpoints.Get(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return run.finish(StateSkipped, "canceled", err)
			}
			return run.finish(StateFailed, "checkpoint read failed", err)
		}
		if !found {
			cp = checkpoint.Empty(key)
		}
		head, err := heads.get(ctx, cfg.ChainID)
		if err != nil {
			if provider.IsRetryable(err) {
				return run.finish(StateSkipped, "chain head unavailable", err)
			}
			return run.finish(StateFailed, "chain head failed", err)
		}
		rng, ok := Plan(cfg, cp.LastProcessedBlock, found, head, c.cfg.Plan)
		if !ok {
			if res.Ranges == 0 {
				return run.finish(StateSkipped, "up to date", nil)
			}
			return run.finish(StateDone, "", nil)
		}

		run.transition(StateFetching)
		run.logger.Info("fetch logs", zap.Uint64("from", rng.From), zap.Uint64("to", rng.To))
		fetched, err := c.deps.Fetcher.Fetch(ctx, cfg, rng)
		res.FetchRequests += fetched.Requests
		res.FetchRetries += fetched.Retries
		if err != nil {
			if provider.IsRetryable(err) {
				return run.finish(StateSkipped, "fetch retryable", err)
			}
			return run.finish(StateFailed, "fetch failed", err)
		}
		ingestedAt := c.now().UTC().Format(time.RFC3339Nano)
		for i := range fetched.Logs {
			if fetched.Logs[i].IngestedAt == "" {
				fetched.Logs[i].IngestedAt = ingestedAt
			}
		}
		metrics.LogsFetched.WithLabelValues(chain).Add(float64(len(fetched.Logs)))

		run.transition(StateDecoding)
		batch, err := c.decode(ctx, fetched.Logs)
		if err != nil {
			return run.finish(StateFailed, "abi unavailable", err)
		}
		metrics.EventsDecoded.WithLabelValues(chain).Add(float64(len(batch.Events)))
		metrics.DecodeFailures.WithLabelValues(chain).Add(float64(len(batch.Failures)))
		metrics.UnmatchedLogs.WithLabelValues(chain).Add(float64(batch.Unmatched))
		for _, f := range batch.Failures {
			run.logger.Warn("decode failed",
				zap.String("tx_hash", f.TxHash),
				zap.Uint64("log_index", f.LogIndex),
				zap.String("event", f.EventName),
				zap.String("error", f.Reason),
			)
		}
		if rate := batch.FailureRate(); rate > c.cfg.DecodeFailureThreshold {
			res.DecodeFailures += len(batch.Failures)
			return run.finish(StateFailed, "decode failure rate exceeded",
				fmt.Errorf("decode failure rate %.2f exceeds threshold %.2f in range %s", rate, c.cfg.DecodeFailureThreshold, rng))
		}

		committed, err := c.commit(ctx, run, runID, cfg, cp, rng, fetched.Logs, batch)
		if err != nil {
			return run.finish(StateFailed, "persist failed", err)
		}
		if !committed {
			return run.finish(StateDone, "checkpoint already advanced", nil)
		}

		res.Ranges++
		if res.Ranges == 1 {
			res.FromBlock = rng.From
		}
		res.ToBlock = rng.To
		res.RawLogs += len(fetched.Logs)
		res.Decoded += len(batch.Events)
		res.DecodeFailures += len(batch.Failures)
		res.Unmatched += batch.Unmatched
		metrics.RangesProcessed.WithLabelValues(chain).Inc()

		run.logger.Info("range complete",
			zap.Uint64("from", rng.From),
			zap.Uint64("to", rng.To),
			zap.Int("logs", len(fetched.Logs)),
			zap.Int("decoded", len(batch.Events)),
			zap.Int("decode_failures", len(batch.Failures)),
			zap.Int("unmatched", batch.Unmatched),
		)
	}
}

// decode runs detached from run cancellation like commit, so a fetched range
// is never lost to a canceled ABI load.
func (c *Coordinator) decode(ctx context.Context, logs []model.RawLog) (decoder.BatchResult, error) {
	decodeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CommitTimeout)
	defer cancel()
	return decoder.DecodeBatch(decodeCtx, c.deps.Resolver, logs)
}

// commit persists a range and advances its checkpoint. It runs detached from
// run cancellation so a range is either fully committed or not checkpointed.
// committed is false when another run already advanced the checkpoint.
func (c *Coordinator) commit(
	ctx context.Context,
	run *contractRun,
	runID string,
	cfg model.ContractConfig,
	cp checkpoint.Checkpoint,
	rng model.BlockRange,
	logs []model.RawLog,
	batch decoder.BatchResult,
) (bool, error) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CommitTimeout)
	defer cancel()

	run.transition(StatePersisting)
	part := storage.Partition{ChainID: cfg.ChainID, Address: cfg.Key().Address, Range: rng, RunID: runID}
	if err := c.deps.Sink.WriteRawLogs(commitCtx, part, logs); err != nil {
		return false, fmt.Errorf("write raw logs: %w", err)
	}
	if err := c.deps.Sink.WriteDecoded(commitCtx, part, batch.Events, batch.Failures); err != nil {
		return false, fmt.Errorf("write decoded events: %w", err)
	}

	run.transition(StateCheckpointing)
	next, err := c.deps.Checkpoints.Advance(commitCtx, cp, rng.To)
	if err != nil {
		if errors.Is(err, checkpoint.ErrConcurrency) || errors.Is(err, checkpoint.ErrRegression) {
			reason := "concurrency"
			if errors.Is(err, checkpoint.ErrRegression) {
				reason = "regression"
			}
			metrics.CheckpointConflicts.WithLabelValues(chainLabel(cfg.ChainID), reason).Inc()
			run.logger.Warn("checkpoint advanced by another run",
				zap.Uint64("to", rng.To),
				zap.Uint64("version", cp.Version),
				zap.Error(err),
			)
			return false, nil
		}
		return false, fmt.Errorf("advance checkpoint: %w", err)
	}
	metrics.CheckpointBlock.WithLabelValues(chainLabel(cfg.ChainID), next.Address).Set(float64(next.LastProcessedBlock))
	return true, nil
}

func (c *Coordinator) alert(ctx context.Context, runID string, r ContractResult) {
	if c.deps.Alerter == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := c.deps.Alerter.Send(alertCtx, alert.Alert{
		Type:     alert.AlertTypeContractFailed,
		ChainID:  r.ChainID,
		Contract: r.Address,
		Title:    "contract ingestion failed",
		Message:  r.Error,
		Fields: map[string]string{
			"run_id": runID,
			"reason": r.Reason,
			"name":   r.Name,
		},
	})
	if err != nil {
		c.logger.Warn("send alert", zap.String("contract", r.Address), zap.Error(err))
	}
}

// headCache fetches each chain head once per run.
type headCache struct {
	fetcher Fetcher
	mu      sync.Mutex
	entries map[uint64]*headEntry
}

type headEntry struct {
	once sync.Once
	head uint64
	err  error
}

func newHeadCache(fetcher Fetcher) *headCache {
	return &headCache{fetcher: fetcher, entries: make(map[uint64]*headEntry)}
}

func (h *headCache) get(ctx context.Context, chainID uint64) (uint64, error) {
	h.mu.Lock()
	e, ok := h.entries[chainID]
	if !ok {
		e = &headEntry{}
		h.entries[chainID] = e
	}
	h.mu.Unlock()

	e.once.Do(func() {
		e.head, e.err = h.fetcher.ChainHead(ctx, chainID)
	})
	return e.head, e.err
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
