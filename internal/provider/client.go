package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"eventScope/internal/metrics"
	"eventScope/internal/model"
)

const defaultPageSize = 1000

// PageRequest asks a source for one page of logs.
type PageRequest struct {
	ChainID   uint64
	Address   string
	FromBlock uint64
	ToBlock   uint64
	Page      int
	PageSize  int
}

// Page is one page of provider results in provider order.
type Page struct {
	Logs    []model.RawLog
	HasMore bool
}

// Source is a chain data provider.
type Source interface {
	Name() string
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
	ChainHead(ctx context.Context, chainID uint64) (uint64, error)
}

// FetchResult is the outcome of fetching one block range.
type FetchResult struct {
	Logs     []model.RawLog
	Requests int
	Retries  int
	Pages    int
	Splits   int
}

// Options configures a Client.
type Options struct {
	PageSize int
	Retry    RetryPolicy
	// Sleep and Rand replace the backoff timer and jitter source.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

// Client fetches logs from a Source under a shared rate limiter, retrying
// transient failures.
type Client struct {
	source   Source
	limiter  *Limiter
	pageSize int
	policy   RetryPolicy
	sleep    func(ctx context.Context, d time.Duration) error
	rand     func() float64
	logger   *zap.Logger
}

func NewClient(source Source, limiter *Limiter, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Client{
		source:   source,
		limiter:  limiter,
		pageSize: opts.PageSize,
		policy:   opts.Retry,
		sleep:    opts.Sleep,
		rand:     opts.Rand,
		logger:   logger.With(zap.String("provider", source.Name())),
	}
}

// Name returns the source name.
func (c *Client) Name() string {
	return c.source.Name()
}

// ChainHead returns the latest block number of a chain.
func (c *Client) ChainHead(ctx context.Context, chainID uint64) (uint64, error) {
	var head uint64
	_, err := c.do(ctx, "chain_head", func(ctx context.Context) error {
		var err error
		head, err = c.source.ChainHead(ctx, chainID)
		return err
	})
	return head, err
}

// Fetch returns every log emitted by the contract in rng, ordered by
// (block_number, log_index). Ranges the provider refuses to page through
// are split in halves.
func (c *Client) Fetch(ctx context.Context, cfg model.ContractConfig, rng model.BlockRange) (FetchResult, error) {
	var result FetchResult
	if err := c.fetchRange(ctx, cfg, rng, &result); err != nil {
		return result, err
	}
	sort.SliceStable(result.Logs, func(i, j int) bool {
		return result.Logs[i].Less(result.Logs[j])
	})
	return result, nil
}

func (c *Client) fetchRange(ctx context.Context, cfg model.ContractConfig, rng model.BlockRange, result *FetchResult) error {
	var logs []model.RawLog
	for page := 1; ; page++ {
		req := PageRequest{
			ChainID:   cfg.ChainID,
			Address:   model.NormalizeAddress(cfg.Address),
			FromBlock: rng.From,
			ToBlock:   rng.To,
			Page:      page,
			PageSize:  c.pageSize,
		}
		var got Page
		retries, err := c.do(ctx, "get_logs", func(ctx context.Context) error {
			result.Requests++
			var err error
			got, err = c.source.FetchPage(ctx, req)
			return err
		})
		result.Retries += retries
		if err != nil {
			if errors.Is(err, ErrRangeTooLarge) && rng.From < rng.To {
				return c.split(ctx, cfg, rng, result)
			}
			return err
		}
		result.Pages++
		for _, l := range got.Logs {
			if l.ChainID == 0 {
				l.ChainID = cfg.ChainID
			}
			if l.Address == "" {
				l.Address = req.Address
			}
			l.Address = model.NormalizeAddress(l.Address)
			logs = append(logs, l)
		}
		if !got.HasMore {
			break
		}
	}
	result.Logs = append(result.Logs, logs...)
	return nil
}

func (c *Client) split(ctx context.Context, cfg model.ContractConfig, rng model.BlockRange, result *FetchResult) error {
	mid := rng.From + (rng.To-rng.From)/2
	result.Splits++
	c.logger.Debug("splitting block range",
		zap.String("contract", cfg.Key().String()),
		zap.Uint64("from", rng.From),
		zap.Uint64("to", rng.To),
	)
	if err := c.fetchRange(ctx, cfg, model.BlockRange{From: rng.From, To: mid}, result); err != nil {
		return err
	}
	return c.fetchRange(ctx, cfg, model.BlockRange{From: mid + 1, To: rng.To}, result)
}

// do runs fn under the rate limiter with bounded retries and returns the
// number of retries performed.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	name := c.source.Name()
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return attempt - 1, &FetchError{Op: op, Retryable: true, Attempts: attempt - 1, Err: err}
		}

		start := time.Now()
		err := fn(ctx)
		metrics.ProviderRequestLatency.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.ProviderRequestsTotal.WithLabelValues(name, op, "ok").Inc()
			return attempt - 1, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ProviderRequestsTotal.WithLabelValues(name, op, "canceled").Inc()
			return attempt - 1, &FetchError{Op: op, Retryable: true, Attempts: attempt, Err: ctxErr}
		}

		decision := Classify(err)
		if !decision.Retryable {
			metrics.ProviderRequestsTotal.WithLabelValues(name, op, "terminal").Inc()
			return attempt - 1, &FetchError{Op: op, Retryable: false, Attempts: attempt, Err: err}
		}
		metrics.ProviderRequestsTotal.WithLabelValues(name, op, "transient").Inc()
		if attempt >= c.policy.MaxAttempts {
			return attempt - 1, &FetchError{Op: op, Retryable: true, Attempts: attempt, Err: fmt.Errorf("retries exhausted: %w", err)}
		}

		delay := c.policy.Delay(attempt-1, c.rand())
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > delay {
			delay = statusErr.RetryAfter
		}
		c.logger.Warn("provider call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.String("reason", decision.Reason),
			zap.Error(err),
		)
		metrics.ProviderRetriesTotal.WithLabelValues(name, op).Inc()
		if err := c.sleep(ctx, delay); err != nil {
			return attempt, &FetchError{Op: op, Retryable: true, Attempts: attempt, Err: err}
		}
	}
}
