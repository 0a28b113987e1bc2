package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"eventScope/internal/model"
)

const defaultRedisPrefix = "checkpoint"

// RedisStore keeps one hash per contract and advances it inside a
// WATCH/MULTI transaction.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) hashKey(key model.ContractKey) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, key.ChainID, key.Address)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":keys"
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (s *RedisStore) read(ctx context.Context, r hashReader, key model.ContractKey) (Checkpoint, bool, error) {
	fields, err := r.HGetAll(ctx, s.hashKey(key)).Result()
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Empty(key), false, nil
	}
	cp, err := parseRedisFields(key, fields)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func parseRedisFields(key model.ContractKey, fields map[string]string) (Checkpoint, error) {
	block, err := strconv.ParseUint(fields["block"], 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint %s block: %w", key, err)
	}
	version, err := strconv.ParseUint(fields["version"], 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint %s version: %w", key, err)
	}
	cp := Checkpoint{
		ChainID:            key.ChainID,
		Address:            key.Address,
		LastProcessedBlock: block,
		Version:            version,
	}
	if ts := fields["updated_at"]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			cp.UpdatedAt = parsed
		}
	}
	return cp, nil
}

func (s *RedisStore) write(ctx context.Context, pipe redis.Pipeliner, cp Checkpoint) {
	key := cp.Key()
	pipe.HSet(ctx, s.hashKey(key),
		"block", strconv.FormatUint(cp.LastProcessedBlock, 10),
		"version", strconv.FormatUint(cp.Version, 10),
		"updated_at", cp.UpdatedAt.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, s.indexKey(), key.String())
}

func (s *RedisStore) Get(ctx context.Context, key model.ContractKey) (Checkpoint, bool, error) {
	return s.read(ctx, s.client, key)
}

func (s *RedisStore) Advance(ctx context.Context, prev Checkpoint, toBlock uint64) (Checkpoint, error) {
	key := prev.Key()
	var result Checkpoint
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, _, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		next, write, err := NextAdvance(stored, prev, toBlock, s.now())
		result = next
		if err != nil || !write {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, next)
			return nil
		})
		return err
	}, s.hashKey(key))
	if errors.Is(err, redis.TxFailedErr) {
		return Checkpoint{}, fmt.Errorf("%w: %s watched key modified", ErrConcurrency, key)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *RedisStore) Reset(ctx context.Context, key model.ContractKey, block uint64) (Checkpoint, error) {
	var result Checkpoint
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, _, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		result = NextReset(stored, key, block, s.now())
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, result)
			return nil
		})
		return err
	}, s.hashKey(key))
	if errors.Is(err, redis.TxFailedErr) {
		return Checkpoint{}, fmt.Errorf("%w: %s watched key modified", ErrConcurrency, key)
	}
	if err != nil {
		return Checkpoint{}, err
	}
	return result, nil
}

func (s *RedisStore) Delete(ctx context.Context, key model.ContractKey) error {
	if err := s.client.Del(ctx, s.hashKey(key)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", key, err)
	}
	if err := s.client.SRem(ctx, s.indexKey(), key.String()).Err(); err != nil {
		return fmt.Errorf("unindex checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Checkpoint, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]Checkpoint, 0, len(members))
	for _, member := range members {
		key, err := parseKey(member)
		if err != nil {
			return nil, err
		}
		cp, ok, err := s.read(ctx, s.client, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cp)
		}
	}
	SortCheckpoints(out)
	return out, nil
}

// parseKey parses the "<chain>:<address>" form of a contract key.
func parseKey(s string) (model.ContractKey, error) {
	chain, address, ok := strings.Cut(s, ":")
	if !ok {
		return model.ContractKey{}, fmt.Errorf("invalid checkpoint key %q", s)
	}
	chainID, err := strconv.ParseUint(chain, 10, 64)
	if err != nil {
		return model.ContractKey{}, fmt.Errorf("invalid checkpoint key %q: %w", s, err)
	}
	return model.NewContractKey(chainID, address), nil
}
