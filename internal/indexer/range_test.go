package indexer

import (
	"reflect"
	"testing"

	"eventScope/internal/model"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestPlanFirstRange(t *testing.T) {
	cfg := model.ContractConfig{ChainID: 1, Address: "0xabc", StartBlock: 100}
	policy := PlanPolicy{ConfirmationDepth: 12, MaxRangeSize: 1000}

	got, ok := Plan(cfg, 0, false, 250, policy)
	if !ok {
		t.Fatalf("expected a range")
	}
	want := model.BlockRange{From: 100, To: 238}
	if got != want {
		t.Fatalf("range mismatch: %s != %s", got, want)
	}

	again, ok := Plan(cfg, 0, false, 250, policy)
	if !ok || again != got {
		t.Fatalf("plan is not idempotent: %s != %s", again, got)
	}
}

func TestPlan(t *testing.T) {
	policy := PlanPolicy{ConfirmationDepth: 12, MaxRangeSize: 100}
	cases := []struct {
		name          string
		cfg           model.ContractConfig
		last          uint64
		hasCheckpoint bool
		head          uint64
		want          model.BlockRange
		ok            bool
	}{
		{name: "resume after checkpoint", cfg: model.ContractConfig{StartBlock: 100}, last: 150, hasCheckpoint: true, head: 1000, want: model.BlockRange{From: 151, To: 250}, ok: true},
		{name: "checkpoint below start", cfg: model.ContractConfig{StartBlock: 100}, last: 10, hasCheckpoint: true, head: 1000, want: model.BlockRange{From: 100, To: 199}, ok: true},
		{name: "checkpoint zero", cfg: model.ContractConfig{StartBlock: 0}, last: 0, hasCheckpoint: true, head: 50, want: model.BlockRange{From: 1, To: 38}, ok: true},
		{name: "up to date", cfg: model.ContractConfig{StartBlock: 100}, last: 238, hasCheckpoint: true, head: 250},
		{name: "head below depth", cfg: model.ContractConfig{StartBlock: 0}, head: 5},
		{name: "head inside depth window", cfg: model.ContractConfig{StartBlock: 245}, head: 250},
		{name: "end block caps range", cfg: model.ContractConfig{StartBlock: 100, EndBlock: 120}, head: 1000, want: model.BlockRange{From: 100, To: 120}, ok: true},
		{name: "backfill finished", cfg: model.ContractConfig{StartBlock: 100, EndBlock: 120}, last: 120, hasCheckpoint: true, head: 1000},
		{name: "max uint checkpoint", cfg: model.ContractConfig{}, last: ^uint64(0), hasCheckpoint: true, head: ^uint64(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Plan(tc.cfg, tc.last, tc.hasCheckpoint, tc.head, policy)
			if ok != tc.ok {
				t.Fatalf("ok mismatch: got %v want %v (range %s)", ok, tc.ok, got)
			}
			if ok && got != tc.want {
				t.Fatalf("range mismatch: %s != %s", got, tc.want)
			}
			if ok && got.Len() > policy.MaxRangeSize {
				t.Fatalf("range %s exceeds max size", got)
			}
		})
	}
}

func TestPlanNeverExceedsLargeMaxRange(t *testing.T) {
	cfg := model.ContractConfig{StartBlock: 10}
	got, ok := Plan(cfg, 0, false, ^uint64(0), PlanPolicy{MaxRangeSize: ^uint64(0)})
	if !ok {
		t.Fatalf("expected a range")
	}
	if got.From != 10 || got.To != ^uint64(0) {
		t.Fatalf("unexpected range: %s", got)
	}
}
