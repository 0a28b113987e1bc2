package main

import (
	"reflect"
	"testing"

	"eventScope/internal/indexer"
	"eventScope/internal/model"
)

func TestBacklogRanges(t *testing.T) {
	policy := indexer.PlanPolicy{ConfirmationDepth: 12, MaxRangeSize: 50}
	c := model.ContractConfig{StartBlock: 100}
	next, ok := indexer.Plan(c, 0, false, 250, policy)
	if !ok {
		t.Fatalf("expected a range")
	}

	got, err := backlogRanges(c, next, 250, policy)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	want := []model.BlockRange{{From: 100, To: 149}, {From: 150, To: 199}, {From: 200, To: 238}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("backlog mismatch: %v != %v", got, want)
	}
	if got[0] != next {
		t.Fatalf("first backlog range %s differs from planned %s", got[0], next)
	}

	c.EndBlock = 160
	got, err = backlogRanges(c, next, 250, policy)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	want = []model.BlockRange{{From: 100, To: 149}, {From: 150, To: 160}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bounded backlog mismatch: %v != %v", got, want)
	}
}
