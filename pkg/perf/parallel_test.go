// Package perf tests
package perf

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestForEach_VisitsEveryItem(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var sum atomic.Int64

	errs := ForEach(context.Background(), items, 3, func(_ context.Context, _ int, n int) error {
		sum.Add(int64(n))
		return nil
	})

	if len(errs) != len(items) {
		t.Fatalf("len(errs) = %d, want %d", len(errs), len(items))
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("errs[%d] = %v", i, err)
		}
	}
	if sum.Load() != 36 {
		t.Errorf("sum = %d, want 36", sum.Load())
	}
}

func TestForEach_ErrorDoesNotCancelSiblings(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	errs := ForEach(context.Background(), []string{"a", "b", "c"}, 1, func(ctx context.Context, idx int, _ string) error {
		ran.Add(1)
		if ctx.Err() != nil {
			t.Errorf("context cancelled at index %d", idx)
		}
		if idx == 0 {
			return boom
		}
		return nil
	})

	if ran.Load() != 3 {
		t.Errorf("ran = %d, want 3", ran.Load())
	}
	if !errors.Is(errs[0], boom) || errs[1] != nil || errs[2] != nil {
		t.Errorf("errs = %v", errs)
	}
}

func TestForEach_RecoversPanics(t *testing.T) {
	errs := ForEach(context.Background(), []int{0, 1}, 0, func(_ context.Context, idx int, _ int) error {
		if idx == 1 {
			panic("kaboom")
		}
		return nil
	})

	var pe *PanicError
	if !errors.As(errs[1], &pe) {
		t.Fatalf("errs[1] = %v, want *PanicError", errs[1])
	}
	if pe.Index != 1 || pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Errorf("PanicError = %+v", pe)
	}
	if errs[0] != nil {
		t.Errorf("errs[0] = %v", errs[0])
	}
}

func TestForEach_BoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32

	ForEach(context.Background(), make([]struct{}, 10), 2, func(context.Context, int, struct{}) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestForEach_Empty(t *testing.T) {
	errs := ForEach(context.Background(), []int(nil), 4, func(context.Context, int, int) error {
		t.Fatal("fn called for empty input")
		return nil
	})
	if len(errs) != 0 {
		t.Errorf("len(errs) = %d", len(errs))
	}
}

func TestMap_PreservesOrder(t *testing.T) {
	results, errs := Map(context.Background(), []int{3, 1, 2}, 3, func(_ context.Context, _ int, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})

	want := []int{30, 10, 20}
	for i := range want {
		if errs[i] != nil || results[i] != want[i] {
			t.Errorf("results[%d] = %d, %v; want %d", i, results[i], errs[i], want[i])
		}
	}
}
