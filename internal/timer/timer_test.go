package timer

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStopwatchAccumulates(t *testing.T) {
	var w Stopwatch
	w.add(100*time.Millisecond, 1)
	w.add(50*time.Millisecond, 1)

	if got := w.Elapsed(); got != 150*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 150ms", got)
	}
	if got := w.Calls(); got != 2 {
		t.Errorf("Calls() = %d, want 2", got)
	}
}

func TestStopwatchStart(t *testing.T) {
	var w Stopwatch
	stop := w.Start()
	time.Sleep(time.Millisecond)
	stop()

	if w.Elapsed() <= 0 {
		t.Errorf("Elapsed() = %v, want > 0", w.Elapsed())
	}
	if w.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", w.Calls())
	}
}

func TestSetMeasure(t *testing.T) {
	s := NewSet()
	for i := 0; i < 3; i++ {
		stop := s.Measure("total")
		stop()
	}
	s.Measure("score")()

	if got := s.Watch("total").Calls(); got != 3 {
		t.Errorf("total calls = %d, want 3", got)
	}
	if got := s.Watch("score").Calls(); got != 1 {
		t.Errorf("score calls = %d, want 1", got)
	}
}

func TestSetNamesSorted(t *testing.T) {
	s := NewSet()
	s.Watch("total")
	s.Watch("score")
	s.Watch("load")

	want := []string{"load", "score", "total"}
	names := s.Names()
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSetResult(t *testing.T) {
	s := NewSet()
	s.Watch("total").add(2*time.Second, 4)

	rows := s.Result(4)
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Name != "total" {
		t.Errorf("Name = %q, want %q", row.Name, "total")
	}
	if row.AccSeconds != 2.0 {
		t.Errorf("AccSeconds = %v, want 2.0", row.AccSeconds)
	}
	if row.AvgSeconds != 0.5 {
		t.Errorf("AvgSeconds = %v, want 0.5", row.AvgSeconds)
	}
	if row.Calls != 4 {
		t.Errorf("Calls = %d, want 4", row.Calls)
	}
}

func TestSetResultZeroSentences(t *testing.T) {
	s := NewSet()
	s.Watch("total").add(time.Second, 1)

	rows := s.Result(0)
	if rows[0].AvgSeconds != 0 {
		t.Errorf("AvgSeconds = %v, want 0 when nsents is 0", rows[0].AvgSeconds)
	}
}

func TestAggregate(t *testing.T) {
	a := NewSet()
	a.Watch("total").add(time.Second, 2)
	a.Watch("score").add(time.Second, 1)

	b := NewSet()
	b.Watch("total").add(3*time.Second, 1)

	merged := Aggregate(a, b, nil)
	if got := merged.Watch("total").Elapsed(); got != 4*time.Second {
		t.Errorf("total elapsed = %v, want 4s", got)
	}
	if got := merged.Watch("total").Calls(); got != 3 {
		t.Errorf("total calls = %d, want 3", got)
	}
	if got := merged.Watch("score").Calls(); got != 1 {
		t.Errorf("score calls = %d, want 1", got)
	}
}

func TestMeasureConcurrent(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.Measure("total")()
			}
		}()
	}
	wg.Wait()

	if got := s.Watch("total").Calls(); got != 160 {
		t.Errorf("Calls() = %d, want 160", got)
	}
}

func TestFromContext(t *testing.T) {
	s := NewSet()
	ctx := WithContext(context.Background(), s)

	if got := FromContext(ctx); got != s {
		t.Error("FromContext() did not return the carried set")
	}
	if got := FromContext(context.Background()); got != Default() {
		t.Error("FromContext() without a set did not fall back to Default()")
	}
}

func TestReset(t *testing.T) {
	old := Default()
	fresh := Reset()
	if fresh == old {
		t.Error("Reset() returned the previous set")
	}
	if Default() != fresh {
		t.Error("Default() does not return the set Reset() installed")
	}
}
