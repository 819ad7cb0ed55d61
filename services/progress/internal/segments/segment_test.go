package segments

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/example/watch-progress/services/progress/internal/interval"
	"github.com/example/watch-progress/services/progress/internal/store"
)

func TestApply_MergesIntoStoredRecord(t *testing.T) {
	s := store.NewInMemoryProgressStore()
	a := NewApplier(s)
	ctx := context.Background()

	_, _ = s.Save(ctx, "u1", "v1", []interval.Interval{{Start: 0, End: 30}}, 30, 600)

	rec, err := a.Apply(ctx, Segment{UserID: "u1", VideoID: "v1", Start: 100, End: 130})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := []interval.Interval{{Start: 0, End: 30}, {Start: 100, End: 130}}
	if !reflect.DeepEqual(rec.WatchedIntervals, want) {
		t.Fatalf("expected %v, got %v", want, rec.WatchedIntervals)
	}
	if rec.TotalProgress != 10 {
		t.Fatalf("expected 10, got %v", rec.TotalProgress)
	}
	if rec.LastPosition != 130 {
		t.Fatalf("expected last position to default to segment end, got %v", rec.LastPosition)
	}
	if rec.VideoDuration != 600 {
		t.Fatalf("expected stored duration to be kept, got %v", rec.VideoDuration)
	}
}

func TestApply_OverlapDoesNotInflateProgress(t *testing.T) {
	s := store.NewInMemoryProgressStore()
	a := NewApplier(s)
	ctx := context.Background()

	for _, seg := range []Segment{
		{UserID: "u1", VideoID: "v1", Start: 0, End: 50, VideoDuration: 100},
		{UserID: "u1", VideoID: "v1", Start: 20, End: 40, LastPosition: 40},
		{UserID: "u1", VideoID: "v1", Start: 0, End: 50},
	} {
		if _, err := a.Apply(ctx, seg); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	rec, _, _ := s.Get(ctx, "u1", "v1")
	if rec.TotalProgress != 50 {
		t.Fatalf("expected 50, got %v", rec.TotalProgress)
	}
}

func TestApply_RejectsInvalidSegments(t *testing.T) {
	a := NewApplier(store.NewInMemoryProgressStore())
	cases := []Segment{
		{UserID: "", VideoID: "v1", Start: 0, End: 10},
		{UserID: "u1", VideoID: " ", Start: 0, End: 10},
		{UserID: "u1", VideoID: "v1", Start: 10, End: 5},
		{UserID: "u1", VideoID: "v1", Start: -1, End: 5},
		{UserID: "u1", VideoID: "v1", Start: 7, End: 7},
	}
	for _, seg := range cases {
		if _, err := a.Apply(context.Background(), seg); !errors.Is(err, ErrInvalidSegment) {
			t.Fatalf("expected ErrInvalidSegment for %+v, got %v", seg, err)
		}
	}
}

func TestApply_ConcurrentSegmentsAreAllKept(t *testing.T) {
	s := store.NewInMemoryProgressStore()
	a := NewApplier(s)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := float64(i * 10)
			_, _ = a.Apply(ctx, Segment{UserID: "u1", VideoID: "v1", Start: start, End: start + 5, VideoDuration: 100})
		}(i)
	}
	wg.Wait()

	rec, _, _ := s.Get(ctx, "u1", "v1")
	if len(rec.WatchedIntervals) != 10 || rec.TotalProgress != 50 {
		t.Fatalf("expected 10 spans and 50%%, got %d spans and %v", len(rec.WatchedIntervals), rec.TotalProgress)
	}
}

func TestPublisher_DisabledWithoutJetStream(t *testing.T) {
	var nilPub *Publisher
	if nilPub.Enabled() {
		t.Fatal("nil publisher must be disabled")
	}
	p := NewPublisher(nil, true)
	if p.Enabled() {
		t.Fatal("publisher without jetstream must be disabled")
	}
	if _, err := p.Publish(Segment{UserID: "u1", VideoID: "v1", Start: 0, End: 1}); !errors.Is(err, ErrAsyncPublishDisabled) {
		t.Fatalf("expected ErrAsyncPublishDisabled, got %v", err)
	}
}
