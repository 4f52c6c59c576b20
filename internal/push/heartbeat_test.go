package push

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingBroadcaster struct {
	calls atomic.Int32
	err   error
}

func (b *countingBroadcaster) BroadcastHeartbeat(ctx context.Context) (int, error) {
	b.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("no deadline")
	}
	return 3, b.err
}

func TestNewHeartbeat_BadSchedule(t *testing.T) {
	if _, err := NewHeartbeat("every now and then", &countingBroadcaster{}, time.Second, nil); err == nil {
		t.Error("expected schedule parse error")
	}
}

func TestHeartbeat_Beat(t *testing.T) {
	b := &countingBroadcaster{}
	hb, err := NewHeartbeat("@every 30s", b, time.Second, nil)
	if err != nil {
		t.Fatalf("NewHeartbeat failed: %v", err)
	}

	hb.beat()
	b.err = errors.New("write failed")
	hb.beat()

	if n := b.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestHeartbeat_Schedule(t *testing.T) {
	b := &countingBroadcaster{}
	hb, err := NewHeartbeat("@every 1s", b, time.Second, nil)
	if err != nil {
		t.Fatalf("NewHeartbeat failed: %v", err)
	}

	hb.Start()
	waitFor(t, "scheduled beat", func() bool { return b.calls.Load() > 0 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := hb.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
