// Package sessionpool bounds the number of live portal scraping
// sessions. The remote portal and the local scraping client are the
// real bottleneck, so capacity stays deliberately small (default 1)
// and acquisition is the single concurrency control point for the
// whole service.
package sessionpool

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
)

var ErrExhausted = errors.New("no scraping session slot available")

var meter = otel.Meter("lib/sessionpool")
var heldGauge, _ = meter.Int64Gauge("held_slots")

// Pool hands out fixed slots. One explicit pool object is constructed
// at process start and passed to workers; there are no package-level
// counters behind it.
type Pool struct {
	slots    chan struct{}
	capacity int
}

func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		slots:    make(chan struct{}, capacity),
		capacity: capacity,
	}
	for i := 0; i < capacity; i++ {
		p.slots <- struct{}{}
	}
	return p
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Acquire blocks until a slot frees up or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case <-p.slots:
		heldGauge.Record(ctx, int64(p.capacity-len(p.slots)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AcquireTimeout is Acquire with a bounded wait; an expired wait is
// reported as ErrExhausted so the caller can retry next cycle.
func (p *Pool) AcquireTimeout(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.slots:
		heldGauge.Record(ctx, int64(p.capacity-len(p.slots)))
		return nil
	case <-timer.C:
		return ErrExhausted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Releasing more than was acquired panics:
// that is always a caller bug and silently widening the pool would
// defeat the whole point of it.
func (p *Pool) Release() {
	select {
	case p.slots <- struct{}{}:
		heldGauge.Record(context.Background(), int64(p.capacity-len(p.slots)))
	default:
		panic("sessionpool: release without matching acquire")
	}
}

// With runs fn while holding a slot, releasing on every exit path.
func (p *Pool) With(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	var err error
	if timeout > 0 {
		err = p.AcquireTimeout(ctx, timeout)
	} else {
		err = p.Acquire(ctx)
	}
	if err != nil {
		return err
	}
	defer p.Release()
	return fn(ctx)
}
