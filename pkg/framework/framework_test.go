package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	assert.NoError(t, errs.Aggregate())
	errs.Add(nil, errBoom)
	require.Error(t, errs.Aggregate())
	assert.Equal(t, "boom", errs.Error())
	errs.Add(errors.New("bang"))
	assert.Equal(t, "Multiple errors:\nboom\nbang", errs.Error())
	assert.True(t, errors.Is(errs.Aggregate(), errBoom))
}

func TestRunnerWait(t *testing.T) {
	r := NewRunner()
	r.Go(
		NamedRun("ok", RunFunc(func(context.Context) error { return nil })),
		NamedRun("fail", RunFunc(func(context.Context) error { return errBoom })),
	)
	err := r.Wait()
	assert.True(t, errors.Is(err, errBoom))
}

func TestRunnerWaitAny(t *testing.T) {
	r := NewRunner()
	r.Go(
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		RunFunc(func(context.Context) error { return nil }),
	)
	done := make(chan error, 1)
	go func() { done <- r.WaitAny() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked runner not stopped")
	}
}

type closer struct {
	closed int32
	ch     chan struct{}
}

func (c *closer) Close() error {
	if atomic.AddInt32(&c.closed, 1) == 1 {
		close(c.ch)
	}
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	c := &closer{ch: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunWithContextCloser(ctx, c, func() error {
		<-c.ch
		return nil
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.closed))

	c = &closer{ch: make(chan struct{})}
	err = RunWithContextCloser(context.Background(), c, func() error { return errBoom })
	assert.Equal(t, errBoom, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.closed))
}

func TestLoop(t *testing.T) {
	var ticks int32
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(time.Millisecond, TickFunc(func(context.Context, time.Time) error {
		if atomic.AddInt32(&ticks, 1) == 3 {
			cancel()
		}
		return errBoom
	}))
	err := loop.Run(ctx)
	assert.Equal(t, context.Canceled, err)
	assert.True(t, atomic.LoadInt32(&ticks) >= 3)

	loop.StopOnError = true
	err = loop.Run(context.Background())
	assert.Equal(t, errBoom, err)
}
