package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Task is run by a Loop on every tick.
type Task interface {
	Tick(ctx context.Context, now time.Time) error
}

// TickFunc is the func form of Task.
type TickFunc func(context.Context, time.Time) error

// Tick implements Task.
func (f TickFunc) Tick(ctx context.Context, now time.Time) error {
	return f(ctx, now)
}
