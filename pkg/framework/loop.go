package framework

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// Loop runs tasks periodically, in order, until the context is done.
type Loop struct {
	Interval time.Duration
	Tasks    []Task
	// StopOnError stops the loop on the first failing task, otherwise the
	// failure is logged.
	StopOnError bool
}

// NewLoop creates a Loop.
func NewLoop(interval time.Duration, tasks ...Task) *Loop {
	return &Loop{Interval: interval, Tasks: tasks}
}

// Add appends tasks.
func (l *Loop) Add(tasks ...Task) *Loop {
	l.Tasks = append(l.Tasks, tasks...)
	return l
}

// Run implements Runnable. Tasks run immediately and then on each tick.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	now := time.Now()
	for {
		if err := l.iterate(ctx, now); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now = <-ticker.C:
		}
	}
}

func (l *Loop) iterate(ctx context.Context, now time.Time) error {
	for n, task := range l.Tasks {
		if err := task.Tick(ctx, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if l.StopOnError {
				return err
			}
			glog.Errorf("Task[%d] failed: %v", n, err)
		}
	}
	return nil
}
