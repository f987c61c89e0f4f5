// Package sched runs a task on a fixed interval. Ticks never overlap:
// a slow cycle simply delays the next one, which keeps the downstream
// RPC load bounded and makes the processing order deterministic.
package sched

import (
	"context"
	"time"
)

// Task is one polling cycle. A returned error is reported and the loop
// continues; only context cancellation stops the poller.
type Task func(ctx context.Context) error

// Poller drives a Task at a fixed interval.
type Poller struct {
	interval time.Duration
	task     Task
	onError  func(error)
}

// NewPoller creates a poller. onError may be nil to ignore cycle errors.
func NewPoller(interval time.Duration, task Task, onError func(error)) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{interval: interval, task: task, onError: onError}
}

// Run executes the task immediately, then once per interval, until ctx
// is cancelled. Always returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.task(ctx); err != nil && p.onError != nil {
		p.onError(err)
	}
}
