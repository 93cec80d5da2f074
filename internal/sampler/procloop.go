package sampler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

// ProcessLoop runs a ProcessSampler on its own cadence and publishes each
// completed list. Enumeration is the most expensive sample, so it stays off
// the main aggregation pass.
type ProcessLoop struct {
	sampler  *ProcessSampler
	interval time.Duration
	log      *zap.SugaredLogger

	mu     sync.RWMutex
	procs  []model.Process
	at     time.Time
	passes uint64

	failing bool
}

func NewProcessLoop(s *ProcessSampler, interval time.Duration, log *zap.SugaredLogger) *ProcessLoop {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProcessLoop{sampler: s, interval: interval, log: nopIfNil(log)}
}

// Run samples immediately and then once per interval until ctx is done.
func (l *ProcessLoop) Run(ctx context.Context) error {
	l.update(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.update(ctx)
		}
	}
}

func (l *ProcessLoop) update(ctx context.Context) {
	procs, err := l.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if !l.failing {
			l.log.Warnf("process table unreadable: %v", err)
			l.failing = true
		}
		return
	}
	l.failing = false
	at := time.Now()

	// The sampler built a fresh slice; readers only ever see whole lists.
	l.mu.Lock()
	l.procs = procs
	l.at = at
	l.passes++
	l.mu.Unlock()
}

// Latest returns a copy of the most recently published list and when it was
// captured. Before the first pass it returns nil and the zero time.
func (l *ProcessLoop) Latest() ([]model.Process, time.Time) {
	l.mu.RLock()
	procs, at := l.procs, l.at
	l.mu.RUnlock()

	if procs == nil {
		return nil, at
	}
	out := make([]model.Process, len(procs))
	copy(out, procs)
	return out, at
}

// Passes is the number of lists published so far.
func (l *ProcessLoop) Passes() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.passes
}
