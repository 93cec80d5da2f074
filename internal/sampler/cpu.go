package sampler

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
	"github.com/Dicklesworthstone/hostwatch/internal/rate"
)

// ticks is the (idle, total) pair a utilization ratio is computed from.
type ticks struct {
	idle  float64
	total float64
}

func ticksOf(t cpu.TimesStat) ticks {
	idle := t.Idle + t.Iowait
	return ticks{
		idle:  idle,
		total: t.User + t.Nice + t.System + idle + t.Irq + t.Softirq,
	}
}

// CPUSampler computes system-wide and per-core utilization from tick deltas.
type CPUSampler struct {
	counters CPUCounters
	sensors  SensorReader
	log      *zap.SugaredLogger

	prev     ticks
	hasPrev  bool
	prevCore map[int]ticks
	last     model.CPU
	failing  bool
}

// NewCPUSampler returns a sampler reading counters. sensors may be nil.
func NewCPUSampler(counters CPUCounters, sensors SensorReader, log *zap.SugaredLogger) *CPUSampler {
	return &CPUSampler{
		counters: counters,
		sensors:  sensors,
		log:      nopIfNil(log),
		prevCore: make(map[int]ticks),
	}
}

// Sample reads the tick counters and returns utilization since the previous
// call. When the counters cannot be read the previous view is returned
// unchanged.
func (s *CPUSampler) Sample(ctx context.Context) model.CPU {
	total, perCore, err := s.counters.Times(ctx)
	if err != nil {
		if !s.failing {
			s.log.Warnf("cpu counters unreadable, holding last value: %v", err)
			s.failing = true
		}
		return s.last
	}
	if s.failing {
		s.log.Infof("cpu counters readable again")
		s.failing = false
	}

	view := model.CPU{}
	cur := ticksOf(total)
	if s.hasPrev {
		view.Total, view.Ready = s.utilization(s.prev, cur, s.last.Total, s.last.Ready)
	}
	s.prev, s.hasPrev = cur, true

	view.PerCore = s.cores(ctx, perCore)

	if avg, err := s.counters.LoadAvg(ctx); err == nil && avg != nil {
		view.Load1, view.Load5, view.Load15 = avg.Load1, avg.Load5, avg.Load15
	}

	s.last = view
	return view
}

// utilization returns percent busy between two tick readings. A zero interval
// keeps the previous value; a counter reset starts over from zero.
func (s *CPUSampler) utilization(prev, cur ticks, lastPct float64, lastReady bool) (float64, bool) {
	r, err := rate.BusyRatio(prev.idle, prev.total, cur.idle, cur.total)
	switch {
	case err == nil:
		return r * 100, true
	case errors.Is(err, rate.ErrDegenerateInterval):
		return lastPct, lastReady
	default:
		return 0, false
	}
}

func (s *CPUSampler) cores(ctx context.Context, perCore []cpu.TimesStat) []model.Core {
	var temps, freqs map[int]float64
	if s.sensors != nil {
		temps, _ = s.sensors.CoreTemps(ctx)
		freqs, _ = s.sensors.CoreFreqs(ctx)
	}

	lastByIndex := make(map[int]model.Core, len(s.last.PerCore))
	for _, c := range s.last.PerCore {
		lastByIndex[c.Index] = c
	}

	out := make([]model.Core, 0, len(perCore))
	next := make(map[int]ticks, len(perCore))
	for i, t := range perCore {
		idx := coreIndex(t.CPU, i)
		cur := ticksOf(t)
		core := model.Core{Index: idx}
		if prev, ok := s.prevCore[idx]; ok {
			last := lastByIndex[idx]
			core.Usage, core.Ready = s.utilization(prev, cur, last.Usage, last.Ready)
		}
		if v, ok := temps[idx]; ok {
			core.TempC = model.Some(v)
		}
		if v, ok := freqs[idx]; ok {
			core.FreqMHz = model.Some(v)
		}
		next[idx] = cur
		out = append(out, core)
	}
	// Cores that went offline drop out of state with the swap.
	s.prevCore = next

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// coreIndex parses "cpu3" into 3, falling back to the slice position.
func coreIndex(name string, pos int) int {
	if idx, err := strconv.Atoi(strings.TrimPrefix(name, "cpu")); err == nil {
		return idx
	}
	return pos
}
