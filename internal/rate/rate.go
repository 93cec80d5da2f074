// Package rate turns pairs of monotonic counter samples into rates and ratios.
//
// Every function here is pure. Callers own the previous sample and decide what
// to do on ErrCounterReset or ErrDegenerateInterval. The samplers keep the
// current sample as the new baseline either way; a counter reset reports zero
// for the pass, a degenerate interval repeats the last reported value.
package rate

import (
	"errors"
	"time"
)

var (
	// ErrCounterReset reports a counter that went backwards: wraparound, a
	// restarted process, or a re-enumerated interface.
	ErrCounterReset = errors.New("rate: counter reset")
	// ErrDegenerateInterval reports samples without a positive interval
	// between them.
	ErrDegenerateInterval = errors.New("rate: degenerate interval")
)

// Number is a counter value. CPU time arrives from gopsutil as float64
// seconds, byte counters as uint64.
type Number interface {
	~uint64 | ~int64 | ~float64
}

// Sample is one observation of a counter.
type Sample[T Number] struct {
	Value T
	At    time.Time
}

// Delta returns curr-prev, or ErrCounterReset when the counter decreased.
func Delta[T Number](prev, curr T) (T, error) {
	if curr < prev {
		return 0, ErrCounterReset
	}
	return curr - prev, nil
}

// PerSecond returns the counter's change per second of wall-clock time between
// two samples. The result is never negative.
func PerSecond[T Number](prev, curr Sample[T]) (float64, error) {
	if !curr.At.After(prev.At) {
		return 0, ErrDegenerateInterval
	}
	d, err := Delta(prev.Value, curr.Value)
	if err != nil {
		return 0, err
	}
	return float64(d) / curr.At.Sub(prev.At).Seconds(), nil
}

// BusyRatio returns 1 - idleDelta/totalDelta in [0,1]. It is a ratio of deltas
// rather than a wall-clock rate, so a zero total delta stands in for a zero
// interval.
func BusyRatio[T Number](prevIdle, prevTotal, currIdle, currTotal T) (float64, error) {
	dt, err := Delta(prevTotal, currTotal)
	if err != nil {
		return 0, err
	}
	di, err := Delta(prevIdle, currIdle)
	if err != nil {
		return 0, err
	}
	if dt == 0 {
		return 0, ErrDegenerateInterval
	}
	return clamp(1-float64(di)/float64(dt), 0, 1), nil
}

// Scope says what a CPU-time rate is measured against.
type Scope int

const (
	// SingleCore reports percent of one core. A busy process can exceed 100.
	SingleCore Scope = iota
	// AllCores reports percent of the whole machine, 0-100 on any core count.
	AllCores
)

// CPUPercent converts CPU seconds consumed per wall-clock second into a
// percentage for the given scope.
func CPUPercent(busyPerSecond float64, cores int, scope Scope) float64 {
	pct := busyPerSecond * 100
	if scope == AllCores && cores > 0 {
		pct /= float64(cores)
	}
	if pct < 0 {
		return 0
	}
	return pct
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
