package sampler

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

// ErrNoMemoryTotal reports a memory reading with a zero total.
var ErrNoMemoryTotal = errors.New("memory: total is zero")

// MemorySampler reports point-in-time memory usage.
type MemorySampler struct {
	counters MemoryCounters
}

func NewMemorySampler(counters MemoryCounters) *MemorySampler {
	return &MemorySampler{counters: counters}
}

// Sample returns memory usage with used = total - free - buffers - cached.
func (s *MemorySampler) Sample(ctx context.Context) (model.Memory, error) {
	vm, err := s.counters.VirtualMemory(ctx)
	if err != nil {
		return model.Memory{}, fmt.Errorf("virtual memory: %w", err)
	}
	// gopsutil folds SReclaimable into Cached on Linux; the formula wants
	// the page cache alone.
	cached := vm.Cached
	if vm.Sreclaimable <= cached {
		cached -= vm.Sreclaimable
	}
	used, pct, err := UsedMemory(vm.Total, vm.Free, vm.Buffers, cached)
	if err != nil {
		return model.Memory{}, err
	}
	out := model.Memory{
		TotalBytes:  vm.Total,
		FreeBytes:   vm.Free,
		Buffers:     vm.Buffers,
		Cached:      cached,
		UsedBytes:   used,
		UsedPercent: pct,
	}
	if sw, err := s.counters.SwapMemory(ctx); err == nil && sw != nil {
		out.SwapUsed = sw.Used
		out.SwapTotal = sw.Total
		if sw.Total > 0 {
			out.SwapPercent = float64(sw.Used) * 100 / float64(sw.Total)
		}
	}
	return out, nil
}

// UsedMemory applies the used-memory formula. Units are whatever the inputs
// share.
func UsedMemory(total, free, buffers, cached uint64) (used uint64, pct float64, err error) {
	if total == 0 {
		return 0, 0, ErrNoMemoryTotal
	}
	reclaimable := free + buffers + cached
	if reclaimable < total {
		used = total - reclaimable
	}
	return used, float64(used) * 100 / float64(total), nil
}
