package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
	"github.com/Dicklesworthstone/hostwatch/internal/rate"
)

// ScoreWeights combine per-process CPU%, memory% and disk MB/s into the
// heuristic used to rank the process list. The score orders the top-N view;
// it is not a resource measurement.
type ScoreWeights struct {
	CPU    float64
	Memory float64
	DiskMB float64
}

var DefaultScoreWeights = ScoreWeights{CPU: 0.4, Memory: 0.4, DiskMB: 0.2}

func (w ScoreWeights) score(p model.Process) float64 {
	return w.CPU*p.CPU + w.Memory*p.Memory + w.DiskMB*(p.ReadBps+p.WriteBps)/mib
}

type procPrev struct {
	created int64
	cpu     rate.Sample[float64]
	hasIO   bool
	read    rate.Sample[uint64]
	write   rate.Sample[uint64]
	last    model.Process
}

// ProcessSampler enumerates the process table and computes per-process rates
// against each process's own previous reading.
type ProcessSampler struct {
	table   ProcessTable
	mem     MemoryCounters
	cores   int
	weights ScoreWeights
	now     func() time.Time

	prev map[int32]procPrev
}

// NewProcessSampler returns a sampler dividing CPU time by cores logical
// cores. mem may be nil, in which case memory percentages are zero.
func NewProcessSampler(table ProcessTable, mem MemoryCounters, cores int) *ProcessSampler {
	return &ProcessSampler{
		table:   table,
		mem:     mem,
		cores:   cores,
		weights: DefaultScoreWeights,
		now:     time.Now,
		prev:    make(map[int32]procPrev),
	}
}

// Tracked is the number of processes holding a baseline.
func (s *ProcessSampler) Tracked() int { return len(s.prev) }

// Sample walks the process table once and returns processes ranked by score.
// Processes that vanish between enumeration and read are skipped.
func (s *ProcessSampler) Sample(ctx context.Context) ([]model.Process, error) {
	pids, err := s.table.PIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pids: %w", err)
	}
	var totalMem uint64
	if s.mem != nil {
		if vm, err := s.mem.VirtualMemory(ctx); err == nil && vm != nil {
			totalMem = vm.Total
		}
	}

	out := make([]model.Process, 0, len(pids))
	next := make(map[int32]procPrev, len(pids))
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pc, err := s.table.Read(ctx, pid)
		if err != nil || pc.Name == "" {
			continue
		}
		at := s.now()
		p, cur := s.measure(pc, at, totalMem)
		next[pid] = cur
		out = append(out, p)
	}
	// Exited processes are not carried into the next pass.
	s.prev = next

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PID < out[j].PID
	})
	return out, nil
}

func (s *ProcessSampler) measure(pc ProcCounters, at time.Time, totalMem uint64) (model.Process, procPrev) {
	p := model.Process{
		PID:      pc.PID,
		Name:     pc.Name,
		Command:  pc.Command,
		RSSBytes: pc.RSS,
	}
	if totalMem > 0 {
		p.Memory = float64(pc.RSS) * 100 / float64(totalMem)
	}
	cur := procPrev{
		created: pc.CreateTime,
		cpu:     rate.Sample[float64]{Value: pc.CPUSeconds, At: at},
		hasIO:   pc.HasIO,
		read:    rate.Sample[uint64]{Value: pc.ReadBytes, At: at},
		write:   rate.Sample[uint64]{Value: pc.WriteBytes, At: at},
	}

	prev, ok := s.prev[pc.PID]
	if ok && prev.created != pc.CreateTime {
		// Same pid, different process.
		ok = false
	}
	if ok {
		busy, err := rate.PerSecond(prev.cpu, cur.cpu)
		switch {
		case err == nil:
			p.CPU = rate.CPUPercent(busy, s.cores, rate.AllCores)
			p.RateReady = true
		case errors.Is(err, rate.ErrDegenerateInterval):
			p.CPU = prev.last.CPU
			p.RateReady = prev.last.RateReady
		}
		if prev.hasIO && cur.hasIO {
			r, rerr := rate.PerSecond(prev.read, cur.read)
			w, werr := rate.PerSecond(prev.write, cur.write)
			if rerr == nil && werr == nil {
				p.ReadBps, p.WriteBps = r, w
			}
		}
	}
	p.Score = s.weights.score(p)
	cur.last = p
	return p, cur
}
