package sampler

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

var errGone = errors.New("gone")

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: t0} }

func (c *clock) Now() time.Time { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeCPU struct {
	total   cpu.TimesStat
	perCore []cpu.TimesStat
	err     error
	cores   int
}

func (f *fakeCPU) Times(context.Context) (cpu.TimesStat, []cpu.TimesStat, error) {
	if f.err != nil {
		return cpu.TimesStat{}, nil, f.err
	}
	return f.total, f.perCore, nil
}

func (f *fakeCPU) LogicalCores(context.Context) int { return f.cores }

func (f *fakeCPU) LoadAvg(context.Context) (*load.AvgStat, error) {
	return &load.AvgStat{Load1: 1, Load5: 0.5, Load15: 0.25}, nil
}

type fakeSensors struct {
	temps map[int]float64
	freqs map[int]float64
}

func (f fakeSensors) CoreTemps(context.Context) (map[int]float64, error) { return f.temps, nil }
func (f fakeSensors) CoreFreqs(context.Context) (map[int]float64, error) { return f.freqs, nil }

type fakeMem struct {
	vm  mem.VirtualMemoryStat
	err error
}

func (f *fakeMem) VirtualMemory(context.Context) (*mem.VirtualMemoryStat, error) {
	if f.err != nil {
		return nil, f.err
	}
	vm := f.vm
	return &vm, nil
}

func (f *fakeMem) SwapMemory(context.Context) (*mem.SwapMemoryStat, error) {
	return &mem.SwapMemoryStat{Total: 1000, Used: 250}, nil
}

type fakeDisk struct {
	parts []disk.PartitionStat
	usage map[string]disk.UsageStat
	io    map[string]disk.IOCountersStat
}

func (f *fakeDisk) Partitions(context.Context) ([]disk.PartitionStat, error) { return f.parts, nil }

func (f *fakeDisk) Usage(_ context.Context, path string) (*disk.UsageStat, error) {
	u, ok := f.usage[path]
	if !ok {
		return nil, errGone
	}
	return &u, nil
}

func (f *fakeDisk) IOCounters(context.Context) (map[string]disk.IOCountersStat, error) {
	return f.io, nil
}

type fakeNet struct {
	ifaces []InterfaceInfo
	stats  map[string]net.IOCountersStat
}

func (f *fakeNet) Interfaces(context.Context) ([]InterfaceInfo, error) { return f.ifaces, nil }

func (f *fakeNet) IOCounters(context.Context) ([]net.IOCountersStat, error) {
	out := make([]net.IOCountersStat, 0, len(f.stats))
	for name, st := range f.stats {
		st.Name = name
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeNet) set(name string, rx, tx uint64) {
	f.stats[name] = net.IOCountersStat{BytesRecv: rx, BytesSent: tx}
}

type fakeTable struct {
	procs      map[int32]ProcCounters
	unreadable map[int32]bool
	reads      int
}

func newFakeTable() *fakeTable {
	return &fakeTable{procs: make(map[int32]ProcCounters), unreadable: make(map[int32]bool)}
}

func (f *fakeTable) PIDs(context.Context) ([]int32, error) {
	out := make([]int32, 0, len(f.procs))
	for pid := range f.procs {
		out = append(out, pid)
	}
	return out, nil
}

func (f *fakeTable) Read(_ context.Context, pid int32) (ProcCounters, error) {
	f.reads++
	if f.unreadable[pid] {
		return ProcCounters{}, errGone
	}
	pc, ok := f.procs[pid]
	if !ok {
		return ProcCounters{}, errGone
	}
	pc.PID = pid
	return pc, nil
}

type fakeGPU struct {
	initErr error
	gpus    []model.GPU
	queries int
}

func (f *fakeGPU) Init(context.Context) error { return f.initErr }

func (f *fakeGPU) Query(context.Context) ([]model.GPU, error) {
	f.queries++
	return f.gpus, nil
}
