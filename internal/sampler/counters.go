package sampler

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

// CPUCounters reads cumulative CPU time.
type CPUCounters interface {
	// Times returns the aggregate line and one entry per logical core.
	Times(ctx context.Context) (total cpu.TimesStat, perCore []cpu.TimesStat, err error)
	LogicalCores(ctx context.Context) int
	LoadAvg(ctx context.Context) (*load.AvgStat, error)
}

// SensorReader reads optional per-core sensors. A core missing from the
// returned maps has no sensor.
type SensorReader interface {
	CoreTemps(ctx context.Context) (map[int]float64, error)
	CoreFreqs(ctx context.Context) (map[int]float64, error)
}

// MemoryCounters reads physical memory and swap.
type MemoryCounters interface {
	VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error)
}

// DiskCounters reads partitions, their usage and block device I/O counters.
type DiskCounters interface {
	Partitions(ctx context.Context) ([]disk.PartitionStat, error)
	Usage(ctx context.Context, path string) (*disk.UsageStat, error)
	IOCounters(ctx context.Context) (map[string]disk.IOCountersStat, error)
}

// InterfaceInfo is the static description of a network interface.
type InterfaceInfo struct {
	Name string
	Up   bool
	Kind model.InterfaceKind
}

// NetCounters reads network interfaces and their byte counters.
type NetCounters interface {
	Interfaces(ctx context.Context) ([]InterfaceInfo, error)
	IOCounters(ctx context.Context) ([]net.IOCountersStat, error)
}

// ProcCounters is one read of a process's counters.
type ProcCounters struct {
	PID        int32
	Name       string
	Command    string
	CreateTime int64 // ms since epoch, distinguishes reused pids
	CPUSeconds float64
	RSS        uint64
	HasIO      bool
	ReadBytes  uint64
	WriteBytes uint64
}

// ProcessTable enumerates processes and reads their counters.
type ProcessTable interface {
	PIDs(ctx context.Context) ([]int32, error)
	// Read fails when the process exited after enumeration.
	Read(ctx context.Context, pid int32) (ProcCounters, error)
}

// Host reads counters from the running system through gopsutil, plus a few
// sysfs files gopsutil does not expose.
type Host struct {
	SysfsRoot string
}

// NewHost returns a Host reading the real /sys.
func NewHost() *Host { return &Host{SysfsRoot: "/sys"} }

var (
	_ CPUCounters    = (*Host)(nil)
	_ SensorReader   = (*Host)(nil)
	_ MemoryCounters = (*Host)(nil)
	_ DiskCounters   = (*Host)(nil)
	_ NetCounters    = netHost{}
	_ ProcessTable   = (*Host)(nil)
)

func (h *Host) Times(ctx context.Context) (cpu.TimesStat, []cpu.TimesStat, error) {
	totals, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return cpu.TimesStat{}, nil, fmt.Errorf("cpu times: %w", err)
	}
	if len(totals) == 0 {
		return cpu.TimesStat{}, nil, fmt.Errorf("cpu times: no aggregate line")
	}
	// Per-core lines are best effort; the aggregate is what matters.
	perCore, _ := cpu.TimesWithContext(ctx, true)
	return totals[0], perCore, nil
}

func (h *Host) LogicalCores(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func (h *Host) LoadAvg(ctx context.Context) (*load.AvgStat, error) {
	return load.AvgWithContext(ctx)
}

var coreKeyRe = regexp.MustCompile(`core_?(\d+)`)

func (h *Host) CoreTemps(ctx context.Context) (map[int]float64, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	// gopsutil returns partial readings together with warnings.
	if err != nil && len(temps) == 0 {
		return nil, err
	}
	out := make(map[int]float64)
	for _, t := range temps {
		m := coreKeyRe.FindStringSubmatch(strings.ToLower(t.SensorKey))
		if m == nil || t.Temperature <= 0 {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		if t.Temperature > out[idx] {
			out[idx] = t.Temperature
		}
	}
	return out, nil
}

func (h *Host) CoreFreqs(ctx context.Context) (map[int]float64, error) {
	paths, err := filepath.Glob(filepath.Join(h.SysfsRoot, "devices/system/cpu/cpu[0-9]*/cpufreq/scaling_cur_freq"))
	if err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(paths))
	for _, p := range paths {
		cpuDir := filepath.Base(filepath.Dir(filepath.Dir(p)))
		idx, err := strconv.Atoi(strings.TrimPrefix(cpuDir, "cpu"))
		if err != nil {
			continue
		}
		khz, ok := readFloat(p)
		if !ok {
			continue
		}
		out[idx] = khz / 1000
	}
	return out, nil
}

func (h *Host) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (h *Host) SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error) {
	return mem.SwapMemoryWithContext(ctx)
}

func (h *Host) Partitions(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

func (h *Host) Usage(ctx context.Context, path string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, path)
}

func (h *Host) IOCounters(ctx context.Context) (map[string]disk.IOCountersStat, error) {
	return disk.IOCountersWithContext(ctx)
}

// netHost adapts Host to NetCounters; IOCounters collides with the disk method.
type netHost struct{ *Host }

// Net returns the network view of the host counters.
func (h *Host) Net() NetCounters { return netHost{h} }

func (h netHost) Interfaces(ctx context.Context) ([]InterfaceInfo, error) {
	stats, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]InterfaceInfo, 0, len(stats))
	for _, s := range stats {
		out = append(out, h.interfaceInfo(s.Name, s.Flags))
	}
	return out, nil
}

// interfaceInfo classifies one interface. Up is the operational state from
// sysfs; the "up" flag only says the interface is administratively enabled
// and stays set with the cable pulled. Without a sysfs entry the flag is all
// there is.
func (h *Host) interfaceInfo(name string, flags []string) InterfaceInfo {
	info := InterfaceInfo{Name: name}
	loopback := false
	for _, f := range flags {
		switch f {
		case "up":
			info.Up = true
		case "loopback":
			loopback = true
		}
	}
	if state, err := readTrim(filepath.Join(h.SysfsRoot, "class/net", name, "operstate")); err == nil {
		info.Up = state == "up"
	}
	info.Kind = h.interfaceKind(name, loopback)
	return info
}

func (h netHost) IOCounters(ctx context.Context) ([]net.IOCountersStat, error) {
	return net.IOCountersWithContext(ctx, true)
}

func (h *Host) interfaceKind(name string, loopback bool) model.InterfaceKind {
	dir := filepath.Join(h.SysfsRoot, "class/net", name)
	switch {
	case exists(filepath.Join(dir, "wireless")):
		return model.KindWireless
	case exists(filepath.Join(dir, "device")):
		return model.KindEthernet
	case loopback || name == "lo":
		return model.KindLoopback
	}
	return model.KindUnknown
}

func (h *Host) PIDs(ctx context.Context) ([]int32, error) {
	return process.PidsWithContext(ctx)
}

func (h *Host) Read(ctx context.Context, pid int32) (ProcCounters, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ProcCounters{}, err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ProcCounters{}, err
	}
	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return ProcCounters{}, err
	}
	memInfo, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcCounters{}, err
	}
	pc := ProcCounters{
		PID:        pid,
		Name:       name,
		CPUSeconds: times.User + times.System,
		RSS:        memInfo.RSS,
	}
	pc.CreateTime, _ = p.CreateTimeWithContext(ctx)
	if cmd, err := p.CmdlineWithContext(ctx); err == nil && cmd != "" {
		pc.Command = model.Truncate(cmd, 120)
	} else {
		pc.Command = name
	}
	// /proc/<pid>/io is only readable for our own processes without privileges.
	if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
		pc.HasIO = true
		pc.ReadBytes = io.ReadBytes
		pc.WriteBytes = io.WriteBytes
	}
	return pc, nil
}
