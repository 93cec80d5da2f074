// Package monitor runs the samplers on the main cadence, assembles each pass
// into an immutable Snapshot and evaluates alerts against it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/hostwatch/internal/config"
	"github.com/Dicklesworthstone/hostwatch/internal/model"
	"github.com/Dicklesworthstone/hostwatch/internal/sampler"
)

// ErrNoCounters is returned by New when neither CPU nor memory counters can
// be read. Nothing useful can be shown on such a host.
var ErrNoCounters = errors.New("no readable cpu or memory counters")

const topProcesses = 5

// Sources are the counter readers a Monitor samples. GPU is nil when GPU
// sampling is off.
type Sources struct {
	CPU     sampler.CPUCounters
	Sensors sampler.SensorReader
	Memory  sampler.MemoryCounters
	Disk    sampler.DiskCounters
	Net     sampler.NetCounters
	Procs   sampler.ProcessTable
	GPU     sampler.GPUBackend

	PowerSupplyRoot string
}

// HostSources reads the local machine.
func HostSources(cfg config.Config) Sources {
	h := sampler.NewHost()
	src := Sources{
		CPU:             h,
		Sensors:         h,
		Memory:          h,
		Disk:            h,
		Net:             h.Net(),
		Procs:           h,
		PowerSupplyRoot: sampler.DefaultPowerSupplyRoot,
	}
	if cfg.EnableGPU {
		src.GPU = sampler.NewSMIBackend()
	}
	return src
}

// degraded tracks one source's read health so an outage is logged once.
type degraded struct {
	what    string
	failing bool
}

func (d *degraded) observe(log *zap.SugaredLogger, err error) {
	switch {
	case err != nil && !d.failing:
		log.Warnf("%s unreadable, holding last value: %v", d.what, err)
		d.failing = true
	case err == nil && d.failing:
		log.Infof("%s readable again", d.what)
		d.failing = false
	}
}

// Monitor owns every sampler. Passes are serialized; Snapshot may be called
// from any goroutine.
type Monitor struct {
	cfg config.Config
	log *zap.SugaredLogger

	cpu   *sampler.CPUSampler
	mem   *sampler.MemorySampler
	disk  *sampler.DiskSampler
	net   *sampler.NetworkSampler
	gpu   *sampler.GPUSampler
	batt  *sampler.BatterySampler
	procs *sampler.ProcessLoop

	passMu      sync.Mutex
	seq         uint64
	gpuNoticed  bool
	memHealth   degraded
	diskHealth  degraded
	netHealth   degraded
	lastMem     model.Memory
	haveMem     bool
	lastDisk    model.Disk
	lastNetwork []model.NetInterface

	snap    atomic.Pointer[model.Snapshot]
	updates chan *model.Snapshot
}

// New builds the samplers and takes a priming reading so the first pass
// already has rate baselines.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, src Sources) (*Monitor, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	def := config.Default()
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = def.ProcessInterval
	}
	if src.CPU == nil || src.Memory == nil {
		return nil, fmt.Errorf("%w: missing source", ErrNoCounters)
	}

	_, _, cpuErr := src.CPU.Times(ctx)
	_, memErr := src.Memory.VirtualMemory(ctx)
	if cpuErr != nil && memErr != nil {
		return nil, fmt.Errorf("%w: cpu: %v; memory: %v", ErrNoCounters, cpuErr, memErr)
	}

	cores := src.CPU.LogicalCores(ctx)
	m := &Monitor{
		cfg:        cfg,
		log:        log,
		cpu:        sampler.NewCPUSampler(src.CPU, src.Sensors, log),
		mem:        sampler.NewMemorySampler(src.Memory),
		gpu:        sampler.NewGPUSampler(ctx, src.GPU, log),
		memHealth:  degraded{what: "memory counters"},
		diskHealth: degraded{what: "disk counters"},
		netHealth:  degraded{what: "network counters"},
		updates:    make(chan *model.Snapshot, 1),
	}
	if src.Disk != nil {
		m.disk = sampler.NewDiskSampler(src.Disk)
	}
	if src.Net != nil {
		m.net = sampler.NewNetworkSampler(src.Net)
	}
	if cfg.EnableBatt {
		root := src.PowerSupplyRoot
		if root == "" {
			root = sampler.DefaultPowerSupplyRoot
		}
		m.batt = sampler.NewBatterySampler(root)
		if !m.batt.Present() {
			log.Infof("No battery detected")
		}
	}
	var table sampler.ProcessTable = emptyTable{}
	if src.Procs != nil {
		table = src.Procs
	}
	m.procs = sampler.NewProcessLoop(sampler.NewProcessSampler(table, src.Memory, cores), cfg.ProcessInterval, log)

	m.cpu.Sample(ctx)
	if m.disk != nil {
		_, _ = m.disk.Sample(ctx)
	}
	if m.net != nil {
		_, _ = m.net.Sample(ctx)
	}
	m.snap.Store(model.Zero())

	log.Infof("monitor started: %d logical cores, update every %s, processes every %s",
		cores, cfg.UpdateInterval, cfg.ProcessInterval)
	return m, nil
}

// Snapshot returns the most recently published pass. It is never nil.
func (m *Monitor) Snapshot() *model.Snapshot { return m.snap.Load() }

// Updates delivers each published snapshot. Only the latest is buffered; a
// slow reader skips passes.
func (m *Monitor) Updates() <-chan *model.Snapshot { return m.updates }

func (m *Monitor) IsGPUAvailable() bool { return m.gpu.Available() }

func (m *Monitor) HasBattery() bool { return m.batt != nil && m.batt.Present() }

// Config is the configuration the monitor runs with.
func (m *Monitor) Config() config.Config { return m.cfg }

// Run drives the process loop and the main pass loop until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.procs.Run(ctx) })
	g.Go(func() error {
		m.Pass(ctx)
		ticker := time.NewTicker(m.cfg.UpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.Pass(ctx)
			}
		}
	})
	return g.Wait()
}

// Pass runs every enabled sampler once, publishes the assembled snapshot and
// returns it.
func (m *Monitor) Pass(ctx context.Context) *model.Snapshot {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	s := &model.Snapshot{
		Timestamp: time.Now(),
		Interval:  m.cfg.UpdateInterval,
		CPU:       m.cpu.Sample(ctx),
		Memory:    m.sampleMemory(ctx),
		Disk:      m.sampleDisk(ctx),
		Network:   m.sampleNetwork(ctx),
		GPUs:      m.sampleGPU(ctx),
		Battery:   m.sampleBattery(),
	}
	s.Processes, s.ProcessesAt = m.procs.Latest()
	s.Alert = Evaluate(s, m.cfg.Thresholds)

	m.seq++
	s.Seq = m.seq
	m.snap.Store(s)
	m.publish(s)
	m.report(s)
	return s
}

func (m *Monitor) publish(s *model.Snapshot) {
	select {
	case <-m.updates:
	default:
	}
	select {
	case m.updates <- s:
	default:
	}
}

func (m *Monitor) sampleMemory(ctx context.Context) model.Memory {
	v, err := m.mem.Sample(ctx)
	m.memHealth.observe(m.log, err)
	if err != nil {
		if !m.haveMem {
			return model.Memory{Unavailable: true}
		}
		return m.lastMem
	}
	m.lastMem, m.haveMem = v, true
	return v
}

func (m *Monitor) sampleDisk(ctx context.Context) model.Disk {
	if m.disk == nil {
		return model.Disk{}
	}
	v, err := m.disk.Sample(ctx)
	m.diskHealth.observe(m.log, err)
	if err != nil {
		return m.lastDisk
	}
	m.lastDisk = v
	return v
}

func (m *Monitor) sampleNetwork(ctx context.Context) []model.NetInterface {
	if m.net == nil {
		return nil
	}
	v, err := m.net.Sample(ctx)
	m.netHealth.observe(m.log, err)
	if err != nil {
		return m.lastNetwork
	}
	m.lastNetwork = v
	return v
}

func (m *Monitor) sampleGPU(ctx context.Context) model.Optional[[]model.GPU] {
	if !m.gpu.Available() {
		if !m.gpuNoticed {
			m.log.Warnf("GPU unavailable, GPU monitoring disabled: %v", m.gpu.Err())
			m.gpuNoticed = true
		}
		return model.None[[]model.GPU]()
	}
	return m.gpu.Sample(ctx)
}

func (m *Monitor) sampleBattery() model.Optional[model.Battery] {
	if m.batt == nil {
		return model.None[model.Battery]()
	}
	return m.batt.Sample()
}

func (m *Monitor) report(s *model.Snapshot) {
	m.log.Infof("System update: CPU=%.1f%%, Memory=%s, Disk=%.1f%%",
		s.CPU.Total, s.Memory.Percent().Format("%.1f%%", "n/a"), s.Disk.RootPercent)

	for i, p := range s.Processes {
		if i == topProcesses {
			break
		}
		m.log.Debugf("Top process %d: %s (PID %d) CPU %.1f%%, Mem %.1f MB",
			i+1, p.Name, p.PID, p.CPU, float64(p.RSSBytes)/(1024*1024))
	}

	if gpus, ok := s.GPUs.Get(); ok {
		for _, g := range gpus {
			m.log.Infof("GPU %d: %s Temp: %s Util: %s Mem: %s",
				g.Index, g.Name, g.TempC.Format("%.0fC", "n/a"), g.Util.Format("%.0f%%", "n/a"), g.MemUtil.Format("%.0f%%", "n/a"))
		}
	}

	if s.Alert.Triggered {
		m.log.Warn(s.Alert.Summary)
	}
}

// emptyTable stands in when no process source is configured.
type emptyTable struct{}

func (emptyTable) PIDs(context.Context) ([]int32, error) { return nil, nil }

func (emptyTable) Read(context.Context, int32) (sampler.ProcCounters, error) {
	return sampler.ProcCounters{}, errors.New("no process table")
}
