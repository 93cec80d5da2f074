package model

import "time"

// CPU aggregates CPU utilization derived from tick deltas.
type CPU struct {
	Total   float64 `json:"total"` // percent 0-100
	Ready   bool    `json:"ready"` // false until two tick samples exist
	PerCore []Core  `json:"per_core"`
	Load1   float64 `json:"load1"`
	Load5   float64 `json:"load5"`
	Load15  float64 `json:"load15"`
}

// Core is one logical CPU.
type Core struct {
	Index   int               `json:"index"`
	Usage   float64           `json:"usage"` // percent of this core
	Ready   bool              `json:"ready"`
	TempC   Optional[float64] `json:"temp_c"`
	FreqMHz Optional[float64] `json:"freq_mhz"`
}

// Memory captures RAM and swap usage in bytes for precision.
type Memory struct {
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	Buffers     uint64  `json:"buffers"`
	Cached      uint64  `json:"cached"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
	SwapUsed    uint64  `json:"swap_used"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapPercent float64 `json:"swap_percent"`
	Unavailable bool    `json:"unavailable,omitempty"`
}

// Percent is UsedPercent, or unavailable when the memory source failed.
func (m Memory) Percent() Optional[float64] {
	if m.Unavailable {
		return None[float64]()
	}
	return Some(m.UsedPercent)
}

// Partition is a point-in-time usage reading for one mounted filesystem.
type Partition struct {
	Device      string  `json:"device"`
	Mountpoint  string  `json:"mountpoint"`
	Fstype      string  `json:"fstype"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// IODevice captures per-block-device throughput.
type IODevice struct {
	Name      string  `json:"name"`
	ReadBps   float64 `json:"read_bps"`
	WriteBps  float64 `json:"write_bps"`
	RateReady bool    `json:"rate_ready"`
}

// Disk holds partition usage plus block device throughput.
type Disk struct {
	RootPercent float64     `json:"root_percent"`
	Partitions  []Partition `json:"partitions"`
	Devices     []IODevice  `json:"devices"`
	ReadBps     float64     `json:"read_bps"`
	WriteBps    float64     `json:"write_bps"`
}

// InterfaceKind classifies a network interface.
type InterfaceKind string

const (
	KindEthernet InterfaceKind = "ethernet"
	KindWireless InterfaceKind = "wireless"
	KindLoopback InterfaceKind = "loopback"
	KindUnknown  InterfaceKind = "unknown"
)

// NetInterface is one network interface. Rates are only computed for active
// interfaces (up, ethernet or wireless).
type NetInterface struct {
	Name           string        `json:"name"`
	Kind           InterfaceKind `json:"kind"`
	Up             bool          `json:"up"`
	Active         bool          `json:"active"`
	RxBytes        uint64        `json:"rx_bytes"`
	TxBytes        uint64        `json:"tx_bytes"`
	DownloadBps    float64       `json:"download_bps"`
	UploadBps      float64       `json:"upload_bps"`
	MaxDownloadBps float64       `json:"max_download_bps"`
	MaxUploadBps   float64       `json:"max_upload_bps"`
	RateReady      bool          `json:"rate_ready"`
}

// GPU holds a single device snapshot. Fields the driver cannot report are
// unavailable.
type GPU struct {
	Index      int               `json:"index"`
	Name       string            `json:"name"`
	TempC      Optional[float64] `json:"temp_c"`
	PowerW     Optional[float64] `json:"power_w"`
	FanPercent Optional[float64] `json:"fan_percent"`
	Util       Optional[float64] `json:"util"`     // percent
	MemUtil    Optional[float64] `json:"mem_util"` // percent
}

// Battery shows power state. A host without a battery has no Battery value at
// all; see Snapshot.Battery.
type Battery struct {
	State     string                  `json:"state"`
	Percent   float64                 `json:"percent"`
	Remaining Optional[time.Duration] `json:"remaining"`
}

// Process is one ranked entry of the process table.
type Process struct {
	PID       int32   `json:"pid"`
	Name      string  `json:"name"`
	Command   string  `json:"command"`
	CPU       float64 `json:"cpu"` // percent of total machine capacity
	RSSBytes  uint64  `json:"rss_bytes"`
	Memory    float64 `json:"memory"` // percent of physical memory
	ReadBps   float64 `json:"read_bps"`
	WriteBps  float64 `json:"write_bps"`
	Score     float64 `json:"score"`
	RateReady bool    `json:"rate_ready"`
}

// AlertState is recomputed every pass and carries no history.
type AlertState struct {
	Triggered bool     `json:"triggered"`
	Messages  []string `json:"messages"`
	Summary   string   `json:"summary"`
}

// Snapshot is the full result of one aggregation pass, exchanged between the
// monitor, UI and JSON exporter. It is never modified after publication.
type Snapshot struct {
	Seq         uint64            `json:"seq"`
	Timestamp   time.Time         `json:"timestamp"`
	Interval    time.Duration     `json:"interval"`
	CPU         CPU               `json:"cpu"`
	Memory      Memory            `json:"memory"`
	Disk        Disk              `json:"disk"`
	Network     []NetInterface    `json:"network"`
	Processes   []Process         `json:"processes"`
	ProcessesAt time.Time         `json:"processes_at"`
	GPUs        Optional[[]GPU]   `json:"gpus"`
	Battery     Optional[Battery] `json:"battery"`
	Alert       AlertState        `json:"alert"`
}

// Zero returns an empty snapshot for initialization.
func Zero() *Snapshot { return &Snapshot{Timestamp: time.Now()} }
