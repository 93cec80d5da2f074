package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
	"github.com/Dicklesworthstone/hostwatch/internal/rate"
)

// virtualFS are filesystem types that do not live on a block device.
var virtualFS = map[string]bool{
	"tmpfs":    true,
	"devtmpfs": true,
	"squashfs": true,
	"overlay":  true,
	"proc":     true,
	"sysfs":    true,
	"ramfs":    true,
}

type diskIOPrev struct {
	read  rate.Sample[uint64]
	write rate.Sample[uint64]
	last  model.IODevice
}

// DiskSampler reports partition usage and block device throughput. Usage is
// a point-in-time ratio; only throughput keeps previous state.
type DiskSampler struct {
	counters DiskCounters
	now      func() time.Time

	prevIO map[string]diskIOPrev
}

func NewDiskSampler(counters DiskCounters) *DiskSampler {
	return &DiskSampler{
		counters: counters,
		now:      time.Now,
		prevIO:   make(map[string]diskIOPrev),
	}
}

// Sample enumerates partitions and device counters.
func (s *DiskSampler) Sample(ctx context.Context) (model.Disk, error) {
	parts, err := s.counters.Partitions(ctx)
	if err != nil {
		return model.Disk{}, fmt.Errorf("partitions: %w", err)
	}

	var out model.Disk
	rootSeen := false
	seenDev := make(map[string]bool)
	for _, p := range parts {
		if virtualFS[p.Fstype] || seenDev[p.Device] {
			continue
		}
		u, err := s.counters.Usage(ctx, p.Mountpoint)
		if err != nil || u == nil || u.Total == 0 {
			continue
		}
		seenDev[p.Device] = true
		out.Partitions = append(out.Partitions, model.Partition{
			Device:      p.Device,
			Mountpoint:  p.Mountpoint,
			Fstype:      p.Fstype,
			TotalBytes:  u.Total,
			UsedBytes:   u.Used,
			FreeBytes:   u.Free,
			UsedPercent: usedPercent(u.Total, u.Free),
		})
		if p.Mountpoint == "/" {
			out.RootPercent = usedPercent(u.Total, u.Free)
			rootSeen = true
		}
	}
	if !rootSeen {
		if u, err := s.counters.Usage(ctx, "/"); err == nil && u != nil && u.Total > 0 {
			out.RootPercent = usedPercent(u.Total, u.Free)
		}
	}
	sort.Slice(out.Partitions, func(i, j int) bool {
		return out.Partitions[i].Mountpoint < out.Partitions[j].Mountpoint
	})

	s.throughput(ctx, &out)
	return out, nil
}

// usedPercent is (capacity - free) / capacity, so reserved blocks count as
// used.
func usedPercent(total, free uint64) float64 {
	if total == 0 || free > total {
		return 0
	}
	return float64(total-free) * 100 / float64(total)
}

func (s *DiskSampler) throughput(ctx context.Context, out *model.Disk) {
	counters, err := s.counters.IOCounters(ctx)
	if err != nil {
		return
	}
	at := s.now()
	next := make(map[string]diskIOPrev, len(counters))
	for name, st := range counters {
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
			continue
		}
		cur := diskIOPrev{
			read:  rate.Sample[uint64]{Value: st.ReadBytes, At: at},
			write: rate.Sample[uint64]{Value: st.WriteBytes, At: at},
		}
		dev := model.IODevice{Name: name}
		if prev, ok := s.prevIO[name]; ok {
			r, rerr := rate.PerSecond(prev.read, cur.read)
			w, werr := rate.PerSecond(prev.write, cur.write)
			switch {
			case rerr == nil && werr == nil:
				dev.ReadBps, dev.WriteBps, dev.RateReady = r, w, true
			case errors.Is(rerr, rate.ErrDegenerateInterval):
				dev = prev.last
			}
		}
		cur.last = dev
		next[name] = cur
		out.ReadBps += dev.ReadBps
		out.WriteBps += dev.WriteBps
		out.Devices = append(out.Devices, dev)
	}
	s.prevIO = next
	sort.Slice(out.Devices, func(i, j int) bool { return out.Devices[i].Name < out.Devices[j].Name })
}
