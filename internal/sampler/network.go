package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
	"github.com/Dicklesworthstone/hostwatch/internal/rate"
)

type netPrev struct {
	rx rate.Sample[uint64]
	tx rate.Sample[uint64]

	// last rates reported, carried over a zero-length interval.
	down, up float64
	ready    bool
}

type netMax struct {
	down float64
	up   float64
}

// NetworkSampler computes per-interface download and upload rates.
//
// Only active interfaces (up, ethernet or wireless) keep a byte-counter
// baseline. The running maximum of each interface survives eviction of the
// baseline and lasts for the life of the sampler.
type NetworkSampler struct {
	counters NetCounters
	now      func() time.Time

	prev map[string]netPrev
	max  map[string]netMax
}

func NewNetworkSampler(counters NetCounters) *NetworkSampler {
	return &NetworkSampler{
		counters: counters,
		now:      time.Now,
		prev:     make(map[string]netPrev),
		max:      make(map[string]netMax),
	}
}

// Sample enumerates interfaces and returns them sorted by name.
func (s *NetworkSampler) Sample(ctx context.Context) ([]model.NetInterface, error) {
	ifaces, err := s.counters.Interfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("interfaces: %w", err)
	}
	stats, err := s.counters.IOCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("interface counters: %w", err)
	}
	at := s.now()

	byName := make(map[string]net.IOCountersStat, len(stats))
	for _, st := range stats {
		byName[st.Name] = st
	}

	out := make([]model.NetInterface, 0, len(ifaces))
	next := make(map[string]netPrev)
	for _, ifc := range ifaces {
		v := model.NetInterface{
			Name:   ifc.Name,
			Kind:   ifc.Kind,
			Up:     ifc.Up,
			Active: ifc.Up && (ifc.Kind == model.KindEthernet || ifc.Kind == model.KindWireless),
		}
		st, ok := byName[ifc.Name]
		if ok {
			v.RxBytes, v.TxBytes = st.BytesRecv, st.BytesSent
		}
		if ok && v.Active {
			cur := netPrev{
				rx: rate.Sample[uint64]{Value: st.BytesRecv, At: at},
				tx: rate.Sample[uint64]{Value: st.BytesSent, At: at},
			}
			if prev, seen := s.prev[ifc.Name]; seen {
				down, derr := rate.PerSecond(prev.rx, cur.rx)
				up, uerr := rate.PerSecond(prev.tx, cur.tx)
				switch {
				case derr == nil && uerr == nil:
					v.DownloadBps, v.UploadBps, v.RateReady = down, up, true
					s.raiseMax(ifc.Name, down, up)
				case errors.Is(derr, rate.ErrDegenerateInterval):
					v.DownloadBps, v.UploadBps, v.RateReady = prev.down, prev.up, prev.ready
				}
			}
			cur.down, cur.up, cur.ready = v.DownloadBps, v.UploadBps, v.RateReady
			next[ifc.Name] = cur
		}
		if m, ok := s.max[ifc.Name]; ok {
			v.MaxDownloadBps, v.MaxUploadBps = m.down, m.up
		}
		out = append(out, v)
	}
	s.prev = next

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *NetworkSampler) raiseMax(name string, down, up float64) {
	m := s.max[name]
	if down > m.down {
		m.down = down
	}
	if up > m.up {
		m.up = up
	}
	s.max[name] = m
}
