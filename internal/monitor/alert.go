package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Dicklesworthstone/hostwatch/internal/config"
	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

// Evaluate compares s against th. The result depends only on s and th: a
// metric above its limit alerts on every pass it stays there.
func Evaluate(s *model.Snapshot, th config.Thresholds) model.AlertState {
	var st model.AlertState
	if s == nil {
		return st
	}

	if s.CPU.Total > th.CPU {
		st.Messages = append(st.Messages, fmt.Sprintf("CPU usage %.1f%% exceeds %.1f%%", s.CPU.Total, th.CPU))
	}
	if !s.Memory.Unavailable && s.Memory.UsedPercent > th.Memory {
		st.Messages = append(st.Messages, fmt.Sprintf("Memory usage %.1f%% exceeds %.1f%%", s.Memory.UsedPercent, th.Memory))
	}
	if s.Disk.RootPercent > th.Disk {
		st.Messages = append(st.Messages, fmt.Sprintf("Disk usage %.1f%% exceeds %.1f%%", s.Disk.RootPercent, th.Disk))
	}

	var hot []string
	if gpus, ok := s.GPUs.Get(); ok {
		sorted := append([]model.GPU(nil), gpus...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
		for _, g := range sorted {
			temp, ok := g.TempC.Get()
			if !ok || temp <= th.GPUTemp {
				continue
			}
			st.Messages = append(st.Messages, fmt.Sprintf("GPU %d temperature %.1f°C exceeds %.1f°C", g.Index, temp, th.GPUTemp))
			hot = append(hot, fmt.Sprintf("GPU %d=%.1f°C", g.Index, temp))
		}
	}

	if len(st.Messages) == 0 {
		return st
	}
	st.Triggered = true

	var b strings.Builder
	fmt.Fprintf(&b, "Alert triggered: CPU=%.1f%%, Memory=%s, Disk=%.1f%%",
		s.CPU.Total, s.Memory.Percent().Format("%.1f%%", "n/a"), s.Disk.RootPercent)
	for _, h := range hot {
		b.WriteString(", ")
		b.WriteString(h)
	}
	st.Summary = b.String()
	return st
}
