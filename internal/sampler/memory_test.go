package sampler

import (
	"context"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/require"
)

func TestUsedMemory_Scenario(t *testing.T) {
	used, pct, err := UsedMemory(8_000_000, 2_000_000, 100_000, 900_000)
	require.NoError(t, err)
	require.Equal(t, uint64(5_000_000), used)
	require.InDelta(t, 62.5, pct, 1e-9)
}

func TestUsedMemory_Edges(t *testing.T) {
	_, _, err := UsedMemory(0, 0, 0, 0)
	require.ErrorIs(t, err, ErrNoMemoryTotal)

	used, pct, err := UsedMemory(100, 80, 30, 10)
	require.NoError(t, err)
	require.Zero(t, used)
	require.Zero(t, pct)
}

func TestMemorySampler(t *testing.T) {
	const kb = 1024
	src := &fakeMem{vm: mem.VirtualMemoryStat{
		Total:   8_000_000 * kb,
		Free:    2_000_000 * kb,
		Buffers: 100_000 * kb,
		Cached:  900_000 * kb,
	}}
	v, err := NewMemorySampler(src).Sample(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 62.5, v.UsedPercent, 1e-9)
	require.Equal(t, uint64(5_000_000*kb), v.UsedBytes)
	require.InDelta(t, 25.0, v.SwapPercent, 1e-9)

	src.err = errGone
	_, err = NewMemorySampler(src).Sample(context.Background())
	require.ErrorIs(t, err, errGone)
}

func TestMemorySampler_ExcludesReclaimableSlab(t *testing.T) {
	const kb = 1024
	src := &fakeMem{vm: mem.VirtualMemoryStat{
		Total:        8_000_000 * kb,
		Free:         2_000_000 * kb,
		Buffers:      100_000 * kb,
		Cached:       1_400_000 * kb,
		Sreclaimable: 500_000 * kb,
	}}
	v, err := NewMemorySampler(src).Sample(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 62.5, v.UsedPercent, 1e-9)
	require.Equal(t, uint64(900_000*kb), v.Cached)
}
