package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCPUSampler_FirstPassHasNoRate(t *testing.T) {
	src := &fakeCPU{total: cpu.TimesStat{User: 100, Idle: 900}}
	s := NewCPUSampler(src, nil, nil)

	v := s.Sample(context.Background())
	require.False(t, v.Ready)
	require.Zero(t, v.Total)
}

func TestCPUSampler_Scenario(t *testing.T) {
	src := &fakeCPU{total: cpu.TimesStat{User: 100, Idle: 900}}
	s := NewCPUSampler(src, nil, nil)
	s.Sample(context.Background())

	src.total = cpu.TimesStat{User: 150, Idle: 950}
	v := s.Sample(context.Background())
	require.True(t, v.Ready)
	require.InDelta(t, 50.0, v.Total, 1e-9)
	require.Equal(t, 1.0, v.Load1)
}

func TestCPUSampler_IowaitCountsAsIdle(t *testing.T) {
	src := &fakeCPU{total: cpu.TimesStat{User: 0, Idle: 0, Iowait: 0}}
	s := NewCPUSampler(src, nil, nil)
	s.Sample(context.Background())

	src.total = cpu.TimesStat{User: 25, Idle: 50, Iowait: 25}
	v := s.Sample(context.Background())
	require.InDelta(t, 25.0, v.Total, 1e-9)
}

func TestCPUSampler_CounterResetRebaselines(t *testing.T) {
	src := &fakeCPU{total: cpu.TimesStat{User: 1000, Idle: 9000}}
	s := NewCPUSampler(src, nil, nil)
	s.Sample(context.Background())

	src.total = cpu.TimesStat{User: 10, Idle: 90}
	v := s.Sample(context.Background())
	require.False(t, v.Ready)
	require.Zero(t, v.Total)

	src.total = cpu.TimesStat{User: 40, Idle: 160}
	v = s.Sample(context.Background())
	require.True(t, v.Ready)
	require.InDelta(t, 30.0, v.Total, 1e-9)
}

func TestCPUSampler_ZeroIntervalKeepsLastValue(t *testing.T) {
	src := &fakeCPU{total: cpu.TimesStat{User: 100, Idle: 900}}
	s := NewCPUSampler(src, nil, nil)
	s.Sample(context.Background())
	src.total = cpu.TimesStat{User: 150, Idle: 950}
	s.Sample(context.Background())

	v := s.Sample(context.Background())
	require.True(t, v.Ready)
	require.InDelta(t, 50.0, v.Total, 1e-9)
}

func TestCPUSampler_ReadFailureFreezesAndLogsOnce(t *testing.T) {
	core, obs := observer.New(zap.WarnLevel)
	src := &fakeCPU{total: cpu.TimesStat{User: 100, Idle: 900}}
	s := NewCPUSampler(src, nil, zap.New(core).Sugar())
	s.Sample(context.Background())
	src.total = cpu.TimesStat{User: 150, Idle: 950}
	want := s.Sample(context.Background())

	src.err = errors.New("permission denied")
	for i := 0; i < 5; i++ {
		got := s.Sample(context.Background())
		require.Equal(t, want, got)
	}
	require.Equal(t, 1, obs.Len())

	// Recovery followed by another outage logs again.
	src.err = nil
	s.Sample(context.Background())
	src.err = errors.New("again")
	s.Sample(context.Background())
	require.Equal(t, 2, obs.Len())
}

func TestCPUSampler_PerCore(t *testing.T) {
	src := &fakeCPU{
		total: cpu.TimesStat{User: 0, Idle: 0},
		perCore: []cpu.TimesStat{
			{CPU: "cpu0", User: 0, Idle: 0},
			{CPU: "cpu1", User: 0, Idle: 0},
			{CPU: "cpu2", User: 0, Idle: 0},
		},
	}
	sensors := fakeSensors{
		temps: map[int]float64{0: 55},
		freqs: map[int]float64{0: 3200, 1: 2800},
	}
	s := NewCPUSampler(src, sensors, nil)
	s.Sample(context.Background())
	require.Len(t, s.prevCore, 3)

	src.total = cpu.TimesStat{User: 60, Idle: 240}
	src.perCore = []cpu.TimesStat{
		{CPU: "cpu0", User: 10, Idle: 90},
		{CPU: "cpu1", User: 50, Idle: 50},
	}
	v := s.Sample(context.Background())
	require.InDelta(t, 20.0, v.Total, 1e-9)
	require.Len(t, v.PerCore, 2)
	require.InDelta(t, 10.0, v.PerCore[0].Usage, 1e-9)
	require.InDelta(t, 50.0, v.PerCore[1].Usage, 1e-9)

	// cpu2 went offline and its baseline is gone.
	require.Len(t, s.prevCore, 2)
	_, ok := s.prevCore[2]
	require.False(t, ok)

	temp, ok := v.PerCore[0].TempC.Get()
	require.True(t, ok)
	require.Equal(t, 55.0, temp)
	require.False(t, v.PerCore[1].TempC.Available())
	require.Equal(t, 2800.0, v.PerCore[1].FreqMHz.Or(0))
}

func TestCPUSampler_ReturningCoreStartsFresh(t *testing.T) {
	src := &fakeCPU{perCore: []cpu.TimesStat{{CPU: "cpu0"}, {CPU: "cpu1"}}}
	s := NewCPUSampler(src, nil, nil)
	s.Sample(context.Background())

	src.perCore = []cpu.TimesStat{{CPU: "cpu0", User: 10, Idle: 10}}
	s.Sample(context.Background())

	src.perCore = []cpu.TimesStat{{CPU: "cpu0", User: 20, Idle: 20}, {CPU: "cpu1", User: 500, Idle: 500}}
	v := s.Sample(context.Background())
	require.True(t, v.PerCore[0].Ready)
	require.False(t, v.PerCore[1].Ready)
	require.Zero(t, v.PerCore[1].Usage)
}
