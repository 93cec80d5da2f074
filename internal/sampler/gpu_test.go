package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

func TestGPUSampler_InitFailureDisables(t *testing.T) {
	backend := &fakeGPU{initErr: ErrGPUUnavailable}
	s := NewGPUSampler(context.Background(), backend, nil)
	require.False(t, s.Available())
	require.ErrorIs(t, s.Err(), ErrGPUUnavailable)

	for i := 0; i < 10; i++ {
		require.False(t, s.Sample(context.Background()).Available())
	}
	require.Zero(t, backend.queries)
}

func TestGPUSampler_NilBackend(t *testing.T) {
	s := NewGPUSampler(context.Background(), nil, nil)
	require.False(t, s.Available())
	require.ErrorIs(t, s.Err(), ErrGPUUnavailable)
}

func TestGPUSampler_FanNoticeOncePerDevice(t *testing.T) {
	core, obs := observer.New(zap.InfoLevel)
	backend := &fakeGPU{gpus: []model.GPU{
		{Index: 0, Name: "A", TempC: model.Some(61.0), FanPercent: model.None[float64]()},
		{Index: 1, Name: "B", TempC: model.Some(40.0), FanPercent: model.Some(30.0)},
	}}
	s := NewGPUSampler(context.Background(), backend, zap.New(core).Sugar())
	require.True(t, s.Available())

	for i := 0; i < 3; i++ {
		gpus, ok := s.Sample(context.Background()).Get()
		require.True(t, ok)
		require.Len(t, gpus, 2)
	}
	require.Equal(t, 3, backend.queries)
	require.Equal(t, 1, obs.FilterMessage("GPU 0 fan speed not reported").Len())
	require.Equal(t, 1, obs.Len())
}

func TestParseSMI(t *testing.T) {
	out := "0, NVIDIA GeForce RTX 3080, 64, 220.51, 45, 97, 38\n" +
		"1, Tesla T4, 41, [N/A], [Not Supported], 0, 0\n" +
		"garbage line\n"
	gpus := parseSMI(out)
	require.Len(t, gpus, 2)

	require.Equal(t, "NVIDIA GeForce RTX 3080", gpus[0].Name)
	require.Equal(t, 64.0, gpus[0].TempC.Or(0))
	require.InDelta(t, 220.51, gpus[0].PowerW.Or(0), 1e-9)
	require.Equal(t, 97.0, gpus[0].Util.Or(0))

	require.Equal(t, 1, gpus[1].Index)
	require.False(t, gpus[1].PowerW.Available())
	require.False(t, gpus[1].FanPercent.Available())
	require.True(t, gpus[1].MemUtil.Available())
}

func TestSMIBackend_MissingBinary(t *testing.T) {
	b := NewSMIBackend()
	b.Binary = "hostwatch-no-such-smi"
	require.ErrorIs(t, b.Init(context.Background()), ErrGPUUnavailable)
}

func TestSMIBackend_Query(t *testing.T) {
	var gotArgs []string
	b := NewSMIBackend()
	b.run = func(_ context.Context, _ time.Duration, _ string, args ...string) (string, error) {
		gotArgs = args
		return "0, GPU, 50, 100, 20, 10, 5\n", nil
	}
	gpus, err := b.Query(context.Background())
	require.NoError(t, err)
	require.Len(t, gpus, 1)
	require.Contains(t, gotArgs, "--format=csv,noheader,nounits")

	b.run = func(context.Context, time.Duration, string, ...string) (string, error) {
		return "", errors.New("timeout")
	}
	_, err = b.Query(context.Background())
	require.Error(t, err)
}
