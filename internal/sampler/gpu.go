package sampler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

// ErrGPUUnavailable reports that no GPU telemetry source could be opened.
var ErrGPUUnavailable = errors.New("gpu telemetry unavailable")

// GPUBackend is a vendor telemetry source.
type GPUBackend interface {
	// Init opens the source. An error disables GPU sampling for good.
	Init(ctx context.Context) error
	Query(ctx context.Context) ([]model.GPU, error)
}

const smiFields = "index,name,temperature.gpu,power.draw,fan.speed,utilization.gpu,utilization.memory"

// SMIBackend queries NVIDIA devices through nvidia-smi.
type SMIBackend struct {
	Binary  string
	Timeout time.Duration

	run func(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error)
}

func NewSMIBackend() *SMIBackend {
	return &SMIBackend{Binary: "nvidia-smi", Timeout: 400 * time.Millisecond, run: runCmd}
}

func (b *SMIBackend) Init(ctx context.Context) error {
	path, err := exec.LookPath(b.Binary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
	}
	b.Binary = path
	gpus, err := b.Query(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGPUUnavailable, err)
	}
	if len(gpus) == 0 {
		return fmt.Errorf("%w: no devices", ErrGPUUnavailable)
	}
	return nil
}

func (b *SMIBackend) Query(ctx context.Context) ([]model.GPU, error) {
	out, err := b.run(ctx, b.Timeout, b.Binary,
		"--query-gpu="+smiFields,
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	return parseSMI(out), nil
}

func parseSMI(out string) []model.GPU {
	var gpus []model.GPU
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		parts := strings.Split(sc.Text(), ",")
		if len(parts) < 7 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		gpus = append(gpus, model.GPU{
			Index:      idx,
			Name:       strings.TrimSpace(parts[1]),
			TempC:      smiValue(parts[2]),
			PowerW:     smiValue(parts[3]),
			FanPercent: smiValue(parts[4]),
			Util:       smiValue(parts[5]),
			MemUtil:    smiValue(parts[6]),
		})
	}
	return gpus
}

// smiValue maps "[N/A]", "[Not Supported]" and friends to unavailable.
func smiValue(s string) model.Optional[float64] {
	if v, ok := parseFloat(s); ok {
		return model.Some(v)
	}
	return model.None[float64]()
}

// GPUSampler samples a GPUBackend that initialized successfully. A backend
// that fails Init is never retried.
type GPUSampler struct {
	backend GPUBackend
	log     *zap.SugaredLogger
	initErr error

	fanLogged map[int]bool
}

func NewGPUSampler(ctx context.Context, backend GPUBackend, log *zap.SugaredLogger) *GPUSampler {
	s := &GPUSampler{backend: backend, log: nopIfNil(log), fanLogged: make(map[int]bool)}
	if backend == nil {
		s.initErr = fmt.Errorf("%w: disabled", ErrGPUUnavailable)
		return s
	}
	s.initErr = backend.Init(ctx)
	return s
}

func (s *GPUSampler) Available() bool { return s.initErr == nil }

// Err is why the sampler is unavailable, or nil.
func (s *GPUSampler) Err() error { return s.initErr }

// Sample returns the devices, or unavailable when GPU sampling is disabled or
// this query failed.
func (s *GPUSampler) Sample(ctx context.Context) model.Optional[[]model.GPU] {
	if !s.Available() {
		return model.None[[]model.GPU]()
	}
	gpus, err := s.backend.Query(ctx)
	if err != nil {
		s.log.Debugf("gpu query failed: %v", err)
		return model.None[[]model.GPU]()
	}
	for _, g := range gpus {
		if !g.FanPercent.Available() && !s.fanLogged[g.Index] {
			s.log.Infof("GPU %d fan speed not reported", g.Index)
			s.fanLogged[g.Index] = true
		}
	}
	return model.Some(gpus)
}
