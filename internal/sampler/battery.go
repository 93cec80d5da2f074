package sampler

import (
	"errors"
	"path/filepath"
	"sort"
	"time"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

// DefaultPowerSupplyRoot is where Linux exposes batteries.
const DefaultPowerSupplyRoot = "/sys/class/power_supply"

// ErrNoBattery reports a host without a battery device.
var ErrNoBattery = errors.New("no battery")

const stateDischarging = "Discharging"

// BatterySampler reads the first BAT* device under a power supply root. The
// device is looked up once; a host without one never reports a battery.
type BatterySampler struct {
	dir string
	err error
}

func NewBatterySampler(root string) *BatterySampler {
	paths, _ := filepath.Glob(filepath.Join(root, "BAT*"))
	if len(paths) == 0 {
		return &BatterySampler{err: ErrNoBattery}
	}
	sort.Strings(paths)
	return &BatterySampler{dir: paths[0]}
}

func (s *BatterySampler) Present() bool { return s.err == nil }

// Err is ErrNoBattery when no device was found.
func (s *BatterySampler) Err() error { return s.err }

// Sample reads charge level, state and, while discharging, time remaining.
func (s *BatterySampler) Sample() model.Optional[model.Battery] {
	if !s.Present() {
		return model.None[model.Battery]()
	}
	state, err := readTrim(filepath.Join(s.dir, "status"))
	if err != nil || state == "" {
		state = "Unknown"
	}
	b := model.Battery{State: state, Percent: s.percent()}
	if state == stateDischarging {
		b.Remaining = s.remaining()
	}
	return model.Some(b)
}

func (s *BatterySampler) read(name string) (float64, bool) {
	return readFloat(filepath.Join(s.dir, name))
}

func (s *BatterySampler) percent() float64 {
	if now, ok := s.read("energy_now"); ok {
		if full, ok := s.read("energy_full"); ok && full > 0 {
			return now / full * 100
		}
	}
	if now, ok := s.read("charge_now"); ok {
		if full, ok := s.read("charge_full"); ok && full > 0 {
			return now / full * 100
		}
	}
	if c, ok := s.read("capacity"); ok {
		return c
	}
	return 0
}

// remaining estimates time to empty from stored energy over instantaneous
// draw. Without a positive draw there is no estimate.
func (s *BatterySampler) remaining() model.Optional[time.Duration] {
	if energy, ok := s.read("energy_now"); ok {
		if power, ok := s.read("power_now"); ok && power > 0 {
			return model.Some(hours(energy / power))
		}
	}
	if charge, ok := s.read("charge_now"); ok {
		if current, ok := s.read("current_now"); ok && current > 0 {
			return model.Some(hours(charge / current))
		}
	}
	return model.None[time.Duration]()
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour)).Round(time.Minute)
}
