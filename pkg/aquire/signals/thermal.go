package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/shirou/gopsutil/v3/host"
)

// Default temperature thresholds in degrees Celsius.
const (
	DefaultFairCelsius     = 70.0
	DefaultSeriousCelsius  = 85.0
	DefaultCriticalCelsius = 95.0

	DefaultPollInterval = 5 * time.Second
)

// ThermalThresholds maps temperatures to thermal states.
type ThermalThresholds struct {
	Fair     float64
	Serious  float64
	Critical float64
}

// DefaultThermalThresholds returns the default thresholds.
func DefaultThermalThresholds() ThermalThresholds {
	return ThermalThresholds{
		Fair:     DefaultFairCelsius,
		Serious:  DefaultSeriousCelsius,
		Critical: DefaultCriticalCelsius,
	}
}

// sensorReader matches host.SensorsTemperaturesWithContext.
type sensorReader func(ctx context.Context) ([]host.TemperatureStat, error)

// Thermal polls host temperature sensors and derives a thermal state.
type Thermal struct {
	thresholds ThermalThresholds
	interval   time.Duration
	read       sensorReader
}

// NewThermal creates a thermal source polling every interval.
func NewThermal(thresholds ThermalThresholds, interval time.Duration) *Thermal {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Thermal{
		thresholds: thresholds,
		interval:   interval,
		read:       host.SensorsTemperaturesWithContext,
	}
}

// Name implements Source.
func (t *Thermal) Name() string { return "thermal" }

// Provides implements Source.
func (t *Thermal) Provides() []types.Signal {
	return []types.Signal{types.SignalThermalState}
}

// Read implements Source.
func (t *Thermal) Read(ctx context.Context) (types.SystemSignals, error) {
	s := types.DefaultSignals()

	stats, err := t.read(ctx)
	// gopsutil returns partial results alongside per-sensor warnings.
	if err != nil && len(stats) == 0 {
		return s, fmt.Errorf("reading temperature sensors: %w", err)
	}

	s.Thermal = t.classify(stats)
	return s, nil
}

// classify picks the hottest state any sensor reports. Sensors that publish
// their own high/critical marks are judged against those as well.
func (t *Thermal) classify(stats []host.TemperatureStat) types.ThermalState {
	state := types.ThermalNominal
	for _, st := range stats {
		if st.Temperature <= 0 {
			continue
		}
		state = hotter(state, t.stateFor(st))
	}
	return state
}

func (t *Thermal) stateFor(st host.TemperatureStat) types.ThermalState {
	temp := st.Temperature
	switch {
	case temp >= t.thresholds.Critical, st.Critical > 0 && temp >= st.Critical:
		return types.ThermalCritical
	case temp >= t.thresholds.Serious, st.High > 0 && temp >= st.High:
		return types.ThermalSerious
	case temp >= t.thresholds.Fair:
		return types.ThermalFair
	default:
		return types.ThermalNominal
	}
}

var thermalRank = map[types.ThermalState]int{
	types.ThermalNominal:  0,
	types.ThermalFair:     1,
	types.ThermalSerious:  2,
	types.ThermalCritical: 3,
}

func hotter(a, b types.ThermalState) types.ThermalState {
	if thermalRank[b] > thermalRank[a] {
		return b
	}
	return a
}

// Watch implements Source.
func (t *Thermal) Watch(ctx context.Context, emit func(types.SystemSignals)) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log := logging.Get("signals")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s, err := t.Read(ctx)
			if err != nil {
				log.Debug("thermal poll failed", "error", err)
				continue
			}
			emit(s)
		}
	}
}
