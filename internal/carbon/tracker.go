package carbon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Tracker is the energy accounting service bracketing a tracked region.
// Implementations keep process-global counter state, so a tracker must run
// in a fresh process per measurement and is never restarted.
type Tracker interface {
	Start() error
	// Stop returns the energy consumed in the tracked region, in joules.
	Stop() (float64, error)
}

// EmissionsFromJoules converts measured energy to kg CO2eq using a grid
// carbon intensity in kg CO2eq per kWh.
func EmissionsFromJoules(joules, intensity float64) float64 {
	return joules / 3.6e6 * intensity
}

const powercapRoot = "/sys/class/powercap"

// NewTracker returns a RAPL powercap tracker when the kernel exposes one,
// otherwise a wall-clock estimate at the given reference draw.
func NewTracker(referenceWatts float64) Tracker {
	if zones, err := raplZones(); err == nil && len(zones) > 0 {
		return &raplTracker{zones: zones}
	}
	return &wallTracker{watts: referenceWatts}
}

type raplZone struct {
	energyPath string
	maxRange   float64 // microjoules before the counter wraps
}

type raplTracker struct {
	zones []raplZone
	start []float64
}

func raplZones() ([]raplZone, error) {
	matches, err := filepath.Glob(filepath.Join(powercapRoot, "intel-rapl:[0-9]*"))
	if err != nil {
		return nil, err
	}
	var zones []raplZone
	for _, dir := range matches {
		energy := filepath.Join(dir, "energy_uj")
		if _, err := os.Stat(energy); err != nil {
			continue
		}
		maxRange, _ := readCounter(filepath.Join(dir, "max_energy_range_uj"))
		zones = append(zones, raplZone{energyPath: energy, maxRange: maxRange})
	}
	return zones, nil
}

func (t *raplTracker) Start() error {
	t.start = t.start[:0]
	for _, z := range t.zones {
		v, err := readCounter(z.energyPath)
		if err != nil {
			return fmt.Errorf("read rapl counter: %w", err)
		}
		t.start = append(t.start, v)
	}
	return nil
}

func (t *raplTracker) Stop() (float64, error) {
	if len(t.start) != len(t.zones) {
		return 0, fmt.Errorf("tracker was not started")
	}
	var microjoules float64
	for i, z := range t.zones {
		v, err := readCounter(z.energyPath)
		if err != nil {
			return 0, fmt.Errorf("read rapl counter: %w", err)
		}
		delta := v - t.start[i]
		if delta < 0 && z.maxRange > 0 {
			delta += z.maxRange
		}
		if delta > 0 {
			microjoules += delta
		}
	}
	return microjoules / 1e6, nil
}

func readCounter(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}

// wallTracker estimates energy as elapsed wall time at a fixed reference
// draw. Only used where RAPL counters are unavailable; baseline and
// candidate are still comparable because both use the same estimate.
type wallTracker struct {
	watts float64
	start time.Time
}

func (t *wallTracker) Start() error {
	t.start = time.Now()
	return nil
}

func (t *wallTracker) Stop() (float64, error) {
	if t.start.IsZero() {
		return 0, fmt.Errorf("tracker was not started")
	}
	return time.Since(t.start).Seconds() * t.watts, nil
}
