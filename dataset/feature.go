package dataset

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/ghgforest/pkg/errors"
)

// Reference drivers of the chamber flux series.
const (
	SoilMoistureShallow    = "soil_moisture_10cm"
	SoilMoistureDeep       = "soil_moisture_30cm"
	WaterTable             = "water_table"
	Precipitation          = "precipitation"
	AirTemperature         = "air_temperature"
	SoilTemperatureSurface = "soil_temperature_surface"
	SoilTemperatureShallow = "soil_temperature_shallow"
)

// ReferenceDrivers lists the physical drivers in their canonical order.
var ReferenceDrivers = []string{
	SoilMoistureShallow,
	SoilMoistureDeep,
	WaterTable,
	Precipitation,
	AirTemperature,
	SoilTemperatureSurface,
	SoilTemperatureShallow,
}

// MaxReferenceLag is the deepest lag, in days, of the reference feature set.
const MaxReferenceLag = 7

const lagSuffix = "_lag"

// Feature identifies one column as a (driver, lag) pair. Lag 0 is the
// unlagged driver.
type Feature struct {
	Driver string
	Lag    int
}

// Name returns the canonical column name: "driver" or "driver_lagN".
func (f Feature) Name() string {
	if f.Lag == 0 {
		return f.Driver
	}
	return f.Driver + lagSuffix + strconv.Itoa(f.Lag)
}

func (f Feature) String() string {
	return f.Name()
}

// ParseFeature splits a column name into driver and lag. Names without a
// "_lag" suffix, or ending in a bare "_lag", are lag 0. Text after the last
// "_lag" must be a non-negative integer.
func ParseFeature(name string) (Feature, error) {
	if name == "" {
		return Feature{}, errors.NewInvalidConfigurationError("dataset", "feature", name, "empty feature name")
	}
	idx := strings.LastIndex(name, lagSuffix)
	if idx <= 0 || idx+len(lagSuffix) == len(name) {
		return Feature{Driver: name}, nil
	}
	suffix := name[idx+len(lagSuffix):]
	lag, err := strconv.Atoi(suffix)
	if err != nil {
		return Feature{}, errors.NewInvalidConfigurationError("dataset", "feature", name, "lag suffix "+strconv.Quote(suffix)+" is not an integer")
	}
	if lag < 0 {
		return Feature{}, errors.NewInvalidConfigurationError("dataset", "feature", name, "negative lag")
	}
	return Feature{Driver: name[:idx], Lag: lag}, nil
}

// LaggedFeatures expands drivers into lags 0..maxLag, driver-major.
func LaggedFeatures(drivers []string, maxLag int) []Feature {
	out := make([]Feature, 0, len(drivers)*(maxLag+1))
	for _, d := range drivers {
		for lag := 0; lag <= maxLag; lag++ {
			out = append(out, Feature{Driver: d, Lag: lag})
		}
	}
	return out
}

// Drivers returns the distinct drivers of features in first-seen order.
func Drivers(features []Feature) []string {
	seen := make(map[string]bool, len(features))
	var out []string
	for _, f := range features {
		if !seen[f.Driver] {
			seen[f.Driver] = true
			out = append(out, f.Driver)
		}
	}
	return out
}
