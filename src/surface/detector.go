package surface

// This file contains the surface echo detector. Both algorithms pick
// one range bin per trace inside a search window anchored at the
// label-predicted surface return; they differ only in the criterion
// applied within the window. Neither is assumed superior: mouginot2010
// is more sensitive to the continuous low-level artifact that precedes
// the true leading edge in parts of the archive, grima2012 can lock
// onto an off-nadir echo when it is stronger than the nadir return.
// Those trade-offs are documented archive behavior, not defects.

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"lrstool/src/models"
)

// ErrUnknownAlgorithm is returned for a detection method name outside
// the closed set.
var ErrUnknownAlgorithm = errors.New("unknown surface detection algorithm")

// ErrNoImage is returned when the track data carries no radargram
// matrix.
var ErrNoImage = errors.New("track data has no radargram matrix")

// speedOfLightKmPerUs is the vacuum speed of light in km per
// microsecond.
const speedOfLightKmPerUs = 0.299792458

// Algorithm names a surface detection method. The set is closed; adding
// a third method is a deliberate extension.
type Algorithm string

const (
	// Mouginot2010 picks the steepest leading-edge rise: the maximum
	// finite difference of the power profile within the window.
	Mouginot2010 Algorithm = "mouginot2010"

	// Grima2012 picks the maximum raw power within the window.
	Grima2012 Algorithm = "grima2012"
)

// ParseAlgorithm validates a method name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case Mouginot2010, Grima2012:
		return Algorithm(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

type Detector struct {
	method Algorithm

	// window is the half-width of the search window in range bins.
	window int

	logger *zap.SugaredLogger
}

func NewDetector(method Algorithm, window int, logger *zap.SugaredLogger) (*Detector, error) {
	if _, err := ParseAlgorithm(string(method)); err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, fmt.Errorf("surface search window must be positive, got %d", window)
	}
	return &Detector{method: method, window: window, logger: logger}, nil
}

// Detect produces one surface echo estimate per trace of the track.
// Traces whose search window leaves the matrix column range yield a
// no-detection value rather than an error; the caller can filter those
// out.
func (d *Detector) Detect(data *models.TrackData) (*models.SurfaceTable, error) {
	if len(data.Image) == 0 {
		return nil, ErrNoImage
	}
	if len(data.Image) != data.TraceCount() {
		return nil, fmt.Errorf("radargram has %d rows, ancillary vectors have %d traces",
			len(data.Image), data.TraceCount())
	}

	table := &models.SurfaceTable{
		Product: data.Product,
		Name:    data.Name,
		Method:  string(d.method),
		Echoes:  make([]models.SurfaceEcho, len(data.Image)),
	}

	missed := 0
	for i, trace := range data.Image {
		lo, hi, ok := d.searchWindow(data, i, len(trace))
		if !ok {
			missed++
			continue // Echoes[i] stays the no-detection value
		}
		switch d.method {
		case Mouginot2010:
			table.Echoes[i] = pickMaxDerivative(trace, lo, hi)
		case Grima2012:
			table.Echoes[i] = pickMaxPower(trace, lo, hi)
		}
	}

	if d.logger != nil && missed > 0 {
		d.logger.Debugf("Surface detection %s %s: %d/%d traces without a valid window",
			data.Product, data.Name, missed, len(data.Image))
	}
	return table, nil
}

// searchWindow anchors the window at the surface sample the label
// geometry predicts for trace i. The window must lie fully inside the
// matrix columns; a trace with missing or degenerate altitude metadata
// has no window.
func (d *Detector) searchWindow(data *models.TrackData, i, columns int) (lo, hi int, ok bool) {
	if data.SampleInterval <= 0 {
		return 0, 0, false
	}
	altitude := data.Altitude[i]
	rangeKm := altitude - data.Range0[i]
	if math.IsNaN(altitude) || altitude <= 0 || math.IsNaN(rangeKm) {
		return 0, 0, false
	}

	twoWayUs := 2 * rangeKm / speedOfLightKmPerUs
	predicted := (twoWayUs - data.Delay[i]) / data.SampleInterval
	if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
		return 0, 0, false
	}

	center := int(math.Round(predicted))
	lo = center - d.window
	hi = center + d.window
	// The finite difference needs one bin of headroom on the left
	if lo < 1 || hi >= columns {
		return 0, 0, false
	}
	return lo, hi, true
}

// pickMaxDerivative implements mouginot2010: the surface sample is the
// bin with the steepest rise of the power profile, its power the raw
// value at that bin.
func pickMaxDerivative(trace []float64, lo, hi int) models.SurfaceEcho {
	best := lo
	bestSlope := math.Inf(-1)
	for j := lo; j <= hi; j++ {
		slope := trace[j] - trace[j-1]
		if slope > bestSlope {
			bestSlope = slope
			best = j
		}
	}
	return models.SurfaceEcho{Sample: float64(best), Power: trace[best], Detected: true}
}

// pickMaxPower implements grima2012: the surface sample is the bin of
// maximum raw power.
func pickMaxPower(trace []float64, lo, hi int) models.SurfaceEcho {
	best := lo
	for j := lo; j <= hi; j++ {
		if trace[j] > trace[best] {
			best = j
		}
	}
	return models.SurfaceEcho{Sample: float64(best), Power: trace[best], Detected: true}
}
