package models

// TrackID identifies one recorded pass of the instrument within a
// processing-mode product.
type TrackID struct {
	// Product is the full product directory name, e.g.
	// sln-l-lrs-5-sndr-ss-sar05-power-v1.0
	Product string

	// Name is the 14-digit timestamp identifier of the track,
	// e.g. 20071221033918
	Name string
}

// TrackFiles holds the resolved on-disk locations of a track's original
// label/payload pair.
type TrackFiles struct {
	TrackID

	// LabelPath is the .lbl metadata file.
	LabelPath string

	// PayloadPath is the .img binary file referenced by the label's
	// pointer fields. It may be absent when the payload was purged after
	// a derivation run.
	PayloadPath string
}

// AncillaryRecord holds the per-trace metadata of a track without the
// radargram matrix. All slices share the same length (the trace count).
type AncillaryRecord struct {
	Product string `bson:"product"`
	Name    string `bson:"name"`

	// ObservationTime is the raw per-trace UTC timestamp string from the
	// payload headers.
	ObservationTime []string `bson:"observation_time"`

	// Delay is the receiving window open delay per trace [us].
	Delay []float64 `bson:"delay"`

	// StartStep is the instrument sweep start step per trace.
	StartStep []int64 `bson:"start_step"`

	// Latitude / Longitude are the sub-spacecraft coordinates per
	// trace [deg].
	Latitude  []float64 `bson:"latitude"`
	Longitude []float64 `bson:"longitude"`

	// Altitude is the spacecraft altitude per trace [km].
	Altitude []float64 `bson:"altitude"`

	// Range0 is the distance to range zero per trace [km].
	Range0 []float64 `bson:"range0"`

	// TemperatureIndex is the instrument temperature index per trace.
	TemperatureIndex []int64 `bson:"temperature_index"`

	// Pmax / Pmin are the signal conversion coefficients from the
	// label [dB].
	Pmax float64 `bson:"pmax"`
	Pmin float64 `bson:"pmin"`

	// SampleInterval is the range bin duration [us].
	SampleInterval float64 `bson:"sample_interval"`
}

// TraceCount returns the number of traces along the track.
func (a *AncillaryRecord) TraceCount() int {
	return len(a.Latitude)
}

// TrackData is a fully decoded track: the ancillary vectors plus the
// radargram matrix. Image[i][j] is the raw sample value of trace i at
// range bin j; no rescaling is applied at load time.
type TrackData struct {
	AncillaryRecord

	Image [][]float64
}

// PowerDB converts a raw sample value to calibrated power [dB] using the
// label's conversion coefficients.
func (t *TrackData) PowerDB(dn float64) float64 {
	return (255-dn)*(t.Pmax-t.Pmin)/255 + t.Pmin
}

// SurfaceEcho is the per-trace result of surface echo detection.
// Detected distinguishes the no-detection case from a valid zero-power
// pick.
type SurfaceEcho struct {
	// Sample is the range bin index of the surface echo.
	Sample float64 `bson:"sample"`

	// Power is the raw sample value at that bin.
	Power float64 `bson:"power"`

	Detected bool `bson:"detected"`
}

// SurfaceTable holds one surface echo estimate per trace of a track.
type SurfaceTable struct {
	Product string `bson:"product"`
	Name    string `bson:"name"`

	// Method is the detection algorithm that produced the table.
	Method string `bson:"method"`

	Echoes []SurfaceEcho `bson:"echoes"`
}

// CatalogEntry is the cheap label-derived summary the catalog keeps for
// each (product, track) pair.
type CatalogEntry struct {
	TrackID

	Files TrackFiles

	// LatLim / LonLim are the sub-spacecraft coordinate extents declared
	// by the label, sorted so that LatLim[0] <= LatLim[1].
	LatLim [2]float64
	LonLim [2]float64

	// Start/Stop coordinates preserve the label's endpoint order for
	// great-circle interpolation.
	StartLat, StopLat float64
	StartLon, StopLon float64

	// ClockLim is the spacecraft clock count extent, ClockLim[0] <=
	// ClockLim[1].
	ClockLim [2]float64

	// EpochLim is the START_TIME/STOP_TIME extent as Unix seconds.
	EpochLim [2]float64

	// HasLimits records whether a label was readable and the limit
	// fields above are meaningful.
	HasLimits bool

	// Derived maps a derivation kind (e.g. "anc", "srf") to the derived
	// files already present for this track.
	Derived map[string][]string
}
