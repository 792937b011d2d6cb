package archivetest

// This file contains helpers that synthesize small archive trees for
// tests: a label/payload pair per track, laid out under a temporary
// root the way the real archive is.

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lrstool/src/catalog"
	"lrstool/src/models"
	"lrstool/src/settings"
)

// Track holds everything needed to emit one synthetic track. Slices
// must all have the same length; Image must be len(Delay) rows of equal
// width.
type Track struct {
	Product string
	Name    string

	StartTime  string
	StopTime   string
	ClockStart float64
	ClockStop  float64

	SampleInterval float64
	Pmax           float64
	Pmin           float64

	// SampleType/SampleBits select the radargram sample encoding:
	// IEEE_REAL/32 or UNSIGNED_INTEGER/8 or /16.
	SampleType string
	SampleBits int

	ObservationTime  []string
	Delay            []float64
	StartStep        []int64
	Latitude         []float64
	Longitude        []float64
	Altitude         []float64
	Range0           []float64
	TemperatureIndex []int64
	Image            [][]float64
}

const obsTimeBytes = 23

// DefaultTrack builds a plausible track of the given dimensions. Tests
// overwrite the fields they care about.
func DefaultTrack(product, name string, traces, samples int) *Track {
	tr := &Track{
		Product:          product,
		Name:             name,
		StartTime:        "2007-12-21T03:39:18",
		StopTime:         "2007-12-21T03:44:18",
		ClockStart:       880083558.123,
		ClockStop:        880083858.123,
		SampleInterval:   0.16,
		Pmax:             40.0,
		Pmin:             -20.0,
		SampleType:       "IEEE_REAL",
		SampleBits:       32,
		ObservationTime:  make([]string, traces),
		Delay:            make([]float64, traces),
		StartStep:        make([]int64, traces),
		Latitude:         make([]float64, traces),
		Longitude:        make([]float64, traces),
		Altitude:         make([]float64, traces),
		Range0:           make([]float64, traces),
		TemperatureIndex: make([]int64, traces),
		Image:            make([][]float64, traces),
	}
	for i := 0; i < traces; i++ {
		frac := 0.0
		if traces > 1 {
			frac = float64(i) / float64(traces-1)
		}
		tr.ObservationTime[i] = fmt.Sprintf("2007-12-21T03:39:%02d.%03d", 18+i%40, i%1000)
		tr.Delay[i] = 95.0 + 0.01*float64(i)
		tr.StartStep[i] = int64(100 + i)
		tr.Latitude[i] = (1-frac)*75.148 + frac*(-35.961)
		tr.Longitude[i] = (1-frac)*120.0 + frac*123.5
		tr.Altitude[i] = 100.0 + 0.1*frac
		tr.Range0[i] = 85.0
		tr.TemperatureIndex[i] = int64(i % 8)
		row := make([]float64, samples)
		for j := 0; j < samples; j++ {
			row[j] = float64((i*31+j*7)%997) / 997.0
		}
		tr.Image[i] = row
	}
	return tr
}

// TestArguments returns a fresh settings value rooted in a temporary
// directory, independent of the process-wide singleton.
func TestArguments(t *testing.T) *settings.Arguments {
	t.Helper()
	return &settings.Arguments{
		ArchiveRoot:   t.TempDir(),
		OrigDirName:   "orig/lrs",
		XtraDirName:   "xtra/lrs",
		AncKindName:   "anc",
		SrfKindName:   "srf",
		Workers:       2,
		SurfaceWindow: 100,
	}
}

// WriteTrack materializes a track's label and payload files under the
// archive root and returns their paths.
func WriteTrack(t *testing.T, args *settings.Arguments, tr *Track) models.TrackFiles {
	t.Helper()

	dir := filepath.Join(args.ArchiveRoot, args.OrigDirName, tr.Product,
		catalog.DayDir(tr.Name), "data")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating archive dirs: %v", err)
	}

	root := catalog.FilenameRoot(tr.Product, tr.Name)
	files := models.TrackFiles{
		TrackID:     models.TrackID{Product: tr.Product, Name: tr.Name},
		LabelPath:   filepath.Join(dir, root+".lbl"),
		PayloadPath: filepath.Join(dir, root+".img"),
	}

	if err := os.WriteFile(files.LabelPath, []byte(LabelText(tr)), 0644); err != nil {
		t.Fatalf("writing label: %v", err)
	}
	if err := os.WriteFile(files.PayloadPath, PayloadBytes(tr), 0644); err != nil {
		t.Fatalf("writing payload: %v", err)
	}
	return files
}

// layout computes the byte ranges of every payload object in file
// order.
func (tr *Track) layout() (pointers map[string][3]int64) {
	traces := int64(len(tr.Delay))
	samples := int64(0)
	if len(tr.Image) > 0 {
		samples = int64(len(tr.Image[0]))
	}

	pointers = make(map[string][3]int64)
	offset := int64(0)
	add := func(name string, items, itemBytes int64) {
		pointers[name] = [3]int64{offset, items, itemBytes}
		offset += items * itemBytes
	}
	add("^OBSERVATION_TIME", traces, obsTimeBytes)
	add("^DELAY", traces, 8)
	add("^START_STEP", traces, 4)
	add("^SUB_SPACECRAFT_LATITUDE", traces, 8)
	add("^SUB_SPACECRAFT_LONGITUDE", traces, 8)
	add("^SPACECRAFT_ALTITUDE", traces, 8)
	add("^DISTANCE_TO_RANGE0", traces, 8)
	add("^TEMPERATURE_INDEX", traces, 2)
	add("^IMAGE", traces*samples, int64(tr.SampleBits/8))
	return pointers
}

// LabelText emits the label statements for a track.
func LabelText(tr *Track) string {
	traces := len(tr.Delay)
	samples := 0
	if len(tr.Image) > 0 {
		samples = len(tr.Image[0])
	}
	pointers := tr.layout()

	var sb strings.Builder
	put := func(key, value string) {
		fmt.Fprintf(&sb, "%-34s = %s\n", key, value)
	}
	ptr := func(name, unit string) {
		p := pointers[name]
		value := fmt.Sprintf("(%d, %d, %d)", p[0], p[1], p[2])
		if unit != "" {
			value += " <" + unit + ">"
		}
		put(name, value)
	}

	sb.WriteString("/* Synthetic observation label */\n")
	put("PRODUCT_ID", `"`+catalog.FilenameRoot(tr.Product, tr.Name)+`"`)
	put("DATA_SET_ID", `"`+strings.ToUpper(tr.Product)+`"`)
	put("TARGET_NAME", "MOON")
	put("START_TIME", tr.StartTime)
	put("STOP_TIME", tr.StopTime)
	put("SPACECRAFT_CLOCK_START_COUNT", fmt.Sprintf("%.3f", tr.ClockStart))
	put("SPACECRAFT_CLOCK_STOP_COUNT", fmt.Sprintf("%.3f", tr.ClockStop))
	put("START_SUB_SPACECRAFT_LATITUDE", fmt.Sprintf("%g <deg>", first(tr.Latitude)))
	put("STOP_SUB_SPACECRAFT_LATITUDE", fmt.Sprintf("%g <deg>", last(tr.Latitude)))
	put("START_SUB_SPACECRAFT_LONGITUDE", fmt.Sprintf("%g <deg>", first(tr.Longitude)))
	put("STOP_SUB_SPACECRAFT_LONGITUDE", fmt.Sprintf("%g <deg>", last(tr.Longitude)))
	put("IMAGE_LINES", fmt.Sprintf("%d", traces))
	put("IMAGE_LINE_SAMPLES", fmt.Sprintf("%d", samples))
	put("SAMPLE_BITS", fmt.Sprintf("%d", tr.SampleBits))
	put("SAMPLE_TYPE", tr.SampleType)
	put("SAMPLE_INTERVAL", fmt.Sprintf("%g <us>", tr.SampleInterval))
	put("NOTE", fmt.Sprintf(`"Raw values map to received power as Pmax = %.1f dB, Pmin = %.1f dB."`,
		tr.Pmax, tr.Pmin))

	ptr("^OBSERVATION_TIME", "")
	ptr("^DELAY", "us")
	ptr("^START_STEP", "")
	ptr("^SUB_SPACECRAFT_LATITUDE", "deg")
	ptr("^SUB_SPACECRAFT_LONGITUDE", "deg")
	ptr("^SPACECRAFT_ALTITUDE", "km")
	ptr("^DISTANCE_TO_RANGE0", "km")
	ptr("^TEMPERATURE_INDEX", "")
	ptr("^IMAGE", "")
	sb.WriteString("END\n")
	return sb.String()
}

// PayloadBytes encodes the payload objects in file order, big endian.
func PayloadBytes(tr *Track) []byte {
	var buf []byte

	for _, s := range tr.ObservationTime {
		item := make([]byte, obsTimeBytes)
		copy(item, s)
		for i := len(s); i < obsTimeBytes; i++ {
			item[i] = ' '
		}
		buf = append(buf, item...)
	}
	buf = appendFloats(buf, tr.Delay)
	for _, v := range tr.StartStep {
		buf = binary.BigEndian.AppendUint32(buf, uint32(int32(v)))
	}
	buf = appendFloats(buf, tr.Latitude)
	buf = appendFloats(buf, tr.Longitude)
	buf = appendFloats(buf, tr.Altitude)
	buf = appendFloats(buf, tr.Range0)
	for _, v := range tr.TemperatureIndex {
		buf = binary.BigEndian.AppendUint16(buf, uint16(int16(v)))
	}
	for _, row := range tr.Image {
		for _, v := range row {
			switch {
			case tr.SampleType == "UNSIGNED_INTEGER" && tr.SampleBits == 8:
				buf = append(buf, uint8(v))
			case tr.SampleType == "UNSIGNED_INTEGER" && tr.SampleBits == 16:
				buf = binary.BigEndian.AppendUint16(buf, uint16(v))
			default:
				buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			}
		}
	}
	return buf
}

func appendFloats(buf []byte, values []float64) []byte {
	for _, v := range values {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

func first(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
