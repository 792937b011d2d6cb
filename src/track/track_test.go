package track_test

import (
	"errors"
	"math"
	"os"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"lrstool/src/archivetest"
	"lrstool/src/models"
	"lrstool/src/track"
)

const testProduct = "sln-l-lrs-5-sndr-ss-sar05-power-v1.0"

func writeTestTrack(t *testing.T, traces, samples int) (*archivetest.Track, models.TrackFiles) {
	t.Helper()
	args := archivetest.TestArguments(t)
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", traces, samples)
	return tr, archivetest.WriteTrack(t, args, tr)
}

func TestLoadAncillary(t *testing.T) {
	tr, files := writeTestTrack(t, 16, 32)

	store := track.NewTrackStore(zap.NewNop().Sugar())
	anc, err := store.LoadAncillary(files)
	if err != nil {
		t.Fatalf("LoadAncillary: %v", err)
	}

	if anc.Product != testProduct || anc.Name != "20071221033918" {
		t.Errorf("identity = %s %s", anc.Product, anc.Name)
	}
	if anc.TraceCount() != 16 {
		t.Fatalf("TraceCount = %d, want 16", anc.TraceCount())
	}
	if !reflect.DeepEqual(anc.ObservationTime, tr.ObservationTime) {
		t.Errorf("ObservationTime = %v", anc.ObservationTime)
	}
	if !reflect.DeepEqual(anc.Delay, tr.Delay) {
		t.Errorf("Delay = %v", anc.Delay)
	}
	if !reflect.DeepEqual(anc.StartStep, tr.StartStep) {
		t.Errorf("StartStep = %v", anc.StartStep)
	}
	if !reflect.DeepEqual(anc.Latitude, tr.Latitude) {
		t.Errorf("Latitude = %v", anc.Latitude)
	}
	if !reflect.DeepEqual(anc.Longitude, tr.Longitude) {
		t.Errorf("Longitude = %v", anc.Longitude)
	}
	if !reflect.DeepEqual(anc.Altitude, tr.Altitude) {
		t.Errorf("Altitude = %v", anc.Altitude)
	}
	if !reflect.DeepEqual(anc.Range0, tr.Range0) {
		t.Errorf("Range0 = %v", anc.Range0)
	}
	if !reflect.DeepEqual(anc.TemperatureIndex, tr.TemperatureIndex) {
		t.Errorf("TemperatureIndex = %v", anc.TemperatureIndex)
	}
	if anc.Pmax != tr.Pmax || anc.Pmin != tr.Pmin {
		t.Errorf("Pmax, Pmin = %g, %g", anc.Pmax, anc.Pmin)
	}
	if anc.SampleInterval != tr.SampleInterval {
		t.Errorf("SampleInterval = %g", anc.SampleInterval)
	}
}

func TestLoadTrackMatrix(t *testing.T) {
	tr, files := writeTestTrack(t, 8, 20)

	store := track.NewTrackStore(zap.NewNop().Sugar())
	data, err := store.LoadTrack(files)
	if err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	if len(data.Image) != 8 {
		t.Fatalf("Image has %d rows, want 8", len(data.Image))
	}
	for i, row := range data.Image {
		if len(row) != 20 {
			t.Fatalf("row %d has %d samples, want 20", i, len(row))
		}
		for j, got := range row {
			// Samples round-trip through 32-bit reals
			want := float64(float32(tr.Image[i][j]))
			if math.Abs(got-want) > 1e-12 {
				t.Fatalf("Image[%d][%d] = %g, want %g", i, j, got, want)
			}
		}
	}
}

func TestLoadTrackUnsignedSamples(t *testing.T) {
	args := archivetest.TestArguments(t)
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 4, 8)
	tr.SampleType = "UNSIGNED_INTEGER"
	tr.SampleBits = 8
	for i := range tr.Image {
		for j := range tr.Image[i] {
			tr.Image[i][j] = float64((i*8 + j) % 256)
		}
	}
	files := archivetest.WriteTrack(t, args, tr)

	store := track.NewTrackStore(zap.NewNop().Sugar())
	data, err := store.LoadTrack(files)
	if err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}
	for i, row := range data.Image {
		for j, got := range row {
			if got != tr.Image[i][j] {
				t.Fatalf("Image[%d][%d] = %g, want %g", i, j, got, tr.Image[i][j])
			}
		}
	}

	// Calibration applies on demand, not at load
	if got := data.PowerDB(255); got != data.Pmin {
		t.Errorf("PowerDB(255) = %g, want Pmin %g", got, data.Pmin)
	}
	if got := data.PowerDB(0); got != data.Pmax {
		t.Errorf("PowerDB(0) = %g, want Pmax %g", got, data.Pmax)
	}
}

func TestLoadAncillarySkipsMatrix(t *testing.T) {
	_, files := writeTestTrack(t, 4, 8)

	store := track.NewTrackStore(zap.NewNop().Sugar())
	anc1, err := store.LoadAncillary(files)
	if err != nil {
		t.Fatalf("LoadAncillary: %v", err)
	}
	full, err := store.LoadTrack(files)
	if err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}
	// The ancillary vectors are identical either way
	if !reflect.DeepEqual(*anc1, full.AncillaryRecord) {
		t.Error("ancillary vectors differ between the light and full loads")
	}
}

func TestLoadTruncatedPayload(t *testing.T) {
	_, files := writeTestTrack(t, 4, 8)

	// Chop the payload short of what the label's pointers imply
	payload, err := os.ReadFile(files.PayloadPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(files.PayloadPath, payload[:len(payload)-5], 0644); err != nil {
		t.Fatal(err)
	}

	store := track.NewTrackStore(zap.NewNop().Sugar())
	_, err = store.LoadAncillary(files)
	if !errors.Is(err, track.ErrPayloadSize) {
		t.Fatalf("err = %v, want ErrPayloadSize", err)
	}
	var sizeErr *track.PayloadSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("err is not a PayloadSizeError: %v", err)
	}
	if sizeErr.Have != int64(len(payload)-5) || sizeErr.Need != int64(len(payload)) {
		t.Errorf("sizes = %d/%d, want %d/%d",
			sizeErr.Have, sizeErr.Need, len(payload)-5, len(payload))
	}
}

func TestLoadMissingPayload(t *testing.T) {
	_, files := writeTestTrack(t, 4, 8)
	if err := os.Remove(files.PayloadPath); err != nil {
		t.Fatal(err)
	}

	store := track.NewTrackStore(zap.NewNop().Sugar())
	if _, err := store.LoadAncillary(files); !errors.Is(err, track.ErrPayloadMissing) {
		t.Fatalf("err = %v, want ErrPayloadMissing", err)
	}
}

func TestLoadMissingLabel(t *testing.T) {
	_, files := writeTestTrack(t, 4, 8)
	if err := os.Remove(files.LabelPath); err != nil {
		t.Fatal(err)
	}

	store := track.NewTrackStore(zap.NewNop().Sugar())
	if _, err := store.LoadAncillary(files); err == nil {
		t.Fatal("expected an error for a missing label file")
	}
}
