package geo_test

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"lrstool/src/archivetest"
	"lrstool/src/catalog"
	"lrstool/src/geo"
	"lrstool/src/metrics"
	"lrstool/src/models"
)

const testProduct = "sln-l-lrs-5-sndr-ss-sar05-power-v1.0"

// queryEngine builds a catalog over synthetic tracks, one per
// (start, stop) coordinate pair, named in order of definition.
func queryEngine(t *testing.T, endpoints [][4]float64) (*geo.QueryEngine, []string) {
	t.Helper()
	args := archivetest.TestArguments(t)
	var names []string
	for i, e := range endpoints {
		name := "200712210339" + string(rune('0'+i/10)) + string(rune('0'+i%10))
		tr := archivetest.DefaultTrack(testProduct, name, 4, 8)
		for j := range tr.Latitude {
			frac := float64(j) / float64(len(tr.Latitude)-1)
			tr.Latitude[j] = e[0] + frac*(e[2]-e[0])
			tr.Longitude[j] = e[1] + frac*(e[3]-e[1])
		}
		archivetest.WriteTrack(t, args, tr)
		names = append(names, name)
	}
	cat, err := catalog.NewCatalog(args, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	return geo.NewQueryEngine(cat, collector, zap.NewNop().Sugar()), names
}

func resultNames(ids []models.TrackID) map[string]bool {
	out := make(map[string]bool)
	for _, id := range ids {
		out[id.Name] = true
	}
	return out
}

func TestTracksIntersectingBox(t *testing.T) {
	engine, names := queryEngine(t, [][4]float64{
		// start lat, start lon, stop lat, stop lon
		{-80, 130, -70, 131}, // inside the box
		{40, 130, 50, 131},   // wrong latitude band
		{-80, 300, -70, 301}, // right band, wrong longitude
		{-60, 130, -55, 131}, // band overlaps the box edge
		{-75, 100, -60, 140}, // long pass crossing the box
	})

	got := resultNames(engine.TracksIntersectingBox(
		[2]float64{-82, -58}, [2]float64{105, 160}, 10e3))

	want := map[string]bool{names[0]: true, names[3]: true, names[4]: true}
	for name := range want {
		if !got[name] {
			t.Errorf("track %s missing from the box result", name)
		}
	}
	if got[names[1]] {
		t.Errorf("track %s outside the latitude band was returned", names[1])
	}
	if got[names[2]] {
		t.Errorf("track %s outside the longitude range was returned", names[2])
	}
}

func TestTracksIntersectingBoxWithoutSampling(t *testing.T) {
	engine, names := queryEngine(t, [][4]float64{
		{-80, 130, -70, 131}, // inside
		{-80, 300, -70, 301}, // wrong longitude, right latitude band
		{40, 130, 50, 131},   // wrong latitude band
	})

	// Latitude-only filtering keeps longitude false positives
	got := resultNames(engine.TracksIntersectingBox(
		[2]float64{-82, -58}, [2]float64{105, 160}, 0))
	if !got[names[0]] || !got[names[1]] {
		t.Errorf("latitude band candidates missing: %v", got)
	}
	if got[names[2]] {
		t.Error("latitude filtering failed")
	}
}

func TestTracksIntersectingBoxReversedBounds(t *testing.T) {
	engine, names := queryEngine(t, [][4]float64{
		{-80, 130, -70, 131},
	})
	// Bounds are accepted in either order
	got := resultNames(engine.TracksIntersectingBox(
		[2]float64{-58, -82}, [2]float64{160, 105}, 10e3))
	if !got[names[0]] {
		t.Error("reversed bounds changed the result")
	}
}

func TestIntermediateLatLonEndpoints(t *testing.T) {
	start := geo.LatLon{Lat: -80, Lon: 130}
	stop := geo.LatLon{Lat: -70, Lon: 131}
	points := geo.IntermediateLatLon(start, stop, 10e3)

	if len(points) < 3 {
		t.Fatalf("only %d points for a ~300 km arc", len(points))
	}
	if points[0] != start {
		t.Errorf("first point = %+v, want the start", points[0])
	}
	if points[len(points)-1] != stop {
		t.Errorf("last point = %+v, want the stop", points[len(points)-1])
	}
}

func TestIntermediateLatLonSpacing(t *testing.T) {
	start := geo.LatLon{Lat: 0, Lon: 0}
	stop := geo.LatLon{Lat: 10, Lon: 0}
	sampling := 50e3
	points := geo.IntermediateLatLon(start, stop, sampling)

	// A meridian arc: longitude stays put, latitude grows monotonically
	for i, p := range points {
		if math.Abs(p.Lon) > 1e-9 {
			t.Fatalf("point %d left the meridian: %+v", i, p)
		}
		if i > 0 && p.Lat <= points[i-1].Lat {
			t.Fatalf("latitude not monotone at point %d", i)
		}
	}

	// Interior spacing stays at the sampling distance
	arcMeters := 10 * math.Pi / 180 * geo.MoonRadiusMeters
	wantPoints := int(arcMeters/sampling) + 1
	if len(points) < wantPoints-1 || len(points) > wantPoints+1 {
		t.Errorf("got %d points, want about %d", len(points), wantPoints)
	}
	for i := 1; i < len(points)-1; i++ {
		stepDeg := points[i].Lat - points[i-1].Lat
		stepMeters := stepDeg * math.Pi / 180 * geo.MoonRadiusMeters
		if math.Abs(stepMeters-sampling) > sampling*0.01 {
			t.Errorf("step %d is %.0f m, want %.0f m", i, stepMeters, sampling)
		}
	}
}

func TestIntermediateLatLonShortArc(t *testing.T) {
	start := geo.LatLon{Lat: 10, Lon: 20}
	stop := geo.LatLon{Lat: 10.001, Lon: 20}
	points := geo.IntermediateLatLon(start, stop, 10e3)
	// Closer than the sampling distance: just the two end points
	if len(points) != 2 {
		t.Errorf("got %d points, want 2", len(points))
	}
}

func TestIntermediateLatLonNormalizesLongitude(t *testing.T) {
	points := geo.IntermediateLatLon(
		geo.LatLon{Lat: 0, Lon: -10}, geo.LatLon{Lat: 0, Lon: -5}, 20e3)
	for i, p := range points {
		if p.Lon < 0 || p.Lon >= 360 {
			t.Fatalf("point %d longitude %g outside [0, 360)", i, p.Lon)
		}
	}
	if points[0].Lon != 350 {
		t.Errorf("start longitude = %g, want 350", points[0].Lon)
	}
}
