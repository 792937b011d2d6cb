package derive_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"lrstool/src/archivetest"
	"lrstool/src/catalog"
	"lrstool/src/derive"
	"lrstool/src/metrics"
	"lrstool/src/settings"
	"lrstool/src/surface"
	"lrstool/src/track"
)

const testProduct = "sln-l-lrs-5-sndr-ss-sar05-power-v1.0"

type harness struct {
	args    *settings.Arguments
	catalog *catalog.CatalogEngine
	engine  *derive.DeriveEngine
	metrics *metrics.Collector
}

func newHarness(t *testing.T, tracks ...*archivetest.Track) *harness {
	t.Helper()
	args := archivetest.TestArguments(t)
	for _, tr := range tracks {
		archivetest.WriteTrack(t, args, tr)
	}

	logger := zap.NewNop().Sugar()
	cat, err := catalog.NewCatalog(args, logger)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	store := track.NewTrackStore(logger)
	return &harness{
		args:    args,
		catalog: cat,
		engine:  derive.NewDeriveEngine(args, cat, store, collector, logger),
		metrics: collector,
	}
}

func TestDeriveAncillary(t *testing.T) {
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16)
	h := newHarness(t, tr)

	path, err := h.engine.Derive(derive.Request{
		Kind:    derive.KindAncillary,
		Product: "sar05",
		Name:    "20071221033918",
		Archive: true,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	want := filepath.Join(h.args.ArchiveRoot, h.args.XtraDirName, h.args.AncKindName,
		testProduct, "20071221", "data", "LRS_SAR05KM_20071221033918_anc.bson")
	if path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	anc, err := derive.LoadAncillaryRecord(path)
	if err != nil {
		t.Fatalf("LoadAncillaryRecord: %v", err)
	}
	if anc.Product != testProduct || anc.Name != "20071221033918" {
		t.Errorf("identity = %s %s", anc.Product, anc.Name)
	}
	if !reflect.DeepEqual(anc.Delay, tr.Delay) {
		t.Errorf("Delay = %v, want %v", anc.Delay, tr.Delay)
	}
	if !reflect.DeepEqual(anc.Latitude, tr.Latitude) {
		t.Errorf("Latitude = %v", anc.Latitude)
	}
	if !reflect.DeepEqual(anc.StartStep, tr.StartStep) {
		t.Errorf("StartStep = %v", anc.StartStep)
	}
	if anc.Pmax != tr.Pmax || anc.Pmin != tr.Pmin {
		t.Errorf("Pmax, Pmin = %g, %g", anc.Pmax, anc.Pmin)
	}

	if got := testutil.ToFloat64(h.metrics.DerivationsTotal.WithLabelValues("anc", "created")); got != 1 {
		t.Errorf("created counter = %g, want 1", got)
	}
}

func TestDeriveSurface(t *testing.T) {
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16)
	h := newHarness(t, tr)

	path, err := h.engine.Derive(derive.Request{
		Kind:    derive.KindSurface,
		Product: "sar05",
		Name:    "20071221033918",
		Method:  surface.Grima2012,
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	// The method names the file, so both algorithms can coexist
	if got := filepath.Base(path); got != "LRS_SAR05KM_20071221033918_grima2012.bson" {
		t.Errorf("file = %s", got)
	}

	table, err := derive.LoadSurfaceTable(path)
	if err != nil {
		t.Fatalf("LoadSurfaceTable: %v", err)
	}
	if table.Method != "grima2012" || len(table.Echoes) != 8 {
		t.Errorf("table = method %q, %d echoes", table.Method, len(table.Echoes))
	}
}

func TestDeriveSurfaceDefaultsMethod(t *testing.T) {
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16)
	h := newHarness(t, tr)

	path, err := h.engine.Derive(derive.Request{
		Kind:    derive.KindSurface,
		Product: "sar05",
		Name:    "20071221033918",
	})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if got := filepath.Base(path); got != "LRS_SAR05KM_20071221033918_mouginot2010.bson" {
		t.Errorf("file = %s", got)
	}
}

func TestDeriveCacheHit(t *testing.T) {
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16)
	h := newHarness(t, tr)

	req := derive.Request{
		Kind:    derive.KindAncillary,
		Product: "sar05",
		Name:    "20071221033918",
		Archive: true,
	}
	path, err := h.engine.Derive(req)
	if err != nil {
		t.Fatalf("first Derive: %v", err)
	}

	// Plant a marker; a cache hit must not touch the file
	marker := []byte("already derived")
	if err := os.WriteFile(path, marker, 0644); err != nil {
		t.Fatal(err)
	}
	again, err := h.engine.Derive(req)
	if err != nil {
		t.Fatalf("second Derive: %v", err)
	}
	if again != path {
		t.Errorf("path changed: %s -> %s", path, again)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(marker) {
		t.Error("a cache hit recomputed the derived file")
	}
	if n := testutil.ToFloat64(h.metrics.DerivationsTotal.WithLabelValues("anc", "cache_hit")); n != 1 {
		t.Errorf("cache_hit counter = %g, want 1", n)
	}

	// Without the archive flag the file is recomputed
	req.Archive = false
	if _, err := h.engine.Derive(req); err != nil {
		t.Fatalf("recompute Derive: %v", err)
	}
	if _, err := derive.LoadAncillaryRecord(path); err != nil {
		t.Errorf("recomputed file is not readable: %v", err)
	}
}

func TestDeriveDeletesPayloadOnly(t *testing.T) {
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16)
	h := newHarness(t, tr)

	files, err := h.catalog.Resolve("sar05", "20071221033918")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.Derive(derive.Request{
		Kind:    derive.KindAncillary,
		Product: "sar05",
		Name:    "20071221033918",
		Delete:  true,
	}); err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if _, err := os.Stat(files.PayloadPath); !os.IsNotExist(err) {
		t.Error("payload should be gone after a delete derivation")
	}
	if _, err := os.Stat(files.LabelPath); err != nil {
		t.Errorf("label must survive a delete derivation: %v", err)
	}
	if n := testutil.ToFloat64(h.metrics.PayloadsDeleted); n != 1 {
		t.Errorf("deleted counter = %g, want 1", n)
	}
}

func TestDeriveErrors(t *testing.T) {
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16)
	h := newHarness(t, tr)

	if _, err := h.engine.Derive(derive.Request{
		Kind: "nonsense", Product: "sar05", Name: "20071221033918",
	}); !errors.Is(err, derive.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}

	if _, err := h.engine.Derive(derive.Request{
		Kind: derive.KindAncillary, Product: "nosuchproduct", Name: "20071221033918",
	}); !errors.Is(err, derive.ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}

	if _, err := h.engine.Derive(derive.Request{
		Kind: derive.KindAncillary, Product: "sar05", Name: "19990101000000",
	}); !errors.Is(err, derive.ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestDeriveFailureLeavesNoFile(t *testing.T) {
	tr := archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16)
	h := newHarness(t, tr)

	files, err := h.catalog.Resolve("sar05", "20071221033918")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(files.PayloadPath); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.Derive(derive.Request{
		Kind: derive.KindAncillary, Product: "sar05", Name: "20071221033918",
	}); !errors.Is(err, track.ErrPayloadMissing) {
		t.Fatalf("err = %v, want ErrPayloadMissing", err)
	}

	kindRoot := filepath.Join(h.args.ArchiveRoot, h.args.XtraDirName, h.args.AncKindName)
	if _, err := os.Stat(kindRoot); !os.IsNotExist(err) {
		var found []string
		filepath.WalkDir(kindRoot, func(path string, d os.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				found = append(found, path)
			}
			return nil
		})
		if len(found) > 0 {
			t.Errorf("failed derivation left files behind: %v", found)
		}
	}
}

func TestRunAll(t *testing.T) {
	h := newHarness(t,
		archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16),
		archivetest.DefaultTrack(testProduct, "20080102120000", 8, 16),
		archivetest.DefaultTrack(testProduct, "20080315000000", 8, 16),
	)

	report, err := h.engine.RunAll(derive.Request{
		Kind:    derive.KindAncillary,
		Product: "sar05",
		Archive: true,
	}, 2)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.RunID == "" {
		t.Error("report has no run id")
	}
	if len(report.Succeeded) != 3 || len(report.Failed) != 0 {
		t.Fatalf("report = %d succeeded, %d failed", len(report.Succeeded), len(report.Failed))
	}
	// Results come back sorted regardless of worker interleaving
	for i, name := range []string{"20071221033918", "20080102120000", "20080315000000"} {
		result := report.Succeeded[i]
		if result.Name != name {
			t.Errorf("Succeeded[%d] = %s, want %s", i, result.Name, name)
		}
		if _, err := derive.LoadAncillaryRecord(result.Path); err != nil {
			t.Errorf("derived file for %s: %v", name, err)
		}
	}
}

func TestRunAllPartialFailure(t *testing.T) {
	h := newHarness(t,
		archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16),
		archivetest.DefaultTrack(testProduct, "20080102120000", 8, 16),
	)

	// Break one track's payload
	files, err := h.catalog.Resolve("sar05", "20080102120000")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(files.PayloadPath); err != nil {
		t.Fatal(err)
	}

	report, err := h.engine.RunAll(derive.Request{
		Kind:    derive.KindAncillary,
		Product: "sar05",
	}, 2)
	if err != nil {
		t.Fatalf("a partial failure should not fail the batch: %v", err)
	}
	if len(report.Succeeded) != 1 || len(report.Failed) != 1 {
		t.Fatalf("report = %d succeeded, %d failed", len(report.Succeeded), len(report.Failed))
	}
	if report.Failed[0].Name != "20080102120000" {
		t.Errorf("Failed[0] = %s", report.Failed[0].Name)
	}
	if !errors.Is(report.Err, track.ErrPayloadMissing) {
		t.Errorf("report.Err = %v, want to wrap ErrPayloadMissing", report.Err)
	}
}

func TestRunAllTotalFailure(t *testing.T) {
	h := newHarness(t,
		archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16),
	)

	files, err := h.catalog.Resolve("sar05", "20071221033918")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(files.PayloadPath); err != nil {
		t.Fatal(err)
	}

	report, err := h.engine.RunAll(derive.Request{
		Kind:    derive.KindAncillary,
		Product: "sar05",
	}, 2)
	if err == nil {
		t.Fatal("a batch with no successful track should fail")
	}
	if report == nil || len(report.Failed) != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRunAllUnknownProduct(t *testing.T) {
	h := newHarness(t,
		archivetest.DefaultTrack(testProduct, "20071221033918", 8, 16),
	)
	if _, err := h.engine.RunAll(derive.Request{
		Kind:    derive.KindAncillary,
		Product: "nosuchproduct",
	}, 2); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
