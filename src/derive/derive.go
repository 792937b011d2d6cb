package derive

// This file contains the derived-product cache. Derived artifacts are
// computed from a track's original label/payload pair and persisted as
// BSON files in a hierarchy mirroring the original archive, rooted
// under the xtra namespace per derivation kind. Writes go through a
// temporary path and an atomic rename, so an interrupted run never
// leaves a partial derived file.

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"lrstool/src/catalog"
	"lrstool/src/helpers"
	"lrstool/src/metrics"
	"lrstool/src/models"
	"lrstool/src/settings"
	"lrstool/src/surface"
	"lrstool/src/track"
)

// Derivation kinds. The on-disk directory labels for these kinds come
// from settings, since the archive documentation is inconsistent about
// their spelling.
const (
	KindAncillary = "anc"
	KindSurface   = "srf"
)

// Request describes one derivation.
type Request struct {
	Kind    string
	Product string
	Name    string

	// Archive keeps an existing derived file: when set and the file is
	// already present the derivation is skipped and the existing path
	// returned.
	Archive bool

	// Delete removes the original binary payload (never the label) after
	// the derived file is safely in place.
	Delete bool

	// Method selects the surface detection algorithm for KindSurface.
	Method surface.Algorithm
}

type DeriveEngine struct {
	args    *settings.Arguments
	catalog *catalog.CatalogEngine
	tracks  track.TrackStore
	metrics *metrics.Collector
	logger  *zap.SugaredLogger
}

func NewDeriveEngine(args *settings.Arguments, cat *catalog.CatalogEngine,
	store track.TrackStore, collector *metrics.Collector,
	logger *zap.SugaredLogger) *DeriveEngine {
	return &DeriveEngine{
		args:    args,
		catalog: cat,
		tracks:  store,
		metrics: collector,
		logger:  logger,
	}
}

// kindDirName maps a derivation kind to its configured directory label.
func (e *DeriveEngine) kindDirName(kind string) (string, error) {
	switch kind {
	case KindAncillary:
		return e.args.AncKindName, nil
	case KindSurface:
		return e.args.SrfKindName, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// derivedPath builds the derived file location mirroring the original
// archive's date/track nesting under the kind's root.
func (e *DeriveEngine) derivedPath(kindDir, product, name, suffix string) string {
	filename := catalog.FilenameRoot(product, name) + "_" + suffix + ".bson"
	return filepath.Join(e.args.ArchiveRoot, e.args.XtraDirName, kindDir,
		product, catalog.DayDir(name), "data", filename)
}

// Derive computes and persists one derived artifact, returning the path
// of the derived file.
func (e *DeriveEngine) Derive(req Request) (string, error) {
	started := time.Now()
	path, status, err := e.derive(req)
	if e.metrics != nil {
		e.metrics.DerivationsTotal.WithLabelValues(req.Kind, status).Inc()
		if status == "created" {
			e.metrics.DerivationDuration.WithLabelValues(req.Kind).Observe(time.Since(started).Seconds())
		}
	}
	return path, err
}

func (e *DeriveEngine) derive(req Request) (string, string, error) {
	kindDir, err := e.kindDirName(req.Kind)
	if err != nil {
		return "", "error", err
	}

	product, err := e.catalog.ProductMatch(req.Product)
	if err != nil {
		return "", "error", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	method := req.Method
	if req.Kind == KindSurface && method == "" {
		if e.logger != nil {
			e.logger.Warnf("No method given for a surface derivation, defaulting to %s", surface.Mouginot2010)
		}
		method = surface.Mouginot2010
	}

	suffix := kindDir
	if req.Kind == KindSurface {
		suffix = string(method)
	}
	archiveFullname := e.derivedPath(kindDir, product, req.Name, suffix)

	// Idempotence: an existing current derived file is a cache hit
	if req.Archive && helpers.FileExists(archiveFullname, e.logger) {
		if e.logger != nil {
			e.logger.Infof("%s EXISTS (NOT RECOMPUTED)", archiveFullname)
		}
		return archiveFullname, "cache_hit", nil
	}

	files, err := e.catalog.Resolve(product, req.Name)
	if err != nil {
		return "", "error", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var record interface{}
	switch req.Kind {
	case KindAncillary:
		// The matrix is not needed; keep the load light
		anc, lerr := e.tracks.LoadAncillary(files)
		if lerr != nil {
			return "", "error", lerr
		}
		record = anc
	case KindSurface:
		data, lerr := e.tracks.LoadTrack(files)
		if lerr != nil {
			return "", "error", lerr
		}
		detector, derr := surface.NewDetector(method, e.args.SurfaceWindow, e.logger)
		if derr != nil {
			return "", "error", derr
		}
		table, derr := detector.Detect(data)
		if derr != nil {
			return "", "error", derr
		}
		record = table
	}

	bsonData, err := helpers.EncodeBSON(record)
	if err != nil {
		return "", "error", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if err := helpers.AtomicWriteFile(archiveFullname, bsonData); err != nil {
		return "", "error", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if e.logger != nil {
		e.logger.Infof("%s CREATED", archiveFullname)
	}

	if req.Delete && files.PayloadPath != "" {
		// Reclaim space: the payload goes, the label stays so catalog
		// queries keep working. A failed delete is reported but the
		// derived file stands.
		if err := helpers.DeleteDataFile(files.PayloadPath); err != nil {
			if e.logger != nil {
				e.logger.Warnf("Could not delete payload %s: %v", files.PayloadPath, err)
			}
		} else {
			if e.metrics != nil {
				e.metrics.PayloadsDeleted.Inc()
			}
			if e.logger != nil {
				e.logger.Infof("%s DELETED", files.PayloadPath)
			}
		}
	}

	return archiveFullname, "created", nil
}

// LoadAncillaryRecord reads back a derived ancillary file.
func LoadAncillaryRecord(path string) (*models.AncillaryRecord, error) {
	return loadDerived[models.AncillaryRecord](path)
}

// LoadSurfaceTable reads back a derived surface table file.
func LoadSurfaceTable(path string) (*models.SurfaceTable, error) {
	return loadDerived[models.SurfaceTable](path)
}

func loadDerived[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading derived file %s: %w", path, err)
	}

	out := new(T)
	if err := helpers.DecodeBSON(data, out); err != nil {
		return nil, fmt.Errorf("derived file %s: %w", path, err)
	}
	return out, nil
}
