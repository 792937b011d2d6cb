package catalog

// This file contains the archive catalog. It enumerates every
// (product, track) pair under the archive root by directory and
// file-name pattern alone, then caches a cheap label-derived summary
// per track so geographic and temporal queries never re-open files.
// The catalog is read-only with respect to the archive and is built
// once; Refresh rescans on demand.

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lrstool/src/label"
	"lrstool/src/models"
	"lrstool/src/settings"
)

// trackNameRegex extracts the 14-digit timestamp identifier from an
// archive file name, e.g. LRS_SAR05KM_20071221033918.lbl
var trackNameRegex = regexp.MustCompile(`(\d{14})`)

// middleNames maps a product directory name to the middle token of its
// track file names, following the archive naming convention.
var middleNames = map[string]string{
	"sln-l-lrs-5-sndr-ss-high-v2.0":        "SWH_RV20",
	"sln-l-lrs-5-sndr-ss-sar05-power-v1.0": "SAR05KM",
	"sln-l-lrs-5-sndr-ss-sar10-power-v1.0": "SAR10KM",
	"sln-l-lrs-5-sndr-ss-sar40-power-v1.0": "SAR40KM",
}

// FilenameRoot outputs the file name of a product track following the
// archive convention, without extension.
func FilenameRoot(product, name string) string {
	middle, ok := middleNames[product]
	if !ok {
		// Fall back on the processing-mode segment of the product name
		parts := strings.Split(product, "-")
		if len(parts) > 6 {
			middle = strings.ToUpper(parts[6]) + "KM"
		} else {
			middle = strings.ToUpper(product)
		}
	}
	return strings.Join([]string{"LRS", middle, name}, "_")
}

// DayDir returns the date directory a track's files live under.
func DayDir(name string) string {
	if len(name) < 8 {
		return name
	}
	return name[:8]
}

type CatalogEngine struct {
	args   *settings.Arguments
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	products []string
	entries  map[models.TrackID]*models.CatalogEntry
}

type Catalog interface {
	Products() []string
	Tracks(product string) ([]string, error)
	ProductMatch(pattern string) (string, error)
	Resolve(product, name string) (models.TrackFiles, error)
	Entry(product, name string) (*models.CatalogEntry, error)
	LatLim(product, name string) ([2]float64, error)
	LonLim(product, name string) ([2]float64, error)
	ClockLim(product, name string) ([2]float64, error)
	EpochLim(product, name string) ([2]float64, error)
	MatchingTrack(product1, name1, product2 string) (string, error)
	Refresh() error
}

// NewCatalog builds a catalog by scanning the archive root once.
func NewCatalog(args *settings.Arguments, logger *zap.SugaredLogger) (*CatalogEngine, error) {
	c := &CatalogEngine{
		args:   args,
		logger: logger,
	}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CatalogEngine) origPath() string {
	return filepath.Join(c.args.ArchiveRoot, c.args.OrigDirName)
}

func (c *CatalogEngine) xtraPath() string {
	return filepath.Join(c.args.ArchiveRoot, c.args.XtraDirName)
}

// Refresh rescans the archive root and rebuilds the index.
func (c *CatalogEngine) Refresh() error {
	products, err := c.indexProducts()
	if err != nil {
		return err
	}

	entries := make(map[models.TrackID]*models.CatalogEntry)
	for _, product := range products {
		if err := c.indexProduct(product, entries); err != nil {
			return err
		}
	}

	// Cheap per-track label read for the query limits
	for id, entry := range entries {
		if entry.Files.LabelPath == "" {
			continue
		}
		if err := c.readLimits(entry); err != nil {
			if c.logger != nil {
				c.logger.Warnf("Skipping limits for %s %s: %v", id.Product, id.Name, err)
			}
		}
	}

	c.mu.Lock()
	c.products = products
	c.entries = entries
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Infof("Catalog indexed %d products, %d tracks", len(products), len(entries))
	}
	return nil
}

// indexProducts lists product directory names found under the orig and
// xtra hierarchies.
func (c *CatalogEngine) indexProducts() ([]string, error) {
	seen := make(map[string]bool)

	origDirs, err := os.ReadDir(c.origPath())
	if err != nil {
		return nil, fmt.Errorf("error listing archive products in %s: %w", c.origPath(), err)
	}
	for _, d := range origDirs {
		if d.IsDir() {
			seen[d.Name()] = true
		}
	}

	// Derived-only products still count: their originals may have been
	// purged after derivation.
	kindDirs, err := os.ReadDir(c.xtraPath())
	if err == nil {
		for _, kind := range kindDirs {
			if !kind.IsDir() {
				continue
			}
			productDirs, err := os.ReadDir(filepath.Join(c.xtraPath(), kind.Name()))
			if err != nil {
				continue
			}
			for _, d := range productDirs {
				if d.IsDir() {
					seen[d.Name()] = true
				}
			}
		}
	}

	products := make([]string, 0, len(seen))
	for p := range seen {
		products = append(products, p)
	}
	sort.Strings(products)
	return products, nil
}

// indexProduct walks one product's orig and derived hierarchies and
// fills in catalog entries from file names alone.
func (c *CatalogEngine) indexProduct(product string, entries map[models.TrackID]*models.CatalogEntry) error {
	entryFor := func(name string) *models.CatalogEntry {
		id := models.TrackID{Product: product, Name: name}
		entry, ok := entries[id]
		if !ok {
			entry = &models.CatalogEntry{
				TrackID: id,
				Derived: make(map[string][]string),
			}
			entry.Files.TrackID = id
			entries[id] = entry
		}
		return entry
	}

	origFiles, err := filepath.Glob(filepath.Join(c.origPath(), product, "*", "data", "*.*"))
	if err != nil {
		return fmt.Errorf("error scanning product %s: %w", product, err)
	}
	for _, file := range origFiles {
		name := trackNameRegex.FindString(filepath.Base(file))
		if name == "" {
			continue
		}
		entry := entryFor(name)
		switch strings.ToLower(filepath.Ext(file)) {
		case ".lbl":
			entry.Files.LabelPath = file
		case ".img":
			entry.Files.PayloadPath = file
		}
	}

	kindDirs, err := os.ReadDir(c.xtraPath())
	if err != nil {
		return nil
	}
	for _, kind := range kindDirs {
		if !kind.IsDir() {
			continue
		}
		derivedFiles, err := filepath.Glob(filepath.Join(c.xtraPath(), kind.Name(), product, "*", "data", "*.*"))
		if err != nil {
			continue
		}
		for _, file := range derivedFiles {
			name := trackNameRegex.FindString(filepath.Base(file))
			if name == "" {
				continue
			}
			entry := entryFor(name)
			entry.Derived[kind.Name()] = append(entry.Derived[kind.Name()], file)
		}
	}
	return nil
}

// readLimits extracts the latitude/longitude/clock/epoch extents from a
// track's label. Only the label is read, never the payload.
func (c *CatalogEngine) readLimits(entry *models.CatalogEntry) error {
	record, err := label.ParseFile(entry.Files.LabelPath)
	if err != nil {
		return err
	}

	if entry.StartLat, err = record.Float("START_SUB_SPACECRAFT_LATITUDE"); err != nil {
		return err
	}
	if entry.StopLat, err = record.Float("STOP_SUB_SPACECRAFT_LATITUDE"); err != nil {
		return err
	}
	if entry.StartLon, err = record.Float("START_SUB_SPACECRAFT_LONGITUDE"); err != nil {
		return err
	}
	if entry.StopLon, err = record.Float("STOP_SUB_SPACECRAFT_LONGITUDE"); err != nil {
		return err
	}
	entry.LatLim = sortedLim(entry.StartLat, entry.StopLat)
	entry.LonLim = sortedLim(entry.StartLon, entry.StopLon)

	clockStart, err := record.Float("SPACECRAFT_CLOCK_START_COUNT")
	if err != nil {
		return err
	}
	clockStop, err := record.Float("SPACECRAFT_CLOCK_STOP_COUNT")
	if err != nil {
		return err
	}
	entry.ClockLim = sortedLim(clockStart, clockStop)

	startTime, err := record.Str("START_TIME")
	if err != nil {
		return err
	}
	stopTime, err := record.Str("STOP_TIME")
	if err != nil {
		return err
	}
	epoch0, err := parseEpoch(startTime)
	if err != nil {
		return fmt.Errorf("label %s: bad START_TIME: %w", entry.Files.LabelPath, err)
	}
	epoch1, err := parseEpoch(stopTime)
	if err != nil {
		return fmt.Errorf("label %s: bad STOP_TIME: %w", entry.Files.LabelPath, err)
	}
	entry.EpochLim = sortedLim(epoch0, epoch1)
	entry.HasLimits = true
	return nil
}

func sortedLim(a, b float64) [2]float64 {
	if a <= b {
		return [2]float64{a, b}
	}
	return [2]float64{b, a}
}

func parseEpoch(value string) (float64, error) {
	t, err := time.Parse("2006-01-02T15:04:05", value)
	if err != nil {
		return 0, err
	}
	return float64(t.UTC().Unix()), nil
}

// Products lists the known product directory names.
func (c *CatalogEngine) Products() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.products))
	copy(out, c.products)
	return out
}

// Tracks lists the track names indexed for a product.
func (c *CatalogEngine) Tracks(product string) ([]string, error) {
	product, err := c.ProductMatch(product)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for id := range c.entries {
		if id.Product == product {
			names = append(names, id.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ProductMatch returns the full name of a product from a substring.
// Exact matches win; otherwise the substring must match exactly one
// known product.
func (c *CatalogEngine) ProductMatch(pattern string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []string
	for _, product := range c.products {
		if product == pattern {
			return product, nil
		}
		if strings.Contains(product, pattern) {
			matches = append(matches, product)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("product %q: %w", pattern, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Pattern: pattern, Matches: matches}
	}
}

// Resolve maps a (product, track) pair to its original file paths. The
// product may be a substring; the track name must match exactly.
func (c *CatalogEngine) Resolve(product, name string) (models.TrackFiles, error) {
	entry, err := c.Entry(product, name)
	if err != nil {
		return models.TrackFiles{}, err
	}
	if entry.Files.LabelPath == "" {
		return models.TrackFiles{}, fmt.Errorf("track %s %s has no label file: %w",
			entry.Product, name, ErrNotFound)
	}
	return entry.Files, nil
}

// Entry returns the catalog entry for a (product, track) pair.
func (c *CatalogEngine) Entry(product, name string) (*models.CatalogEntry, error) {
	product, err := c.ProductMatch(product)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[models.TrackID{Product: product, Name: name}]
	if !ok {
		return nil, fmt.Errorf("track %s %s: %w", product, name, ErrNotFound)
	}
	return entry, nil
}

// Entries returns every catalog entry, in no particular order.
func (c *CatalogEngine) Entries() []*models.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	return out
}

// LatLim returns the bounding sub-spacecraft latitude range of a track.
func (c *CatalogEngine) LatLim(product, name string) ([2]float64, error) {
	entry, err := c.Entry(product, name)
	if err != nil {
		return [2]float64{}, err
	}
	if !entry.HasLimits {
		return [2]float64{}, fmt.Errorf("track %s %s has no readable label summary: %w",
			entry.Product, name, ErrNotFound)
	}
	return entry.LatLim, nil
}

// LonLim returns the bounding sub-spacecraft longitude range of a track.
func (c *CatalogEngine) LonLim(product, name string) ([2]float64, error) {
	entry, err := c.Entry(product, name)
	if err != nil {
		return [2]float64{}, err
	}
	if !entry.HasLimits {
		return [2]float64{}, fmt.Errorf("track %s %s has no readable label summary: %w",
			entry.Product, name, ErrNotFound)
	}
	return entry.LonLim, nil
}

// ClockLim returns the spacecraft clock count range of a track.
func (c *CatalogEngine) ClockLim(product, name string) ([2]float64, error) {
	entry, err := c.Entry(product, name)
	if err != nil {
		return [2]float64{}, err
	}
	if !entry.HasLimits {
		return [2]float64{}, fmt.Errorf("track %s %s has no readable label summary: %w",
			entry.Product, name, ErrNotFound)
	}
	return entry.ClockLim, nil
}

// EpochLim returns the observation epoch range of a track as Unix
// seconds.
func (c *CatalogEngine) EpochLim(product, name string) ([2]float64, error) {
	entry, err := c.Entry(product, name)
	if err != nil {
		return [2]float64{}, err
	}
	if !entry.HasLimits {
		return [2]float64{}, fmt.Errorf("track %s %s has no readable label summary: %w",
			entry.Product, name, ErrNotFound)
	}
	return entry.EpochLim, nil
}

// MatchingTrack gives the name of a track from product2 whose
// observation epoch overlaps the given track from product1.
func (c *CatalogEngine) MatchingTrack(product1, name1, product2 string) (string, error) {
	lim1, err := c.EpochLim(product1, name1)
	if err != nil {
		return "", err
	}
	product2, err = c.ProductMatch(product2)
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for id := range c.entries {
		if id.Product == product2 {
			names = append(names, id.Name)
		}
	}
	sort.Strings(names)
	for _, name2 := range names {
		lim2 := c.entries[models.TrackID{Product: product2, Name: name2}].EpochLim
		if (lim2[0] <= lim1[0] && lim1[0] <= lim2[1]) ||
			(lim2[0] <= lim1[1] && lim1[1] <= lim2[1]) {
			return name2, nil
		}
	}
	return "", fmt.Errorf("no track of %s overlaps %s %s: %w", product2, product1, name1, ErrNotFound)
}
