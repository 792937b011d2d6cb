package geo

// This file contains the geographic query engine. The catalog only
// stores each track's start/stop extrema, not the full ground track, so
// the engine is deliberately approximate: the latitude-band test trades
// false positives for never opening a file. When a sampling distance is
// given, the test is refined by walking the great circle between the
// track's end points; without one the latitude-only candidate set is
// returned and stricter filtering is the caller's business.

import (
	"math"
	"time"

	"go.uber.org/zap"

	"lrstool/src/catalog"
	"lrstool/src/metrics"
	"lrstool/src/models"
)

// MoonRadiusMeters is the lunar radius used for all distance
// calculations along ground tracks.
const MoonRadiusMeters = 1737400.0

// LatLon is a point on the ground, in degrees. Longitudes are kept in
// [0, 360) as the archive labels do.
type LatLon struct {
	Lat float64
	Lon float64
}

type QueryEngine struct {
	catalog *catalog.CatalogEngine
	metrics *metrics.Collector
	logger  *zap.SugaredLogger
}

func NewQueryEngine(cat *catalog.CatalogEngine, collector *metrics.Collector,
	logger *zap.SugaredLogger) *QueryEngine {
	return &QueryEngine{catalog: cat, metrics: collector, logger: logger}
}

// TracksIntersectingBox returns the identifiers of tracks crossing a
// box bounded by latitudes and longitudes. samplingMeters controls the
// spacing of points interpolated along each candidate track's great
// circle; when it is zero or negative only the latitude bounding test
// is applied and the result may contain longitude false positives. A
// track whose true path crosses the box is never excluded, since the
// label's bounding range is a superset of the path's latitude extent.
func (q *QueryEngine) TracksIntersectingBox(boxLats, boxLons [2]float64, samplingMeters float64) []models.TrackID {
	started := time.Now()

	latLo, latHi := math.Min(boxLats[0], boxLats[1]), math.Max(boxLats[0], boxLats[1])
	lon0, lon1 := normalizeLon(boxLons[0]), normalizeLon(boxLons[1])
	lonLo, lonHi := math.Min(lon0, lon1), math.Max(lon0, lon1)

	var out []models.TrackID
	for _, entry := range q.catalog.Entries() {
		if !entry.HasLimits {
			continue // no label was readable for this track
		}
		// Cheap reject on the latitude band, O(1) per track
		if entry.LatLim[1] < latLo || entry.LatLim[0] > latHi {
			continue
		}
		if samplingMeters > 0 {
			points := IntermediateLatLon(
				LatLon{Lat: entry.StartLat, Lon: entry.StartLon},
				LatLon{Lat: entry.StopLat, Lon: entry.StopLon},
				samplingMeters)
			inBox := false
			for _, p := range points {
				if p.Lat >= latLo && p.Lat <= latHi && p.Lon >= lonLo && p.Lon <= lonHi {
					inBox = true
					break
				}
			}
			if !inBox {
				continue
			}
		}
		out = append(out, entry.TrackID)
	}

	if q.metrics != nil {
		q.metrics.BoxQueryDuration.Observe(time.Since(started).Seconds())
		q.metrics.BoxQueryCandidates.Observe(float64(len(out)))
	}
	if q.logger != nil {
		q.logger.Debugf("Box query lat=%v lon=%v sampling=%.0fm: %d candidates",
			boxLats, boxLons, samplingMeters, len(out))
	}
	return out
}

// IntermediateLatLon provides points along the great circle between two
// end points, spaced samplingMeters apart, end points included.
func IntermediateLatLon(start, stop LatLon, samplingMeters float64) []LatLon {
	a := unitVector(start)
	b := unitVector(stop)

	// Robust angular distance between the end points
	cross := a.cross(b)
	angle := math.Atan2(cross.norm(), a.dot(b))
	distMeters := angle * MoonRadiusMeters

	points := []LatLon{normalized(start)}
	if distMeters > samplingMeters && angle > 0 {
		sinAngle := math.Sin(angle)
		npts := int(distMeters / samplingMeters)
		for k := 1; k <= npts; k++ {
			f := float64(k) * samplingMeters / distMeters
			if f >= 1 {
				break
			}
			// Spherical interpolation between the end point vectors
			wa := math.Sin((1-f)*angle) / sinAngle
			wb := math.Sin(f*angle) / sinAngle
			p := vec3{
				x: wa*a.x + wb*b.x,
				y: wa*a.y + wb*b.y,
				z: wa*a.z + wb*b.z,
			}
			points = append(points, p.latLon())
		}
	}
	return append(points, normalized(stop))
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

func normalized(p LatLon) LatLon {
	return LatLon{Lat: p.Lat, Lon: normalizeLon(p.Lon)}
}

// vec3 is a unit-sphere vector used for great-circle interpolation.
type vec3 struct {
	x, y, z float64
}

func unitVector(p LatLon) vec3 {
	latRad := p.Lat * math.Pi / 180
	lonRad := p.Lon * math.Pi / 180
	return vec3{
		x: math.Cos(latRad) * math.Cos(lonRad),
		y: math.Cos(latRad) * math.Sin(lonRad),
		z: math.Sin(latRad),
	}
}

func (v vec3) dot(o vec3) float64 {
	return v.x*o.x + v.y*o.y + v.z*o.z
}

func (v vec3) cross(o vec3) vec3 {
	return vec3{
		x: v.y*o.z - v.z*o.y,
		y: v.z*o.x - v.x*o.z,
		z: v.x*o.y - v.y*o.x,
	}
}

func (v vec3) norm() float64 {
	return math.Sqrt(v.dot(v))
}

func (v vec3) latLon() LatLon {
	lat := math.Asin(v.z/v.norm()) * 180 / math.Pi
	lon := math.Atan2(v.y, v.x) * 180 / math.Pi
	return LatLon{Lat: lat, Lon: normalizeLon(lon)}
}
