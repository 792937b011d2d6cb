package track

// This file contains the storage engine that decodes a track's original
// label/payload pair into memory. The label is always parsed in full;
// the binary payload is memory mapped and only the objects the caller
// asks for are decoded, so lightweight ancillary reads never touch the
// radargram samples.

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"lrstool/src/label"
	"lrstool/src/models"
)

type TrackStorageEngine struct {
	logger *zap.SugaredLogger
}

type TrackStore interface {
	LoadAncillary(files models.TrackFiles) (*models.AncillaryRecord, error)
	LoadTrack(files models.TrackFiles) (*models.TrackData, error)
}

func NewTrackStore(logger *zap.SugaredLogger) *TrackStorageEngine {
	return &TrackStorageEngine{logger: logger}
}

// LoadAncillary decodes the per-trace ancillary vectors of a track
// without reading the radargram matrix.
func (t *TrackStorageEngine) LoadAncillary(files models.TrackFiles) (*models.AncillaryRecord, error) {
	data, err := t.load(files, false)
	if err != nil {
		return nil, err
	}
	return &data.AncillaryRecord, nil
}

// LoadTrack decodes a track in full, radargram matrix included.
func (t *TrackStorageEngine) LoadTrack(files models.TrackFiles) (*models.TrackData, error) {
	return t.load(files, true)
}

func (t *TrackStorageEngine) load(files models.TrackFiles, includeImage bool) (*models.TrackData, error) {
	record, err := label.ParseFile(files.LabelPath)
	if err != nil {
		return nil, err
	}

	traceCount, err := record.Int("IMAGE_LINES")
	if err != nil {
		return nil, err
	}
	lineSamples, err := record.Int("IMAGE_LINE_SAMPLES")
	if err != nil {
		return nil, err
	}
	if traceCount <= 0 || lineSamples <= 0 {
		return nil, &label.MalformedLabelError{Path: files.LabelPath,
			Reason: fmt.Sprintf("non-positive image dimensions %dx%d", traceCount, lineSamples)}
	}

	payloadFile, err := os.Open(files.PayloadPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPayloadMissing, files.PayloadPath)
		}
		return nil, fmt.Errorf("error opening payload file %s: %w", files.PayloadPath, err)
	}
	defer payloadFile.Close()

	info, err := payloadFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("error checking payload file %s: %w", files.PayloadPath, err)
	}
	if need := record.MaxPayloadEnd(); info.Size() < need {
		return nil, &PayloadSizeError{Path: files.PayloadPath, Have: info.Size(), Need: need}
	}

	// Map the payload instead of reading it; ancillary-only loads then
	// fault in a few pages rather than the whole radargram.
	data, err := unix.Mmap(int(payloadFile.Fd()), 0, int(info.Size()),
		syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("error memory mapping payload file %s: %w", files.PayloadPath, err)
	}
	defer unix.Munmap(data)

	out := &models.TrackData{}
	out.Product = files.Product
	out.Name = files.Name

	if out.SampleInterval, err = record.Float("SAMPLE_INTERVAL"); err != nil {
		return nil, err
	}
	if pmax, pmin, cerr := record.ConversionCoefficients(); cerr == nil {
		out.Pmax, out.Pmin = pmax, pmin
	} else if t.logger != nil {
		t.logger.Debugf("No conversion coefficients for %s %s: %v",
			files.Product, files.Name, cerr)
	}

	if out.ObservationTime, err = t.readStrings(record, "OBSERVATION_TIME", data, traceCount); err != nil {
		return nil, err
	}
	if out.Delay, err = t.readFloats(record, "DELAY", data, traceCount); err != nil {
		return nil, err
	}
	if out.StartStep, err = t.readInts(record, "START_STEP", data, traceCount); err != nil {
		return nil, err
	}
	if out.Latitude, err = t.readFloats(record, "SUB_SPACECRAFT_LATITUDE", data, traceCount); err != nil {
		return nil, err
	}
	if out.Longitude, err = t.readFloats(record, "SUB_SPACECRAFT_LONGITUDE", data, traceCount); err != nil {
		return nil, err
	}
	if out.Altitude, err = t.readFloats(record, "SPACECRAFT_ALTITUDE", data, traceCount); err != nil {
		return nil, err
	}
	if out.Range0, err = t.readFloats(record, "DISTANCE_TO_RANGE0", data, traceCount); err != nil {
		return nil, err
	}
	if out.TemperatureIndex, err = t.readInts(record, "TEMPERATURE_INDEX", data, traceCount); err != nil {
		return nil, err
	}

	if includeImage {
		if out.Image, err = t.readImage(record, data, traceCount, lineSamples); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// object fetches a pointer and checks its item count against the trace
// count the label declares.
func (t *TrackStorageEngine) object(record *label.Record, name string, traceCount int64) (label.Pointer, error) {
	p, err := record.GetPointer(name)
	if err != nil {
		return label.Pointer{}, err
	}
	if p.Items != traceCount {
		return label.Pointer{}, &label.MalformedLabelError{Path: record.Path,
			Reason: fmt.Sprintf("pointer ^%s has %d items, label declares %d traces",
				name, p.Items, traceCount)}
	}
	return p, nil
}

func (t *TrackStorageEngine) readStrings(record *label.Record, name string, data []byte, traceCount int64) ([]string, error) {
	p, err := t.object(record, name, traceCount)
	if err != nil {
		return nil, err
	}
	out := make([]string, p.Items)
	for i := int64(0); i < p.Items; i++ {
		item := data[p.Offset+i*p.ItemBytes : p.Offset+(i+1)*p.ItemBytes]
		out[i] = strings.TrimRight(string(item), " \x00")
	}
	return out, nil
}

func (t *TrackStorageEngine) readFloats(record *label.Record, name string, data []byte, traceCount int64) ([]float64, error) {
	p, err := t.object(record, name, traceCount)
	if err != nil {
		return nil, err
	}
	if p.ItemBytes != 8 {
		return nil, &label.MalformedLabelError{Path: record.Path,
			Reason: fmt.Sprintf("pointer ^%s has item size %d, expected 8-byte reals", name, p.ItemBytes)}
	}
	out := make([]float64, p.Items)
	for i := int64(0); i < p.Items; i++ {
		bits := binary.BigEndian.Uint64(data[p.Offset+i*8:])
		out[i] = math.Float64frombits(bits)
	}
	return out, nil
}

func (t *TrackStorageEngine) readInts(record *label.Record, name string, data []byte, traceCount int64) ([]int64, error) {
	p, err := t.object(record, name, traceCount)
	if err != nil {
		return nil, err
	}
	out := make([]int64, p.Items)
	for i := int64(0); i < p.Items; i++ {
		item := data[p.Offset+i*p.ItemBytes:]
		switch p.ItemBytes {
		case 2:
			out[i] = int64(int16(binary.BigEndian.Uint16(item)))
		case 4:
			out[i] = int64(int32(binary.BigEndian.Uint32(item)))
		case 8:
			out[i] = int64(binary.BigEndian.Uint64(item))
		default:
			return nil, &label.MalformedLabelError{Path: record.Path,
				Reason: fmt.Sprintf("pointer ^%s has unsupported integer item size %d", name, p.ItemBytes)}
		}
	}
	return out, nil
}

// readImage decodes the radargram matrix at the byte width and
// signedness the label declares. Raw sample values are kept as-is; any
// rescaling is the caller's concern.
func (t *TrackStorageEngine) readImage(record *label.Record, data []byte, traceCount, lineSamples int64) ([][]float64, error) {
	p, err := record.GetPointer("IMAGE")
	if err != nil {
		return nil, err
	}
	if p.Items != traceCount*lineSamples {
		return nil, &label.MalformedLabelError{Path: record.Path,
			Reason: fmt.Sprintf("pointer ^IMAGE has %d items, label declares %dx%d",
				p.Items, traceCount, lineSamples)}
	}
	sampleType, err := record.Str("SAMPLE_TYPE")
	if err != nil {
		return nil, err
	}
	sampleBits, err := record.Int("SAMPLE_BITS")
	if err != nil {
		return nil, err
	}
	if p.ItemBytes*8 != sampleBits {
		return nil, &label.MalformedLabelError{Path: record.Path,
			Reason: fmt.Sprintf("pointer ^IMAGE item size %d disagrees with SAMPLE_BITS %d",
				p.ItemBytes, sampleBits)}
	}

	var decode func(item []byte) float64
	switch {
	case sampleType == "UNSIGNED_INTEGER" && sampleBits == 8:
		decode = func(item []byte) float64 { return float64(item[0]) }
	case sampleType == "UNSIGNED_INTEGER" && sampleBits == 16:
		decode = func(item []byte) float64 { return float64(binary.BigEndian.Uint16(item)) }
	case sampleType == "IEEE_REAL" && sampleBits == 32:
		decode = func(item []byte) float64 {
			return float64(math.Float32frombits(binary.BigEndian.Uint32(item)))
		}
	default:
		return nil, &label.MalformedLabelError{Path: record.Path,
			Reason: fmt.Sprintf("unsupported sample encoding %s/%d", sampleType, sampleBits)}
	}

	image := make([][]float64, traceCount)
	for i := int64(0); i < traceCount; i++ {
		row := make([]float64, lineSamples)
		rowBase := p.Offset + i*lineSamples*p.ItemBytes
		for j := int64(0); j < lineSamples; j++ {
			row[j] = decode(data[rowBase+j*p.ItemBytes:])
		}
		image[i] = row
	}
	return image, nil
}
