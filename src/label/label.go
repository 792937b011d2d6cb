package label

// This file contains the label decoder for the instrument's text metadata
// files. A label is a stream of KEY = VALUE statements; values are typed
// by their syntactic form. Statements whose key starts with '^' are
// pointer statements locating an object inside the companion binary
// payload file as (byte offset, item count, item bytes). OBJECT groups
// nest and their fields are flattened under dotted key prefixes.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"lrstool/src/helpers"
)

// Kind discriminates the typed forms a label value can take.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindPointer
)

// Pointer locates one object inside the companion payload file.
type Pointer struct {
	// Offset is the byte offset of the object's first item.
	Offset int64

	// Items is the number of items in the object.
	Items int64

	// ItemBytes is the width of a single item in bytes.
	ItemBytes int64
}

// End returns the first byte past the object.
func (p Pointer) End() int64 {
	return p.Offset + p.Items*p.ItemBytes
}

// Value is one typed label field.
type Value struct {
	Kind    Kind
	Str     string
	Int     int64
	Float   float64
	Unit    string
	Pointer Pointer
}

// Record is the decoded form of one label file. It is immutable once
// parsed.
type Record struct {
	Path   string
	fields map[string]Value
}

// PayloadObjects lists the pointer fields every product of this
// instrument declares, in payload byte order. The '^' prefix identifies
// a pointer statement in the label text.
var PayloadObjects = []string{
	"^OBSERVATION_TIME",
	"^DELAY",
	"^START_STEP",
	"^SUB_SPACECRAFT_LATITUDE",
	"^SUB_SPACECRAFT_LONGITUDE",
	"^SPACECRAFT_ALTITUDE",
	"^DISTANCE_TO_RANGE0",
	"^TEMPERATURE_INDEX",
	"^IMAGE",
}

// requiredFields is the identification field set a label must carry to
// be usable by the track loader and catalog.
var requiredFields = []string{
	"PRODUCT_ID",
	"DATA_SET_ID",
	"START_TIME",
	"STOP_TIME",
	"SPACECRAFT_CLOCK_START_COUNT",
	"SPACECRAFT_CLOCK_STOP_COUNT",
	"START_SUB_SPACECRAFT_LATITUDE",
	"STOP_SUB_SPACECRAFT_LATITUDE",
	"START_SUB_SPACECRAFT_LONGITUDE",
	"STOP_SUB_SPACECRAFT_LONGITUDE",
	"IMAGE_LINES",
	"IMAGE_LINE_SAMPLES",
	"SAMPLE_BITS",
	"SAMPLE_TYPE",
	"SAMPLE_INTERVAL",
}

// expectedUnits is the unit schema for this instrument. A field that
// declares a unit must declare this one.
var expectedUnits = map[string]string{
	"START_SUB_SPACECRAFT_LATITUDE":  "deg",
	"STOP_SUB_SPACECRAFT_LATITUDE":   "deg",
	"START_SUB_SPACECRAFT_LONGITUDE": "deg",
	"STOP_SUB_SPACECRAFT_LONGITUDE":  "deg",
	"SAMPLE_INTERVAL":                "us",
	"^DELAY":                         "us",
	"^SUB_SPACECRAFT_LATITUDE":       "deg",
	"^SUB_SPACECRAFT_LONGITUDE":      "deg",
	"^SPACECRAFT_ALTITUDE":           "km",
	"^DISTANCE_TO_RANGE0":            "km",
}

var (
	unitSuffixRegex = regexp.MustCompile(`^(.*?)\s*<([^<>]+)>$`)
	pointerRegex    = regexp.MustCompile(`^\(([^)]*)\)$`)
	commentRegex    = regexp.MustCompile(`/\*.*?\*/`)
	coeffRegex      = regexp.MustCompile(`P(max|min)\s*=\s*(-?[0-9]+(?:\.[0-9]+)?)`)
)

// ParseFile decodes the label file at the given path.
func ParseFile(path string) (*Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening label file %s: %w", path, err)
	}
	defer file.Close()
	return Parse(file, path)
}

// Parse decodes a label statement stream. The path is only used in error
// messages.
func Parse(r io.Reader, path string) (*Record, error) {
	record := &Record{
		Path:   path,
		fields: make(map[string]Value),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	var groups []string
	for scanner.Scan() {
		lineNo++
		line := commentRegex.ReplaceAllString(scanner.Text(), "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "END" {
			break
		}
		if line == "END_OBJECT" || strings.HasPrefix(line, "END_OBJECT ") ||
			strings.HasPrefix(line, "END_OBJECT=") {
			if len(groups) == 0 {
				return nil, &MalformedLabelError{Path: path, Line: lineNo,
					Reason: "END_OBJECT without a matching OBJECT"}
			}
			groups = groups[:len(groups)-1]
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, &MalformedLabelError{Path: path, Line: lineNo,
				Reason: fmt.Sprintf("statement has no '=': %q", line)}
		}
		key := strings.TrimSpace(line[:eq])
		rawValue := strings.TrimSpace(line[eq+1:])
		if key == "" {
			return nil, &MalformedLabelError{Path: path, Line: lineNo,
				Reason: "statement has an empty key"}
		}

		// Group statements nest; fields inside a group are flattened
		// under a dotted prefix.
		if key == "OBJECT" {
			if rawValue == "" {
				return nil, &MalformedLabelError{Path: path, Line: lineNo,
					Reason: "OBJECT statement has no group name"}
			}
			groups = append(groups, helpers.StripQuotes(rawValue))
			continue
		}
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}

		// A quoted value may continue onto following lines until the
		// closing quote.
		if strings.HasPrefix(rawValue, `"`) && strings.Count(rawValue, `"`) < 2 {
			for scanner.Scan() {
				lineNo++
				rawValue += " " + strings.TrimSpace(scanner.Text())
				if strings.Count(rawValue, `"`) >= 2 {
					break
				}
			}
		}

		value, err := parseValue(rawValue)
		if err != nil {
			return nil, &MalformedLabelError{Path: path, Line: lineNo,
				Reason: fmt.Sprintf("field %s: %s", key, err)}
		}
		if strings.HasPrefix(key, "^") && value.Kind != KindPointer {
			return nil, &MalformedLabelError{Path: path, Line: lineNo,
				Reason: fmt.Sprintf("pointer statement %s has non-pointer value %q", key, rawValue)}
		}
		record.fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading label file %s: %w", path, err)
	}
	if len(groups) > 0 {
		return nil, &MalformedLabelError{Path: path,
			Reason: fmt.Sprintf("unclosed OBJECT group %s", strings.Join(groups, "."))}
	}

	if err := record.validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// parseValue types a raw value string by its syntactic form.
func parseValue(raw string) (Value, error) {
	if raw == "" {
		return Value{}, fmt.Errorf("empty value")
	}

	// Split off a trailing <unit> token, if any
	unit := ""
	if m := unitSuffixRegex.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
		unit = m[2]
	}

	if m := pointerRegex.FindStringSubmatch(raw); m != nil {
		parts := strings.Split(m[1], ",")
		if len(parts) != 3 {
			return Value{}, fmt.Errorf("pointer value needs (offset, items, item bytes), got %q", raw)
		}
		nums := make([]int64, 3)
		for i, part := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("pointer component %q is not an integer", strings.TrimSpace(part))
			}
			nums[i] = n
		}
		if nums[0] < 0 || nums[1] <= 0 || nums[2] <= 0 {
			return Value{}, fmt.Errorf("pointer value %q is out of range", raw)
		}
		return Value{
			Kind:    KindPointer,
			Unit:    unit,
			Pointer: Pointer{Offset: nums[0], Items: nums[1], ItemBytes: nums[2]},
		}, nil
	}

	if strings.HasPrefix(raw, `"`) {
		return Value{Kind: KindString, Unit: unit, Str: helpers.StripQuotes(raw)}, nil
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Value{Kind: KindInt, Unit: unit, Int: n, Float: float64(n)}, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Value{Kind: KindFloat, Unit: unit, Float: f}, nil
	}

	// Bare word (PDS3, MOON, timestamps, ...)
	return Value{Kind: KindString, Unit: unit, Str: raw}, nil
}

// validate checks the required field set and the unit schema.
func (r *Record) validate() error {
	for _, name := range requiredFields {
		if _, ok := r.fields[name]; !ok {
			return &MalformedLabelError{Path: r.Path,
				Reason: fmt.Sprintf("required field %s is missing", name)}
		}
	}
	for _, name := range PayloadObjects {
		value, ok := r.fields[name]
		if !ok {
			return &MalformedLabelError{Path: r.Path,
				Reason: fmt.Sprintf("required pointer %s is missing", name)}
		}
		if value.Kind != KindPointer {
			return &MalformedLabelError{Path: r.Path,
				Reason: fmt.Sprintf("%s is not a pointer", name)}
		}
	}
	for name, want := range expectedUnits {
		value, ok := r.fields[name]
		if !ok || value.Unit == "" {
			continue
		}
		if value.Unit != want {
			return &UnitMismatchError{Path: r.Path, Field: name, Got: value.Unit, Want: want}
		}
	}
	return nil
}

// Get returns a field by name.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Str returns a string field by name.
func (r *Record) Str(name string) (string, error) {
	v, ok := r.fields[name]
	if !ok {
		return "", fmt.Errorf("label %s: no field %s", r.Path, name)
	}
	if v.Kind != KindString {
		return "", fmt.Errorf("label %s: field %s is not a string", r.Path, name)
	}
	return v.Str, nil
}

// Int returns an integer field by name.
func (r *Record) Int(name string) (int64, error) {
	v, ok := r.fields[name]
	if !ok {
		return 0, fmt.Errorf("label %s: no field %s", r.Path, name)
	}
	if v.Kind != KindInt {
		return 0, fmt.Errorf("label %s: field %s is not an integer", r.Path, name)
	}
	return v.Int, nil
}

// Float returns a numeric field by name. Integer fields convert.
func (r *Record) Float(name string) (float64, error) {
	v, ok := r.fields[name]
	if !ok {
		return 0, fmt.Errorf("label %s: no field %s", r.Path, name)
	}
	if v.Kind != KindFloat && v.Kind != KindInt {
		return 0, fmt.Errorf("label %s: field %s is not numeric", r.Path, name)
	}
	return v.Float, nil
}

// GetPointer returns a pointer field by name. The leading '^' may be
// omitted.
func (r *Record) GetPointer(name string) (Pointer, error) {
	if !strings.HasPrefix(name, "^") {
		name = "^" + name
	}
	v, ok := r.fields[name]
	if !ok {
		return Pointer{}, fmt.Errorf("label %s: no pointer %s", r.Path, name)
	}
	if v.Kind != KindPointer {
		return Pointer{}, fmt.Errorf("label %s: field %s is not a pointer", r.Path, name)
	}
	return v.Pointer, nil
}

// ConversionCoefficients extracts the Pmax/Pmin signal conversion
// coefficients [dB] from the label's NOTE field.
func (r *Record) ConversionCoefficients() (pmax, pmin float64, err error) {
	note, ok := r.fields["NOTE"]
	if !ok {
		return 0, 0, fmt.Errorf("label %s: no NOTE field with conversion coefficients", r.Path)
	}
	var haveMax, haveMin bool
	for _, m := range coeffRegex.FindAllStringSubmatch(note.Str, -1) {
		f, perr := strconv.ParseFloat(m[2], 64)
		if perr != nil {
			continue
		}
		switch m[1] {
		case "max":
			pmax, haveMax = f, true
		case "min":
			pmin, haveMin = f, true
		}
	}
	if !haveMax || !haveMin {
		return 0, 0, fmt.Errorf("label %s: NOTE field has no Pmax/Pmin coefficients", r.Path)
	}
	return pmax, pmin, nil
}

// MaxPayloadEnd returns the largest byte range end implied by the
// label's pointer statements. The companion payload file must be at
// least this large.
func (r *Record) MaxPayloadEnd() int64 {
	var end int64
	for _, v := range r.fields {
		if v.Kind == KindPointer && v.Pointer.End() > end {
			end = v.Pointer.End()
		}
	}
	return end
}

// Encode re-emits the record as label text. Parsing the output yields a
// record equal to this one, so every modeled field round-trips.
func (r *Record) Encode() string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		v := r.fields[name]
		var raw string
		switch v.Kind {
		case KindPointer:
			raw = fmt.Sprintf("(%d, %d, %d)", v.Pointer.Offset, v.Pointer.Items, v.Pointer.ItemBytes)
		case KindInt:
			raw = strconv.FormatInt(v.Int, 10)
		case KindFloat:
			raw = strconv.FormatFloat(v.Float, 'f', -1, 64)
		default:
			if needsQuotes(v.Str) {
				raw = `"` + v.Str + `"`
			} else {
				raw = v.Str
			}
		}
		if v.Unit != "" {
			raw += " <" + v.Unit + ">"
		}
		fmt.Fprintf(&sb, "%-30s = %s\n", name, raw)
	}
	sb.WriteString("END\n")
	return sb.String()
}

// needsQuotes reports whether a string value would not survive a
// round-trip as a bare word.
func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	if strings.ContainsAny(s, " \t=<>(),") {
		return true
	}
	// A bare word that parses as a number must be quoted to keep its kind
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}
