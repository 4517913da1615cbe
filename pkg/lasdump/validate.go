package lasdump

import (
	"fmt"

	"github.com/dyuri/lasdump/internal/binary"
	"github.com/elliotwutingfeng/asciiset"
)

// ValidationError represents a validation issue found in a LAS header
type ValidationError struct {
	Field   string // Field name or location
	Message string // Error description
	Level   string // "error" or "warning"
}

func (v ValidationError) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// printable holds the characters allowed in header text fields
var printable asciiset.ASCIISet

func init() {
	chars := make([]byte, 0, 0x7f-0x20)
	for c := byte(0x20); c < 0x7f; c++ {
		chars = append(chars, c)
	}
	printable, _ = asciiset.MakeASCIISet(string(chars))
}

// Validate checks a decoded header for semantic problems. size is the
// number of bytes available in the file, or -1 when unknown.
//
// Returns a list of validation errors and warnings. An empty list means
// the header is consistent.
func Validate(h *Header, size int64) []ValidationError {
	var issues []ValidationError
	errorf := func(field, format string, args ...interface{}) {
		issues = append(issues, ValidationError{field, fmt.Sprintf(format, args...), LevelError})
	}
	warnf := func(field, format string, args ...interface{}) {
		issues = append(issues, ValidationError{field, fmt.Sprintf(format, args...), LevelWarning})
	}

	// Scale factors
	for _, s := range []struct {
		name  string
		value float64
	}{{"x_scale", h.XScale}, {"y_scale", h.YScale}, {"z_scale", h.ZScale}} {
		if !(s.value > 0) {
			errorf(s.name, "scale factor must be positive, got %g", s.value)
		}
	}

	if h.OffsetToPoints < uint32(h.HeaderSize) {
		errorf("offset_to_point_data", "points start at %d, inside the %d byte header", h.OffsetToPoints, h.HeaderSize)
	}

	minLen, err := binary.MinRecordLength(h.PointFormat)
	if err != nil {
		errorf("point_data_record_format", "unsupported point format %d", h.PointFormat)
	} else if int(h.PointRecordLength) < minLen {
		errorf("point_data_record_length", "%d bytes is below the %d bytes of point format %d", h.PointRecordLength, minLen, h.PointFormat)
	}

	// Text fields
	for _, f := range []struct{ name, value string }{
		{"system_identifier", h.SystemID},
		{"generating_software", h.GeneratingSoftware},
	} {
		if !isPrintable(f.value) {
			warnf(f.name, "contains non-printable or non-ASCII characters: %q", f.value)
		}
	}

	// Bounding box
	for _, b := range []struct {
		axis     string
		min, max float64
	}{{"x", h.MinX, h.MaxX}, {"y", h.MinY, h.MaxY}, {"z", h.MinZ, h.MaxZ}} {
		if b.min > b.max {
			warnf("min_"+b.axis, "min %g is greater than max %g", b.min, b.max)
		}
	}

	if h.AtLeast(1, 4) && h.LegacyPointCount != 0 && uint64(h.LegacyPointCount) != h.PointCount {
		warnf("legacy_number_of_point_records", "legacy count %d disagrees with 64-bit count %d", h.LegacyPointCount, h.PointCount)
	}
	if h.PointFormat > 5 && h.LegacyPointCount != 0 {
		warnf("legacy_number_of_point_records", "should be 0 for point format %d, got %d", h.PointFormat, h.LegacyPointCount)
	}

	if size >= 0 && h.PointRecordLength > 0 {
		// Compared in records so a huge count cannot overflow
		var fits uint64
		if uint64(size) > uint64(h.OffsetToPoints) {
			fits = (uint64(size) - uint64(h.OffsetToPoints)) / uint64(h.PointRecordLength)
		}
		if fits < h.PointCount {
			warnf("number_of_point_records", "%d points declared, file has room for %d", h.PointCount, fits)
		}
	}

	return issues
}

func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if !printable.Contains(s[i]) {
			return false
		}
	}
	return true
}

// HasErrors reports whether any issue is at error level
func HasErrors(issues []ValidationError) bool {
	for _, v := range issues {
		if v.Level == LevelError {
			return true
		}
	}
	return false
}
