package text

import (
	"fmt"
	"strings"

	"github.com/dyuri/lasdump/internal/model"
)

// Field names a column of the point dump
type Field string

const (
	FieldX                Field = "x"
	FieldY                Field = "y"
	FieldZ                Field = "z"
	FieldIntensity        Field = "intensity"
	FieldReturnNumber     Field = "return_number"
	FieldNumberOfReturns  Field = "number_of_returns"
	FieldScanDirection    Field = "scan_direction"
	FieldEdgeOfFlightLine Field = "edge_of_flight_line"
	FieldClassification   Field = "classification"
	FieldScanAngle        Field = "scan_angle"
	FieldUserData         Field = "user_data"
	FieldPointSourceID    Field = "point_source_id"
	FieldGPSTime          Field = "gps_time"
	FieldRed              Field = "red"
	FieldGreen            Field = "green"
	FieldBlue             Field = "blue"
	FieldNIR              Field = "nir"
)

// AllFields lists every known field in canonical order
var AllFields = []Field{
	FieldX, FieldY, FieldZ,
	FieldIntensity,
	FieldReturnNumber, FieldNumberOfReturns,
	FieldScanDirection, FieldEdgeOfFlightLine,
	FieldClassification,
	FieldScanAngle,
	FieldUserData,
	FieldPointSourceID,
	FieldGPSTime,
	FieldRed, FieldGreen, FieldBlue,
	FieldNIR,
}

// DefaultFields is the column set used when none is requested
var DefaultFields = []Field{FieldX, FieldY, FieldZ}

// float reports whether the field is rendered as a floating point number
func (f Field) float() bool {
	switch f {
	case FieldX, FieldY, FieldZ, FieldGPSTime, FieldScanAngle:
		return true
	}
	return false
}

func (f Field) known() bool {
	for _, k := range AllFields {
		if k == f {
			return true
		}
	}
	return false
}

// ParseFields parses a comma or space separated field list.
// "all" selects every field; an empty list selects DefaultFields.
func ParseFields(s string) ([]Field, error) {
	names := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(names) == 0 {
		return DefaultFields, nil
	}
	if len(names) == 1 && names[0] == "all" {
		return AllFields, nil
	}

	fields := make([]Field, 0, len(names))
	for _, n := range names {
		f := Field(strings.ToLower(strings.TrimSpace(n)))
		if !f.known() {
			return nil, fmt.Errorf("unknown field %q", n)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Value returns the numeric value of a field for p. Fields the point's
// format does not carry are 0.
func Value(p *model.Point, f Field) float64 {
	switch f {
	case FieldX:
		return p.X
	case FieldY:
		return p.Y
	case FieldZ:
		return p.Z
	case FieldIntensity:
		return float64(p.Intensity)
	case FieldReturnNumber:
		return float64(p.ReturnNumber)
	case FieldNumberOfReturns:
		return float64(p.NumberOfReturns)
	case FieldScanDirection:
		return boolValue(p.ScanDirectionFlag)
	case FieldEdgeOfFlightLine:
		return boolValue(p.EdgeOfFlightLine)
	case FieldClassification:
		return float64(p.Classification)
	case FieldScanAngle:
		return p.ScanAngleDegrees()
	case FieldUserData:
		return float64(p.UserData)
	case FieldPointSourceID:
		return float64(p.PointSourceID)
	case FieldGPSTime:
		return p.Extras.GPSTime
	case FieldRed:
		return float64(p.Extras.Color.R)
	case FieldGreen:
		return float64(p.Extras.Color.G)
	case FieldBlue:
		return float64(p.Extras.Color.B)
	case FieldNIR:
		return float64(p.Extras.NIR)
	}
	return 0
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// JoinFields renders a field list the way the dump comment header does
func JoinFields(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, " ")
}
