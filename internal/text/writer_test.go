package text

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/dyuri/lasdump/internal/model"
)

func TestWritePointDefault(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	p := model.Point{X: 1, Y: 2, Z: 3}
	if err := w.WritePoint(&p); err != nil {
		t.Fatalf("WritePoint failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if got := buf.String(); got != "1 2 3\n" {
		t.Errorf("output = %q, want %q", got, "1 2 3\n")
	}
}

func TestWritePointAllFields(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithFields(AllFields))

	p := model.Point{
		X: 0.1, Y: -2.5, Z: 1e-7,
		Intensity:         812,
		ReturnNumber:      2,
		NumberOfReturns:   3,
		ScanDirectionFlag: true,
		Classification:    6,
		ScanAngleRank:     -12,
		UserData:          9,
		PointSourceID:     4242,
		Extras: model.Extras{
			Kind:    model.ExtrasGPSColorNIR,
			GPSTime: 123456.789,
			Color:   model.Color{R: 1, G: 2, B: 65535},
			NIR:     400,
		},
	}
	if err := w.WritePoint(&p); err != nil {
		t.Fatalf("WritePoint failed: %v", err)
	}
	w.Flush()

	want := "0.1 -2.5 0.0000001 812 2 3 1 0 6 -12 9 4242 123456.789 1 2 65535 400\n"
	if got := buf.String(); got != want {
		t.Errorf("output =\n%q\nwant\n%q", got, want)
	}
}

// Fields a format does not carry render as 0
func TestWritePointAbsentExtras(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithFields([]Field{FieldGPSTime, FieldRed, FieldNIR}))

	p := model.Point{}
	w.WritePoint(&p)
	w.Flush()

	if got := buf.String(); got != "0 0 0\n" {
		t.Errorf("output = %q, want %q", got, "0 0 0\n")
	}
}

func TestWritePointExtendedScanAngle(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithFields([]Field{FieldScanAngle}), WithPrecision(3))

	p := model.Point{ScanAngle: -1500}
	w.WritePoint(&p)
	w.Flush()

	if got := buf.String(); got != "-9.000\n" {
		t.Errorf("output = %q, want %q", got, "-9.000\n")
	}
}

func TestWritePrecision(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithPrecision(2))

	p := model.Point{X: 1.005, Y: 2, Z: -0.125}
	w.WritePoint(&p)
	w.Flush()

	if got := buf.String(); got != "1.00 2.00 -0.12\n" && got != "1.01 2.00 -0.12\n" {
		t.Errorf("output = %q", got)
	}
}

func TestWritePreamble(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithFields([]Field{FieldX, FieldGPSTime}))

	h := &model.PublicHeader{
		VersionMajor: 1, VersionMinor: 4,
		PointFormat: 6, PointCount: 2,
		XScale: 0.01, YScale: 0.01, ZScale: 0.001,
	}
	if err := w.WritePreamble("cloud.las", h); err != nil {
		t.Fatalf("WritePreamble failed: %v", err)
	}
	w.Flush()

	out := buf.String()
	for _, want := range []string{
		"# lasdump cloud.las\n",
		"# version 1.4, point format 6, 2 points\n",
		"# fields: x gps_time\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("preamble missing %q:\n%s", want, out)
		}
	}
}

// Shortest formatting parses back to the identical float64
func TestWriteReadRoundTrip(t *testing.T) {
	points := []model.Point{
		{X: 0.1 + 0.2, Y: math.Nextafter(1, 2), Z: 300000.123456789, Intensity: 1},
		{X: -4321.9876543210987, Y: 1e15 + 0.5, Z: math.SmallestNonzeroFloat64, Intensity: 65535},
		{X: math.MaxFloat64, Y: -0.0, Z: 5e-324, Extras: model.Extras{GPSTime: 1.0 / 3}},
	}
	cloud := &model.PointCloud{Points: points}
	fields := []Field{FieldX, FieldY, FieldZ, FieldIntensity, FieldGPSTime}

	var buf bytes.Buffer
	w := NewWriter(&buf, WithFields(fields))
	w.WritePreamble("roundtrip.las", &model.PublicHeader{VersionMajor: 1, VersionMinor: 2})
	if err := w.Write(cloud); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	w.Flush()

	r := NewReader(&buf, nil)
	for i := range points {
		row, err := r.Next()
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		for j, f := range r.Fields() {
			if want := Value(&points[i], f); row[j] != want {
				t.Errorf("point %d %s = %v, want %v", i, f, row[j], want)
			}
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("trailing Next err = %v, want io.EOF", err)
	}
}
