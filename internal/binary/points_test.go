package binary

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dyuri/lasdump/internal/lastest"
	"github.com/dyuri/lasdump/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// decoderFor decodes the header of img and returns a point decoder over it
func decoderFor(t *testing.T, img []byte) *PointDecoder {
	t.Helper()
	h, err := decodeHeaderBytes(t, img)
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	d, err := NewPointDecoder(img, h)
	if err != nil {
		t.Fatalf("NewPointDecoder failed: %v", err)
	}
	return d
}

func TestDecodeMinimalPoint(t *testing.T) {
	b := lastest.New(1, 2, 0)
	b.Scale = [3]float64{0.01, 0.01, 0.01}
	b.Add(lastest.Record{X: 100, Y: 200, Z: 300})

	points, err := decoderFor(t, b.Bytes()).Decode(1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Got %d points, want 1", len(points))
	}

	p := points[0]
	if p.X != 1.0 || p.Y != 2.0 || p.Z != 3.0 {
		t.Errorf("XYZ = (%v, %v, %v), want (1, 2, 3)", p.X, p.Y, p.Z)
	}
	if p.Intensity != 0 || p.ReturnNumber != 0 || p.NumberOfReturns != 0 {
		t.Errorf("unexpected non-zero fields: %+v", p)
	}
	if p.Extras.Kind != model.ExtrasNone {
		t.Errorf("Extras.Kind = %v, want none", p.Extras.Kind)
	}
}

// Each axis uses its own scale and offset
func TestDecodeScaleAndOffset(t *testing.T) {
	b := lastest.New(1, 2, 0)
	b.Scale = [3]float64{0.01, 0.1, 0.001}
	b.Offset = [3]float64{1000, 2000, -50}
	b.Add(lastest.Record{X: -12345, Y: 678, Z: 2147483647})

	p, err := decoderFor(t, b.Bytes()).Point(0)
	if err != nil {
		t.Fatalf("Point failed: %v", err)
	}

	wantX := float64(int32(-12345))*0.01 + 1000
	wantY := float64(int32(678))*0.1 + 2000
	wantZ := float64(int32(2147483647))*0.001 + -50
	if p.X != wantX || p.Y != wantY || p.Z != wantZ {
		t.Errorf("XYZ = (%v, %v, %v), want (%v, %v, %v)", p.X, p.Y, p.Z, wantX, wantY, wantZ)
	}
}

func TestDecodeCompositeByte(t *testing.T) {
	tests := []struct {
		composite byte
		ret, nret uint8
		scanDir   bool
		edge      bool
	}{
		{0b1010_1101, 5, 5, false, true},
		{0b1000_1101, 5, 1, false, true},
		{0b0100_0000, 0, 0, true, false},
		{0b1111_1111, 7, 7, true, true},
		{0b0001_1010, 2, 3, false, false},
	}

	for _, tt := range tests {
		b := lastest.New(1, 2, 0)
		b.Add(lastest.Record{Returns: tt.composite})

		p, err := decoderFor(t, b.Bytes()).Point(0)
		if err != nil {
			t.Fatalf("%08b: Point failed: %v", tt.composite, err)
		}
		if p.ReturnNumber != tt.ret {
			t.Errorf("%08b: ReturnNumber = %d, want %d", tt.composite, p.ReturnNumber, tt.ret)
		}
		if p.NumberOfReturns != tt.nret {
			t.Errorf("%08b: NumberOfReturns = %d, want %d", tt.composite, p.NumberOfReturns, tt.nret)
		}
		if p.ScanDirectionFlag != tt.scanDir {
			t.Errorf("%08b: ScanDirectionFlag = %v, want %v", tt.composite, p.ScanDirectionFlag, tt.scanDir)
		}
		if p.EdgeOfFlightLine != tt.edge {
			t.Errorf("%08b: EdgeOfFlightLine = %v, want %v", tt.composite, p.EdgeOfFlightLine, tt.edge)
		}
	}
}

// Every composite byte value unpacks to in-range fields matching its bits
func TestDecodeCompositeByteExhaustive(t *testing.T) {
	b := lastest.New(1, 2, 0)
	for v := 0; v < 256; v++ {
		b.Add(lastest.Record{Returns: byte(v)})
	}

	points, err := decoderFor(t, b.Bytes()).Decode(256)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	for v, p := range points {
		if p.ReturnNumber > 7 || p.NumberOfReturns > 7 {
			t.Fatalf("%08b: returns out of range: %d/%d", v, p.ReturnNumber, p.NumberOfReturns)
		}
		packed := p.ReturnNumber | p.NumberOfReturns<<3
		if p.ScanDirectionFlag {
			packed |= 1 << 6
		}
		if p.EdgeOfFlightLine {
			packed |= 1 << 7
		}
		if packed != byte(v) {
			t.Errorf("%08b repacks to %08b", v, packed)
		}
	}
}

func TestDecodeLegacyClassification(t *testing.T) {
	b := lastest.New(1, 2, 0)
	b.Add(lastest.Record{Class: 0b1010_0010, ScanAngleRank: -12, UserData: 9, PointSourceID: 4242, Intensity: 812})

	p, err := decoderFor(t, b.Bytes()).Point(0)
	if err != nil {
		t.Fatalf("Point failed: %v", err)
	}
	if p.Classification != 0b1010_0010 {
		t.Errorf("Classification = %08b, want 10100010", p.Classification)
	}
	if !p.ClassFlags.Has(model.FlagSynthetic) || p.ClassFlags.Has(model.FlagKeyPoint) || !p.ClassFlags.Has(model.FlagWithheld) {
		t.Errorf("ClassFlags = %04b, want synthetic|withheld", p.ClassFlags)
	}
	if p.ScanAngleRank != -12 || p.ScanAngleDegrees() != -12 {
		t.Errorf("ScanAngleRank = %d, want -12", p.ScanAngleRank)
	}
	if p.UserData != 9 || p.PointSourceID != 4242 || p.Intensity != 812 {
		t.Errorf("UserData/PointSourceID/Intensity = %d/%d/%d", p.UserData, p.PointSourceID, p.Intensity)
	}
}

func TestDecodeExtendedPrefix(t *testing.T) {
	b := lastest.New(1, 4, 6)
	b.Add(lastest.Record{
		X: 1, Y: 2, Z: 3,
		Returns:       0xA3,        // return 3 of 10
		Flags:         0b1101_0101, // edge, scan dir, channel 1, withheld|synthetic
		Class:         45,
		UserData:      7,
		ScanAngle:     -1500,
		PointSourceID: 11,
		GPSTime:       123456.789,
	})

	p, err := decoderFor(t, b.Bytes()).Point(0)
	if err != nil {
		t.Fatalf("Point failed: %v", err)
	}

	if p.ReturnNumber != 3 || p.NumberOfReturns != 10 {
		t.Errorf("returns = %d/%d, want 3/10", p.ReturnNumber, p.NumberOfReturns)
	}
	if p.ClassFlags != model.FlagSynthetic|model.FlagWithheld {
		t.Errorf("ClassFlags = %04b, want 0101", p.ClassFlags)
	}
	if p.ScannerChannel != 1 {
		t.Errorf("ScannerChannel = %d, want 1", p.ScannerChannel)
	}
	if !p.ScanDirectionFlag || !p.EdgeOfFlightLine {
		t.Errorf("ScanDirectionFlag/EdgeOfFlightLine = %v/%v, want true/true", p.ScanDirectionFlag, p.EdgeOfFlightLine)
	}
	if p.Classification != 45 || p.UserData != 7 || p.PointSourceID != 11 {
		t.Errorf("Classification/UserData/PointSourceID = %d/%d/%d", p.Classification, p.UserData, p.PointSourceID)
	}
	if p.ScanAngle != -1500 || math.Abs(p.ScanAngleDegrees()+9) > 1e-9 {
		t.Errorf("ScanAngle = %d (%v deg), want -1500 (-9 deg)", p.ScanAngle, p.ScanAngleDegrees())
	}
	if gps, ok := p.Extras.GPS(); !ok || gps != 123456.789 {
		t.Errorf("GPS = %v/%v, want 123456.789/true", gps, ok)
	}
}

// Only the gps_time changes when only its bytes change
func TestDecodeGPSTimeFormat1(t *testing.T) {
	rec := lastest.Record{X: 10, Y: 20, Z: 30, Intensity: 5, Returns: 0x09, GPSTime: 1.5}

	b1 := lastest.New(1, 2, 1)
	b1.Add(rec)
	rec.GPSTime = 987654321.125
	b2 := lastest.New(1, 2, 1)
	b2.Add(rec)

	p1, err := decoderFor(t, b1.Bytes()).Point(0)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := decoderFor(t, b2.Bytes()).Point(0)
	if err != nil {
		t.Fatal(err)
	}

	if p1.Extras.GPSTime != 1.5 || p2.Extras.GPSTime != 987654321.125 {
		t.Errorf("GPSTime = %v / %v, want 1.5 / 987654321.125", p1.Extras.GPSTime, p2.Extras.GPSTime)
	}
	ignoreGPS := cmpopts.IgnoreFields(model.Extras{}, "GPSTime")
	if diff := cmp.Diff(p1, p2, ignoreGPS); diff != "" {
		t.Errorf("points differ beyond gps_time (-p1 +p2):\n%s", diff)
	}
}

func TestDecodeAllFormats(t *testing.T) {
	rec := lastest.Record{
		X: 1, Y: 2, Z: 3,
		GPSTime: 42.25,
		R:       100, G: 200, B: 300,
		NIR: 400,
		Wave: lastest.Wave{
			Descriptor: 2, Offset: 1 << 40, Size: 512,
			Location: 1.5, DX: 0.25, DY: -0.5, DZ: 2,
		},
	}

	for format := uint8(0); format <= 10; format++ {
		major, minor := uint8(1), uint8(2)
		if format > 5 {
			minor = 4
		} else if format > 3 {
			minor = 3
		}
		b := lastest.New(major, minor, format)
		b.Add(rec)

		p, err := decoderFor(t, b.Bytes()).Point(0)
		if err != nil {
			t.Fatalf("format %d: Point failed: %v", format, err)
		}

		if p.X != 1 || p.Y != 2 || p.Z != 3 {
			t.Errorf("format %d: XYZ = (%v, %v, %v)", format, p.X, p.Y, p.Z)
		}

		e := p.Extras
		want, _ := ExtrasKindOf(format)
		if e.Kind != want {
			t.Errorf("format %d: Kind = %v, want %v", format, e.Kind, want)
		}
		if gps, ok := e.GPS(); ok && gps != 42.25 {
			t.Errorf("format %d: GPSTime = %v, want 42.25", format, gps)
		}
		if c, ok := e.RGB(); ok && c != (model.Color{R: 100, G: 200, B: 300}) {
			t.Errorf("format %d: Color = %+v", format, c)
		}
		if nir, ok := e.Infrared(); ok && nir != 400 {
			t.Errorf("format %d: NIR = %d, want 400", format, nir)
		}
		if w, ok := e.Wave(); ok {
			wantWave := model.WavePacket{
				DescriptorIndex: 2, ByteOffset: 1 << 40, Size: 512,
				Location: 1.5, DX: 0.25, DY: -0.5, DZ: 2,
			}
			if w != wantWave {
				t.Errorf("format %d: WavePacket = %+v, want %+v", format, w, wantWave)
			}
		}

		// Fields the format does not carry stay zero
		if !e.Kind.HasGPSTime() && e.GPSTime != 0 {
			t.Errorf("format %d: unexpected GPSTime %v", format, e.GPSTime)
		}
		if !e.Kind.HasColor() && e.Color != (model.Color{}) {
			t.Errorf("format %d: unexpected Color %+v", format, e.Color)
		}
		if !e.Kind.HasNIR() && e.NIR != 0 {
			t.Errorf("format %d: unexpected NIR %d", format, e.NIR)
		}
	}
}

// Records longer than the format minimum are stepped over by the declared length
func TestDecodeRecordPadding(t *testing.T) {
	b := lastest.New(1, 2, 1)
	b.RecordLength = 40
	b.VLRBytes = 100
	b.Add(
		lastest.Record{X: 1, GPSTime: 1},
		lastest.Record{X: 2, GPSTime: 2},
		lastest.Record{X: 3, GPSTime: 3},
	)

	d := decoderFor(t, b.Bytes())
	points, err := d.Decode(3)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i, p := range points {
		if p.X != float64(i+1) || p.Extras.GPSTime != float64(i+1) {
			t.Errorf("point %d: X=%v GPSTime=%v, want %d", i, p.X, p.Extras.GPSTime, i+1)
		}
	}
	if d.Offset(2) != 227+100+2*40 {
		t.Errorf("Offset(2) = %d, want %d", d.Offset(2), 227+100+2*40)
	}
}

func TestDecodeZeroPoints(t *testing.T) {
	d := decoderFor(t, lastest.New(1, 2, 3).Bytes())

	points, err := d.Decode(d.Count())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("Got %d points, want 0", len(points))
	}

	points, err = d.DecodeParallel(context.Background(), 0, 4)
	if err != nil || len(points) != 0 {
		t.Errorf("DecodeParallel = %d points, %v; want 0, nil", len(points), err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	b := lastest.New(1, 2, 0)
	b.Add(lastest.Record{X: 1}, lastest.Record{X: 2}, lastest.Record{X: 3})
	img := b.Bytes()
	img = img[:len(img)-5]

	d := decoderFor(t, img)

	if _, err := d.Decode(3); !errors.Is(err, model.ErrUnexpectedEOF) {
		t.Errorf("Decode: err = %v, want ErrUnexpectedEOF", err)
	}
	if _, err := d.DecodeParallel(context.Background(), 3, 2); !errors.Is(err, model.ErrUnexpectedEOF) {
		t.Errorf("DecodeParallel: err = %v, want ErrUnexpectedEOF", err)
	}
	if _, err := d.Point(2); !errors.Is(err, model.ErrUnexpectedEOF) {
		t.Errorf("Point(2): err = %v, want ErrUnexpectedEOF", err)
	}

	// Whole records before the cut still decode
	points, err := d.Decode(2)
	if err != nil || len(points) != 2 {
		t.Errorf("Decode(2) = %d points, %v; want 2, nil", len(points), err)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	b := lastest.New(1, 2, 99)
	b.RecordLength = 20
	b.Add(lastest.Record{})
	img := b.Bytes()

	h, err := decodeHeaderBytes(t, img)
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}

	_, err = NewPointDecoder(img, h)
	if !errors.Is(err, model.ErrUnsupportedPointFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedPointFormat", err)
	}
	var fe *model.FormatError
	if !errors.As(err, &fe) || fe.Format != 99 {
		t.Errorf("err = %v, want FormatError{99}", err)
	}
}

func TestDecodeRecordLengthTooShort(t *testing.T) {
	b := lastest.New(1, 2, 3)
	b.RecordLength = 28

	img := b.Bytes()
	h, err := decodeHeaderBytes(t, img)
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if _, err := NewPointDecoder(img, h); !errors.Is(err, model.ErrInconsistentHeader) {
		t.Fatalf("err = %v, want ErrInconsistentHeader", err)
	}
}

func TestDecodeTooManyRequested(t *testing.T) {
	b := lastest.New(1, 2, 0)
	b.Add(lastest.Record{})

	d := decoderFor(t, b.Bytes())
	if _, err := d.Decode(2); err == nil {
		t.Error("Decode(2) of a 1-point file succeeded")
	}
	if _, err := d.Point(1); err == nil {
		t.Error("Point(1) of a 1-point file succeeded")
	}
}

func sampleCloud(n int, format uint8) []byte {
	minor := uint8(2)
	if format > 5 {
		minor = 4
	}
	b := lastest.New(1, minor, format)
	b.Scale = [3]float64{0.001, 0.001, 0.01}
	b.Offset = [3]float64{300000, 5000000, 100}
	b.RecordLength = uint16(lastest.MinLength(format) + 3)
	for i := 0; i < n; i++ {
		b.Add(lastest.Record{
			X:         int32(i * 7919),
			Y:         int32(-i * 104729),
			Z:         int32(i % 1000),
			Intensity: uint16(i),
			Returns:   byte(i),
			Flags:     byte(i >> 3),
			Class:     uint8(i % 32),
			GPSTime:   float64(i) * 0.5,
			R:         uint16(i), G: uint16(2 * i), B: uint16(3 * i),
		})
	}
	return b.Bytes()
}

// Sequential, random access and parallel decoding agree, and decoding is repeatable
func TestDecodeModesAgree(t *testing.T) {
	for _, format := range []uint8{0, 3, 7} {
		img := sampleCloud(10_000, format)
		d := decoderFor(t, img)

		seq, err := d.Decode(d.Count())
		if err != nil {
			t.Fatalf("format %d: Decode failed: %v", format, err)
		}
		again, err := d.Decode(d.Count())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(seq, again); diff != "" {
			t.Fatalf("format %d: second decode differs:\n%s", format, diff)
		}

		par, err := d.DecodeParallel(context.Background(), d.Count(), 7)
		if err != nil {
			t.Fatalf("format %d: DecodeParallel failed: %v", format, err)
		}
		if diff := cmp.Diff(seq, par); diff != "" {
			t.Fatalf("format %d: parallel decode differs:\n%s", format, diff)
		}

		for _, i := range []uint64{0, 1, 4999, 9999} {
			p, err := d.Point(i)
			if err != nil {
				t.Fatalf("format %d: Point(%d) failed: %v", format, i, err)
			}
			if diff := cmp.Diff(seq[i], p); diff != "" {
				t.Errorf("format %d: Point(%d) differs:\n%s", format, i, diff)
			}
		}
	}
}

func TestWalkCancel(t *testing.T) {
	d := decoderFor(t, sampleCloud(10_000, 0))

	ctx, cancel := context.WithCancel(context.Background())
	seen := 0
	err := d.Walk(ctx, d.Count(), func(i uint64, p *model.Point) error {
		seen++
		if i == 5000 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if seen <= 5000 || seen >= 10_000 {
		t.Errorf("seen = %d points, want cancellation at a later record boundary", seen)
	}
}

func TestWalkCallbackError(t *testing.T) {
	d := decoderFor(t, sampleCloud(10, 0))

	stop := errors.New("stop")
	err := d.Walk(context.Background(), d.Count(), func(i uint64, p *model.Point) error {
		if i == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want %v", err, stop)
	}
}
