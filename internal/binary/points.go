package binary

import (
	"context"
	"fmt"

	"github.com/dyuri/lasdump/internal/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// pointFormat describes the record layout of one point format code.
// Offsets of optional blocks are relative to the record start, -1 when absent.
type pointFormat struct {
	code     uint8
	extended bool
	size     int // minimum record length
	kind     model.ExtrasKind
	gps      int
	color    int
	nir      int
	wave     int
}

// pointFormats is indexed by format code
var pointFormats [11]pointFormat

func init() {
	pointFormats = [...]pointFormat{
		compose(0, legacyPrefix),
		compose(1, legacyPrefix, gpsTail),
		compose(2, legacyPrefix, colorTail),
		compose(3, legacyPrefix, gpsTail, colorTail),
		compose(4, legacyPrefix, gpsTail, waveTail),
		compose(5, legacyPrefix, gpsTail, colorTail, waveTail),
		compose(6, extendedPrefix),
		compose(7, extendedPrefix, colorTail),
		compose(8, extendedPrefix, colorTail, nirTail),
		compose(9, extendedPrefix, waveTail),
		compose(10, extendedPrefix, colorTail, nirTail, waveTail),
	}
}

// compose lays the tail blocks out after the prefix
func compose(code uint8, prefix *layout, tails ...*layout) pointFormat {
	pf := pointFormat{code: code, gps: -1, color: -1, nir: -1, wave: -1}
	if prefix == extendedPrefix {
		pf.extended = true
		pf.gps = ptxGPSTime.offset
	}

	off := prefix.size
	for _, t := range tails {
		switch t {
		case gpsTail:
			pf.gps = off
		case colorTail:
			pf.color = off
		case nirTail:
			pf.nir = off
		case waveTail:
			pf.wave = off
		}
		off += t.size
	}
	pf.size = off
	pf.kind = extrasKind(pf.gps >= 0, pf.color >= 0, pf.nir >= 0, pf.wave >= 0)
	return pf
}

func extrasKind(gps, color, nir, wave bool) model.ExtrasKind {
	switch {
	case gps && color && nir && wave:
		return model.ExtrasGPSColorNIRWave
	case gps && color && nir:
		return model.ExtrasGPSColorNIR
	case gps && color && wave:
		return model.ExtrasGPSColorWave
	case gps && wave:
		return model.ExtrasGPSWave
	case gps && color:
		return model.ExtrasGPSColor
	case color:
		return model.ExtrasColor
	case gps:
		return model.ExtrasGPS
	}
	return model.ExtrasNone
}

// lookupFormat returns the layout of a point format code
func lookupFormat(code uint8) (*pointFormat, error) {
	if int(code) >= len(pointFormats) {
		return nil, &model.FormatError{Format: code}
	}
	return &pointFormats[code], nil
}

// MinRecordLength returns the minimum record length for a point format.
func MinRecordLength(code uint8) (int, error) {
	pf, err := lookupFormat(code)
	if err != nil {
		return 0, err
	}
	return pf.size, nil
}

// ExtrasKindOf returns the tail variant carried by a point format.
func ExtrasKindOf(code uint8) (model.ExtrasKind, error) {
	pf, err := lookupFormat(code)
	if err != nil {
		return model.ExtrasNone, err
	}
	return pf.kind, nil
}

// progressEvery controls how often Walk reports progress at debug level
const progressEvery = 1_000_000

// cancelCheckEvery controls how often long loops look at the context
const cancelCheckEvery = 4096

// PointDecoder decodes point data records from a contiguous byte region.
//
// Record i occupies [OffsetToPoints + i*PointRecordLength, +PointRecordLength)
// regardless of how many bytes the format defines; trailing extra bytes
// are skipped.
type PointDecoder struct {
	header *model.PublicHeader
	format *pointFormat
	cursor *RegionCursor
	base   uint64
	stride uint64
	log    logrus.FieldLogger

	// chosen once per file from the format family
	decodePrefix func(rec []byte, p *model.Point)
}

// NewPointDecoder prepares a decoder for the points described by h.
// It fails with ErrUnsupportedPointFormat or ErrInconsistentHeader before
// any point is decoded.
func NewPointDecoder(region []byte, h *model.PublicHeader) (*PointDecoder, error) {
	pf, err := lookupFormat(h.PointFormat)
	if err != nil {
		return nil, err
	}

	if int(h.PointRecordLength) < pf.size {
		return nil, model.NewError(model.ErrInconsistentHeader, nil,
			"point record length %d is below the %d bytes of point format %d",
			h.PointRecordLength, pf.size, pf.code)
	}

	d := &PointDecoder{
		header: h,
		format: pf,
		cursor: NewRegionCursor(region),
		base:   uint64(h.OffsetToPoints),
		stride: uint64(h.PointRecordLength),
		log:    logrus.StandardLogger(),
	}
	if pf.extended {
		d.decodePrefix = d.decodeExtendedPrefix
	} else {
		d.decodePrefix = d.decodeLegacyPrefix
	}
	return d, nil
}

// SetLogger replaces the logger used for progress reporting
func (d *PointDecoder) SetLogger(l logrus.FieldLogger) {
	d.log = l
}

// Header returns the header the decoder was built from
func (d *PointDecoder) Header() *model.PublicHeader {
	return d.header
}

// Count returns the number of points the header declares
func (d *PointDecoder) Count() uint64 {
	return d.header.PointCount
}

// Offset returns the absolute byte offset of record i
func (d *PointDecoder) Offset(i uint64) uint64 {
	return d.base + i*d.stride
}

// Available returns how many whole records fit in the region
func (d *PointDecoder) Available() uint64 {
	if d.cursor.Len() <= d.base {
		return 0
	}
	return (d.cursor.Len() - d.base) / d.stride
}

func (d *PointDecoder) checkCount(n uint64) error {
	if n > d.header.PointCount {
		return fmt.Errorf("requested %d points but header declares %d", n, d.header.PointCount)
	}
	return nil
}

// Point decodes record i by its absolute offset.
func (d *PointDecoder) Point(i uint64) (model.Point, error) {
	var p model.Point
	if i >= d.header.PointCount {
		return p, fmt.Errorf("point index %d out of range [0, %d)", i, d.header.PointCount)
	}
	rec := make([]byte, d.stride)
	off := d.Offset(i)
	if err := d.cursor.ReadInto(rec, &off); err != nil {
		return p, fmt.Errorf("read point %d: %w", i, err)
	}
	d.decode(rec, &p)
	return p, nil
}

// Decode decodes the first n points in file order.
func (d *PointDecoder) Decode(n uint64) ([]model.Point, error) {
	return d.DecodeContext(context.Background(), n)
}

// DecodeContext is Decode with cancellation at record boundaries.
func (d *PointDecoder) DecodeContext(ctx context.Context, n uint64) ([]model.Point, error) {
	if err := d.checkCount(n); err != nil {
		return nil, err
	}

	// Cap the allocation by what the region can hold; a short region
	// fails below with ErrUnexpectedEOF anyway.
	hint := n
	if avail := d.Available(); hint > avail {
		hint = avail
	}
	points := make([]model.Point, 0, hint)

	err := d.Walk(ctx, n, func(_ uint64, p *model.Point) error {
		points = append(points, *p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// Walk decodes the first n points sequentially and calls fn for each one.
// The point passed to fn is reused between calls. Decoding stops at a
// record boundary when ctx is cancelled or fn returns an error.
func (d *PointDecoder) Walk(ctx context.Context, n uint64, fn func(i uint64, p *model.Point) error) error {
	if err := d.checkCount(n); err != nil {
		return err
	}

	rec := make([]byte, d.stride)
	off := d.base
	var p model.Point

	for i := uint64(0); i < n; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if err := d.cursor.ReadInto(rec, &off); err != nil {
			return fmt.Errorf("read point %d: %w", i, err)
		}
		d.decode(rec, &p)

		if err := fn(i, &p); err != nil {
			return err
		}

		if i > 0 && i%progressEvery == 0 {
			d.log.WithFields(logrus.Fields{
				"points": i,
				"total":  n,
				"offset": off,
			}).Debug("decoding points")
		}
	}
	return nil
}

// DecodeParallel decodes the first n points using up to workers goroutines.
// Each worker owns a disjoint index range and writes into its own slots, so
// the result is in file order and identical to Decode.
func (d *PointDecoder) DecodeParallel(ctx context.Context, n uint64, workers int) ([]model.Point, error) {
	if err := d.checkCount(n); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	// Fail early on a short region instead of allocating for it
	if avail := d.Available(); avail < n {
		off := d.Offset(avail)
		return nil, fmt.Errorf("read point %d: %w", avail, model.NewError(model.ErrUnexpectedEOF, nil,
			"unexpected end of data at offset %d (region is %d bytes)", off, d.cursor.Len()))
	}

	points := make([]model.Point, n)
	chunk := (n + uint64(workers) - 1) / uint64(workers)

	g, ctx := errgroup.WithContext(ctx)
	for start := uint64(0); start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		g.Go(func() error {
			rec := make([]byte, d.stride)
			off := d.Offset(start)
			for i := start; i < end; i++ {
				if (i-start)%cancelCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if err := d.cursor.ReadInto(rec, &off); err != nil {
					return fmt.Errorf("read point %d: %w", i, err)
				}
				d.decode(rec, &points[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// decode fills p from one raw record
func (d *PointDecoder) decode(rec []byte, p *model.Point) {
	*p = model.Point{}
	d.decodePrefix(rec, p)

	pf := d.format
	p.Extras.Kind = pf.kind
	if pf.gps >= 0 {
		p.Extras.GPSTime = tailGPSTime.f64(rec[pf.gps:])
	}
	if pf.color >= 0 {
		c := rec[pf.color:]
		p.Extras.Color = model.Color{
			R: tailRed.u16(c),
			G: tailGreen.u16(c),
			B: tailBlue.u16(c),
		}
	}
	if pf.nir >= 0 {
		p.Extras.NIR = tailNIR.u16(rec[pf.nir:])
	}
	if pf.wave >= 0 {
		w := rec[pf.wave:]
		p.Extras.WavePacket = model.WavePacket{
			DescriptorIndex: tailWaveDescriptor.u8(w),
			ByteOffset:      tailWaveOffset.u64(w),
			Size:            tailWaveSize.u32(w),
			Location:        tailWaveLocation.f32(w),
			DX:              tailWaveDX.f32(w),
			DY:              tailWaveDY.f32(w),
			DZ:              tailWaveDZ.f32(w),
		}
	}
}

// Composite byte, formats 0-5
const (
	maskReturnNumber    = 0b0000_0111
	maskNumberOfReturns = 0b0011_1000
	shiftNumberReturns  = 3
	maskScanDirection   = 0b0100_0000
	maskEdgeOfFlight    = 0b1000_0000

	// classification byte bits 5-7 carry the synthetic/key-point/withheld flags
	shiftLegacyFlags = 5
	maskLegacyFlags  = 0b0000_0111
)

// Composite bytes, formats 6-10
const (
	maskExtReturnNumber    = 0b0000_1111
	maskExtNumberOfReturns = 0b1111_0000
	shiftExtNumberReturns  = 4
	maskExtClassFlags      = 0b0000_1111
	maskExtScannerChannel  = 0b0011_0000
	shiftExtScannerChannel = 4
)

func (d *PointDecoder) decodeLegacyPrefix(rec []byte, p *model.Point) {
	h := d.header
	p.X = float64(ptX.i32(rec))*h.XScale + h.XOffset
	p.Y = float64(ptY.i32(rec))*h.YScale + h.YOffset
	p.Z = float64(ptZ.i32(rec))*h.ZScale + h.ZOffset
	p.Intensity = ptIntensity.u16(rec)

	b := ptReturnByte.u8(rec)
	p.ReturnNumber = b & maskReturnNumber
	p.NumberOfReturns = (b & maskNumberOfReturns) >> shiftNumberReturns
	p.ScanDirectionFlag = b&maskScanDirection != 0
	p.EdgeOfFlightLine = b&maskEdgeOfFlight != 0

	p.Classification = ptClassByte.u8(rec)
	p.ClassFlags = model.ClassFlags((p.Classification >> shiftLegacyFlags) & maskLegacyFlags)
	p.ScanAngleRank = ptScanAngleRank.i8(rec)
	p.UserData = ptUserData.u8(rec)
	p.PointSourceID = ptPointSourceID.u16(rec)
}

func (d *PointDecoder) decodeExtendedPrefix(rec []byte, p *model.Point) {
	h := d.header
	p.X = float64(ptxX.i32(rec))*h.XScale + h.XOffset
	p.Y = float64(ptxY.i32(rec))*h.YScale + h.YOffset
	p.Z = float64(ptxZ.i32(rec))*h.ZScale + h.ZOffset
	p.Intensity = ptxIntensity.u16(rec)

	r := ptxReturnByte.u8(rec)
	p.ReturnNumber = r & maskExtReturnNumber
	p.NumberOfReturns = (r & maskExtNumberOfReturns) >> shiftExtNumberReturns

	f := ptxFlagsByte.u8(rec)
	p.ClassFlags = model.ClassFlags(f & maskExtClassFlags)
	p.ScannerChannel = (f & maskExtScannerChannel) >> shiftExtScannerChannel
	p.ScanDirectionFlag = f&maskScanDirection != 0
	p.EdgeOfFlightLine = f&maskEdgeOfFlight != 0

	p.Classification = ptxClass.u8(rec)
	p.UserData = ptxUserData.u8(rec)
	p.ScanAngle = ptxScanAngle.i16(rec)
	p.PointSourceID = ptxPointSourceID.u16(rec)
}
