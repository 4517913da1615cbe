package model

import (
	"fmt"

	"github.com/google/uuid"
)

// PublicHeader is the decoded LAS public header block.
// This is the format-agnostic representation shared by the decoder,
// the text sink and the validator.
type PublicHeader struct {
	FileSignature      string    // Always "LASF" for a valid file
	FileSourceID       uint16    // Flight line / source identifier
	GlobalEncoding     uint16    // Bit field, bit 0 selects the GPS time flavour
	ProjectID          uuid.UUID // GUID assembled from the four on-disk sub-components
	VersionMajor       uint8
	VersionMinor       uint8
	SystemID           string // NUL padding stripped
	GeneratingSoftware string // NUL padding stripped
	FileCreationDay    uint16 // Day of year, 1-based
	FileCreationYear   uint16
	HeaderSize         uint16 // Declared size of this block
	OffsetToPoints     uint32 // Absolute offset of the first point record
	NumberOfVLRs       uint32
	PointFormat        uint8  // Point data record format code (0-10)
	PointRecordLength  uint16 // Bytes per point record, padding included
	LegacyPointCount   uint32
	LegacyReturnCounts [5]uint32
	PointCount         uint64 // Authoritative point count for this version

	XScale, YScale, ZScale    float64
	XOffset, YOffset, ZOffset float64
	MaxX, MinX                float64
	MaxY, MinY                float64
	MaxZ, MinZ                float64

	// LAS 1.3+
	StartOfWaveformData uint64

	// LAS 1.4+
	StartOfFirstEVLR uint64
	NumberOfEVLRs    uint32
	ReturnCounts     [15]uint64

	// Raw holds the header bytes consumed by parsing, in file order.
	Raw []byte
}

// Version returns the version as "major.minor".
func (h *PublicHeader) Version() string {
	return fmt.Sprintf("%d.%d", h.VersionMajor, h.VersionMinor)
}

// AtLeast reports whether the header version is major.minor or later.
func (h *PublicHeader) AtLeast(major, minor uint8) bool {
	if h.VersionMajor != major {
		return h.VersionMajor > major
	}
	return h.VersionMinor >= minor
}

// FileCreation renders the creation date as "day/year".
func (h *PublicHeader) FileCreation() string {
	return fmt.Sprintf("%d/%d", h.FileCreationDay, h.FileCreationYear)
}

// AdjustedGPSTime reports whether gps_time values are adjusted standard
// GPS time rather than GPS week seconds (global encoding bit 0).
func (h *PublicHeader) AdjustedGPSTime() bool {
	return h.GlobalEncoding&0x0001 != 0
}

// Point is a single decoded point data record.
// Coordinates are already rescaled to world units.
type Point struct {
	X, Y, Z           float64
	Intensity         uint16
	ReturnNumber      uint8 // 0-7 (formats 0-5), 0-15 (formats 6-10)
	NumberOfReturns   uint8 // 0-7 (formats 0-5), 0-15 (formats 6-10)
	ScanDirectionFlag bool
	EdgeOfFlightLine  bool
	Classification    uint8
	ClassFlags        ClassFlags
	ScannerChannel    uint8 // formats 6-10 only
	ScanAngleRank     int8  // formats 0-5, whole degrees
	ScanAngle         int16 // formats 6-10, 0.006 degree steps
	UserData          uint8
	PointSourceID     uint16
	Extras            Extras
}

// ScanAngleDegrees returns the scan angle in degrees regardless of format family.
func (p *Point) ScanAngleDegrees() float64 {
	if p.ScanAngle != 0 {
		return float64(p.ScanAngle) * 0.006
	}
	return float64(p.ScanAngleRank)
}

// ClassFlags holds the synthetic/key-point/withheld/overlap bits.
type ClassFlags uint8

const (
	FlagSynthetic ClassFlags = 1 << iota
	FlagKeyPoint
	FlagWithheld
	FlagOverlap // formats 6-10 only
)

// Has reports whether every bit in f is set.
func (c ClassFlags) Has(f ClassFlags) bool {
	return c&f == f
}

// ExtrasKind selects which optional tail fields a point carries.
// It is fixed per file by the point format.
type ExtrasKind uint8

const (
	ExtrasNone ExtrasKind = iota
	ExtrasGPS
	ExtrasColor
	ExtrasGPSColor
	ExtrasGPSWave
	ExtrasGPSColorWave
	ExtrasGPSColorNIR
	ExtrasGPSColorNIRWave
)

var extrasKindNames = [...]string{
	ExtrasNone:            "none",
	ExtrasGPS:             "gps",
	ExtrasColor:           "color",
	ExtrasGPSColor:        "gps+color",
	ExtrasGPSWave:         "gps+wave",
	ExtrasGPSColorWave:    "gps+color+wave",
	ExtrasGPSColorNIR:     "gps+color+nir",
	ExtrasGPSColorNIRWave: "gps+color+nir+wave",
}

func (k ExtrasKind) String() string {
	if int(k) < len(extrasKindNames) {
		return extrasKindNames[k]
	}
	return fmt.Sprintf("ExtrasKind(%d)", uint8(k))
}

// HasGPSTime reports whether the variant carries gps_time.
func (k ExtrasKind) HasGPSTime() bool {
	return k != ExtrasNone && k != ExtrasColor
}

// HasColor reports whether the variant carries RGB.
func (k ExtrasKind) HasColor() bool {
	switch k {
	case ExtrasColor, ExtrasGPSColor, ExtrasGPSColorWave, ExtrasGPSColorNIR, ExtrasGPSColorNIRWave:
		return true
	}
	return false
}

// HasNIR reports whether the variant carries a near-infrared channel.
func (k ExtrasKind) HasNIR() bool {
	return k == ExtrasGPSColorNIR || k == ExtrasGPSColorNIRWave
}

// HasWavePacket reports whether the variant carries a wave packet descriptor.
func (k ExtrasKind) HasWavePacket() bool {
	return k == ExtrasGPSWave || k == ExtrasGPSColorWave || k == ExtrasGPSColorNIRWave
}

// Extras is the tagged union of per-format tail fields.
// Only the fields named by Kind are meaningful; the rest stay zero.
type Extras struct {
	Kind       ExtrasKind
	GPSTime    float64
	Color      Color
	NIR        uint16
	WavePacket WavePacket
}

// GPS returns the gps_time and whether the point has one.
func (e Extras) GPS() (float64, bool) {
	return e.GPSTime, e.Kind.HasGPSTime()
}

// RGB returns the color and whether the point has one.
func (e Extras) RGB() (Color, bool) {
	return e.Color, e.Kind.HasColor()
}

// Infrared returns the NIR value and whether the point has one.
func (e Extras) Infrared() (uint16, bool) {
	return e.NIR, e.Kind.HasNIR()
}

// Wave returns the wave packet and whether the point has one.
func (e Extras) Wave() (WavePacket, bool) {
	return e.WavePacket, e.Kind.HasWavePacket()
}

// Color is a 16-bit per channel RGB triple
type Color struct {
	R, G, B uint16
}

// WavePacket describes the waveform associated with a point
type WavePacket struct {
	DescriptorIndex uint8
	ByteOffset      uint64  // Offset to waveform data
	Size            uint32  // Waveform packet size in bytes
	Location        float32 // Return point waveform location, picoseconds
	DX, DY, DZ      float32 // Parametric line direction
}

// PointCloud is an ordered sequence of points in file order.
type PointCloud struct {
	Header *PublicHeader
	Points []Point
}

// Len returns the number of decoded points
func (c *PointCloud) Len() int {
	return len(c.Points)
}
