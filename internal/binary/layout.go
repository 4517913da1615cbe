package binary

import (
	"encoding/binary"
	"fmt"
	"math"
)

// LAS is little-endian throughout
var le = binary.LittleEndian

// kind is the on-disk encoding of a field
type kind uint8

const (
	kindBytes kind = iota // opaque bytes
	kindU8
	kindI8
	kindU16
	kindI16
	kindU32
	kindI32
	kindU64
	kindF32
	kindF64
)

var kindWidths = [...]int{
	kindBytes: 1,
	kindU8:    1,
	kindI8:    1,
	kindU16:   2,
	kindI16:   2,
	kindU32:   4,
	kindI32:   4,
	kindU64:   8,
	kindF32:   4,
	kindF64:   8,
}

var kindNames = [...]string{
	kindBytes: "bytes",
	kindU8:    "u8",
	kindI8:    "i8",
	kindU16:   "u16le",
	kindI16:   "i16le",
	kindU32:   "u32le",
	kindI32:   "i32le",
	kindU64:   "u64le",
	kindF32:   "f32le",
	kindF64:   "f64le",
}

func (k kind) String() string {
	return kindNames[k]
}

// field is one entry of a layout table: a named value at a fixed offset.
// Arrays are expressed with count > 1.
type field struct {
	name   string
	offset int
	kind   kind
	count  int
}

// width returns the total byte width of the field
func (f field) width() int {
	return kindWidths[f.kind] * f.count
}

func (f field) String() string {
	if f.count > 1 {
		return fmt.Sprintf("%s@%d %s[%d]", f.name, f.offset, f.kind, f.count)
	}
	return fmt.Sprintf("%s@%d %s", f.name, f.offset, f.kind)
}

func (f field) u8(b []byte) uint8   { return b[f.offset] }
func (f field) i8(b []byte) int8    { return int8(b[f.offset]) }
func (f field) u16(b []byte) uint16 { return le.Uint16(b[f.offset:]) }
func (f field) i16(b []byte) int16  { return int16(le.Uint16(b[f.offset:])) }
func (f field) u32(b []byte) uint32 { return le.Uint32(b[f.offset:]) }
func (f field) i32(b []byte) int32  { return int32(le.Uint32(b[f.offset:])) }
func (f field) u64(b []byte) uint64 { return le.Uint64(b[f.offset:]) }

func (f field) f32(b []byte) float32 {
	return math.Float32frombits(le.Uint32(b[f.offset:]))
}

func (f field) f64(b []byte) float64 {
	return math.Float64frombits(le.Uint64(b[f.offset:]))
}

// raw returns the field bytes without copying
func (f field) raw(b []byte) []byte {
	return b[f.offset : f.offset+f.width()]
}

// u32At returns element i of a u32 array field
func (f field) u32At(b []byte, i int) uint32 {
	return le.Uint32(b[f.offset+4*i:])
}

// u64At returns element i of a u64 array field
func (f field) u64At(b []byte, i int) uint64 {
	return le.Uint64(b[f.offset+8*i:])
}

// layout is a declarative description of a fixed binary block.
// Fields are appended in on-disk order, each starting where the previous
// one ended, so the table doubles as the read order.
type layout struct {
	name   string
	start  int
	size   int
	fields []field
}

func newLayout(name string, start int) *layout {
	return &layout{name: name, start: start}
}

// end returns the absolute offset just past the last field
func (l *layout) end() int {
	return l.start + l.size
}

func (l *layout) add(name string, k kind, count int) field {
	f := field{name: name, offset: l.end(), kind: k, count: count}
	l.fields = append(l.fields, f)
	l.size += f.width()
	return f
}

func (l *layout) bytes(name string, n int) field { return l.add(name, kindBytes, n) }
func (l *layout) u8(name string) field            { return l.add(name, kindU8, 1) }
func (l *layout) i8(name string) field            { return l.add(name, kindI8, 1) }
func (l *layout) u16(name string) field           { return l.add(name, kindU16, 1) }
func (l *layout) i16(name string) field           { return l.add(name, kindI16, 1) }
func (l *layout) u32(name string) field           { return l.add(name, kindU32, 1) }
func (l *layout) u32s(name string, n int) field   { return l.add(name, kindU32, n) }
func (l *layout) i32(name string) field           { return l.add(name, kindI32, 1) }
func (l *layout) u64(name string) field           { return l.add(name, kindU64, 1) }
func (l *layout) u64s(name string, n int) field   { return l.add(name, kindU64, n) }
func (l *layout) f32(name string) field           { return l.add(name, kindF32, 1) }
func (l *layout) f64(name string) field           { return l.add(name, kindF64, 1) }

// lookup finds a field by name
func (l *layout) lookup(name string) (field, bool) {
	for _, f := range l.fields {
		if f.name == name {
			return f, true
		}
	}
	return field{}, false
}

// Public header block, LAS 1.0 - 1.2 (227 bytes)
var (
	headerBase = newLayout("public header 1.0-1.2", 0)

	hdrSignature          = headerBase.bytes("file_signature", 4)
	hdrFileSourceID       = headerBase.u16("file_source_id")
	hdrGlobalEncoding     = headerBase.u16("global_encoding")
	hdrGUID1              = headerBase.u32("project_id_guid_data_1")
	hdrGUID2              = headerBase.u16("project_id_guid_data_2")
	hdrGUID3              = headerBase.u16("project_id_guid_data_3")
	hdrGUID4              = headerBase.bytes("project_id_guid_data_4", 8)
	hdrVersionMajor       = headerBase.u8("version_major")
	hdrVersionMinor       = headerBase.u8("version_minor")
	hdrSystemID           = headerBase.bytes("system_identifier", 32)
	hdrGeneratingSoftware = headerBase.bytes("generating_software", 32)
	hdrCreationDay        = headerBase.u16("file_creation_day_of_year")
	hdrCreationYear       = headerBase.u16("file_creation_year")
	hdrHeaderSize         = headerBase.u16("header_size")
	hdrOffsetToPoints     = headerBase.u32("offset_to_point_data")
	hdrNumberOfVLRs       = headerBase.u32("number_of_variable_length_records")
	hdrPointFormat        = headerBase.u8("point_data_record_format")
	hdrPointRecordLength  = headerBase.u16("point_data_record_length")
	hdrLegacyPointCount   = headerBase.u32("legacy_number_of_point_records")
	hdrLegacyReturnCounts = headerBase.u32s("legacy_number_of_points_by_return", 5)
	hdrXScale             = headerBase.f64("x_scale_factor")
	hdrYScale             = headerBase.f64("y_scale_factor")
	hdrZScale             = headerBase.f64("z_scale_factor")
	hdrXOffset            = headerBase.f64("x_offset")
	hdrYOffset            = headerBase.f64("y_offset")
	hdrZOffset            = headerBase.f64("z_offset")
	hdrMaxX               = headerBase.f64("max_x")
	hdrMinX               = headerBase.f64("min_x")
	hdrMaxY               = headerBase.f64("max_y")
	hdrMinY               = headerBase.f64("min_y")
	hdrMaxZ               = headerBase.f64("max_z")
	hdrMinZ               = headerBase.f64("min_z")
)

// LAS 1.3 extension (235 bytes total)
var (
	header13 = newLayout("public header 1.3 extension", headerBase.end())

	hdrStartOfWaveform = header13.u64("start_of_waveform_data_packet_record")
)

// LAS 1.4 extension (375 bytes total)
var (
	header14 = newLayout("public header 1.4 extension", header13.end())

	hdrStartOfFirstEVLR = header14.u64("start_of_first_extended_variable_length_record")
	hdrNumberOfEVLRs    = header14.u32("number_of_extended_variable_length_records")
	hdrPointCount       = header14.u64("number_of_point_records")
	hdrReturnCounts     = header14.u64s("number_of_points_by_return", 15)
)

// headerLayouts returns the layouts to read, in order, for a header version.
func headerLayouts(major, minor uint8) []*layout {
	switch {
	case major > 1 || minor >= 4:
		return []*layout{headerBase, header13, header14}
	case minor == 3:
		return []*layout{headerBase, header13}
	default:
		return []*layout{headerBase}
	}
}

// Common point prefix, formats 0-5 (20 bytes)
var (
	legacyPrefix = newLayout("point prefix 0-5", 0)

	ptX             = legacyPrefix.i32("x")
	ptY             = legacyPrefix.i32("y")
	ptZ             = legacyPrefix.i32("z")
	ptIntensity     = legacyPrefix.u16("intensity")
	ptReturnByte    = legacyPrefix.u8("return_flags")
	ptClassByte     = legacyPrefix.u8("classification")
	ptScanAngleRank = legacyPrefix.i8("scan_angle_rank")
	ptUserData      = legacyPrefix.u8("user_data")
	ptPointSourceID = legacyPrefix.u16("point_source_id")
)

// Common point prefix, formats 6-10 (30 bytes)
var (
	extendedPrefix = newLayout("point prefix 6-10", 0)

	ptxX             = extendedPrefix.i32("x")
	ptxY             = extendedPrefix.i32("y")
	ptxZ             = extendedPrefix.i32("z")
	ptxIntensity     = extendedPrefix.u16("intensity")
	ptxReturnByte    = extendedPrefix.u8("returns")
	ptxFlagsByte     = extendedPrefix.u8("flags")
	ptxClass         = extendedPrefix.u8("classification")
	ptxUserData      = extendedPrefix.u8("user_data")
	ptxScanAngle     = extendedPrefix.i16("scan_angle")
	ptxPointSourceID = extendedPrefix.u16("point_source_id")
	ptxGPSTime       = extendedPrefix.f64("gps_time")
)

// Optional tail blocks; offsets are relative to the block start.
var (
	gpsTail = newLayout("gps time", 0)

	tailGPSTime = gpsTail.f64("gps_time")

	colorTail = newLayout("color", 0)

	tailRed   = colorTail.u16("red")
	tailGreen = colorTail.u16("green")
	tailBlue  = colorTail.u16("blue")

	nirTail = newLayout("nir", 0)

	tailNIR = nirTail.u16("nir")

	waveTail = newLayout("wave packet", 0)

	tailWaveDescriptor = waveTail.u8("wave_packet_descriptor_index")
	tailWaveOffset     = waveTail.u64("byte_offset_to_waveform_data")
	tailWaveSize       = waveTail.u32("waveform_packet_size")
	tailWaveLocation   = waveTail.f32("return_point_waveform_location")
	tailWaveDX         = waveTail.f32("x_t")
	tailWaveDY         = waveTail.f32("y_t")
	tailWaveDZ         = waveTail.f32("z_t")
)
