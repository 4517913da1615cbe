// Package lastest builds LAS byte images in memory for tests.
//
// The encoder here is written independently of the decoder's layout
// tables so that tests compare two implementations of the format.
package lastest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// Record is one raw point record. Fields that the chosen format does
// not define are ignored.
type Record struct {
	X, Y, Z       int32
	Intensity     uint16
	Returns       byte // composite return byte
	Flags         byte // formats 6-10: class flags, channel, scan direction, edge
	Class         uint8
	ScanAngleRank int8  // formats 0-5
	ScanAngle     int16 // formats 6-10
	UserData      uint8
	PointSourceID uint16
	GPSTime       float64
	R, G, B       uint16
	NIR           uint16
	Wave          Wave
}

// Wave is a raw wave packet descriptor
type Wave struct {
	Descriptor uint8
	Offset     uint64
	Size       uint32
	Location   float32
	DX, DY, DZ float32
}

// Builder assembles a LAS file image
type Builder struct {
	Signature      string
	Major, Minor   uint8
	Format         uint8
	RecordLength   uint16 // 0 selects the format minimum
	SourceID       uint16
	GlobalEncoding uint16
	GUID1          uint32
	GUID2, GUID3   uint16
	GUID4          [8]byte
	SystemID       string
	Software       string
	Day, Year      uint16
	Scale          [3]float64
	Offset         [3]float64
	Min, Max       [3]float64
	VLRBytes       int  // opaque bytes between header and points
	PadByte        byte // fills record bytes beyond the format minimum

	// Overrides; zero values mean "derive from the records"
	HeaderSize     uint16
	OffsetToPoints uint32
	LegacyCount    *uint32
	Count64        *uint64
	ReturnCounts   [15]uint64

	records []Record
}

// New returns a builder with unit scales and zero offsets
func New(major, minor, format uint8) *Builder {
	return &Builder{
		Signature: "LASF",
		Major:     major,
		Minor:     minor,
		Format:    format,
		Scale:     [3]float64{1, 1, 1},
		SystemID:  "lastest",
		Software:  "lastest builder",
		Day:       42,
		Year:      2024,
		PadByte:   0xEE,
	}
}

// Add appends records
func (b *Builder) Add(r ...Record) *Builder {
	b.records = append(b.records, r...)
	return b
}

// MinLength returns the minimum record length of a point format,
// or 0 for codes outside 0-10.
func MinLength(format uint8) int {
	sizes := [...]int{20, 28, 26, 34, 57, 63, 30, 36, 38, 59, 67}
	if int(format) >= len(sizes) {
		return 0
	}
	return sizes[format]
}

func (b *Builder) headerSize() int {
	if b.HeaderSize != 0 {
		return int(b.HeaderSize)
	}
	switch {
	case b.Minor >= 4:
		return 375
	case b.Minor == 3:
		return 235
	}
	return 227
}

func (b *Builder) recordLength() int {
	if b.RecordLength != 0 {
		return int(b.RecordLength)
	}
	if n := MinLength(b.Format); n > 0 {
		return n
	}
	return 20
}

// Bytes encodes the complete file image
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	w := func(v interface{}) {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	fixed := func(s string, n int) {
		f := make([]byte, n)
		copy(f, s)
		buf.Write(f)
	}

	hs := b.headerSize()
	offset := b.OffsetToPoints
	if offset == 0 {
		offset = uint32(hs + b.VLRBytes)
	}
	count := uint64(len(b.records))
	legacy := uint32(count)
	if b.Minor >= 4 && b.Format > 5 {
		legacy = 0
	}
	if b.LegacyCount != nil {
		legacy = *b.LegacyCount
	}
	if b.Count64 != nil {
		count = *b.Count64
	}

	fixed(b.Signature, 4)
	w(b.SourceID)
	w(b.GlobalEncoding)
	w(b.GUID1)
	w(b.GUID2)
	w(b.GUID3)
	buf.Write(b.GUID4[:])
	w(b.Major)
	w(b.Minor)
	fixed(b.SystemID, 32)
	fixed(b.Software, 32)
	w(b.Day)
	w(b.Year)
	w(uint16(hs))
	w(offset)
	w(uint32(0)) // VLR count; VLRs are opaque here
	w(b.Format)
	w(uint16(b.recordLength()))
	w(legacy)
	for i := 0; i < 5; i++ {
		w(uint32(b.ReturnCounts[i]))
	}
	for _, v := range b.Scale {
		w(v)
	}
	for _, v := range b.Offset {
		w(v)
	}
	for i := 0; i < 3; i++ {
		w(b.Max[i])
		w(b.Min[i])
	}
	if b.Minor >= 3 {
		w(uint64(0)) // start of waveform data
	}
	if b.Minor >= 4 {
		w(uint64(0)) // start of first EVLR
		w(uint32(0)) // number of EVLRs
		w(count)
		for _, v := range b.ReturnCounts {
			w(v)
		}
	}

	// Header padding and VLR area
	for buf.Len() < int(offset) {
		buf.WriteByte(0)
	}

	for _, r := range b.records {
		buf.Write(b.encode(r))
	}
	return buf.Bytes()
}

func (b *Builder) encode(r Record) []byte {
	var buf bytes.Buffer
	w := func(v interface{}) {
		binary.Write(&buf, binary.LittleEndian, v)
	}

	f := b.Format
	w(r.X)
	w(r.Y)
	w(r.Z)
	w(r.Intensity)
	if f <= 5 {
		w(r.Returns)
		w(r.Class)
		w(r.ScanAngleRank)
		w(r.UserData)
		w(r.PointSourceID)
		if f != 0 && f != 2 {
			w(math.Float64bits(r.GPSTime))
		}
		if f == 2 || f == 3 || f == 5 {
			w([3]uint16{r.R, r.G, r.B})
		}
		if f == 4 || f == 5 {
			b.wave(&buf, r.Wave)
		}
	} else {
		w(r.Returns)
		w(r.Flags)
		w(r.Class)
		w(r.UserData)
		w(r.ScanAngle)
		w(r.PointSourceID)
		w(math.Float64bits(r.GPSTime))
		if f == 7 || f == 8 || f == 10 {
			w([3]uint16{r.R, r.G, r.B})
		}
		if f == 8 || f == 10 {
			w(r.NIR)
		}
		if f == 9 || f == 10 {
			b.wave(&buf, r.Wave)
		}
	}

	n := b.recordLength()
	for buf.Len() < n {
		buf.WriteByte(b.PadByte)
	}
	return buf.Bytes()[:n]
}

func (b *Builder) wave(buf *bytes.Buffer, wv Wave) {
	binary.Write(buf, binary.LittleEndian, wv.Descriptor)
	binary.Write(buf, binary.LittleEndian, wv.Offset)
	binary.Write(buf, binary.LittleEndian, wv.Size)
	binary.Write(buf, binary.LittleEndian, [4]float32{wv.Location, wv.DX, wv.DY, wv.DZ})
}

// WriteFile writes the image to a file in a per-test temporary directory
// and returns its path.
func (b *Builder) WriteFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// U32 and U64 help set the count overrides inline
func U32(v uint32) *uint32 { return &v }

func U64(v uint64) *uint64 { return &v }
