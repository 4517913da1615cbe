package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dyuri/lasdump/internal/model"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
)

// Signature is the file signature every LAS file starts with
const Signature = "LASF"

// Header block sizes per version family
const (
	HeaderSize12 = 227
	HeaderSize13 = 235
	HeaderSize14 = 375
)

// DecodeHeader reads the public header block through c, starting at
// offset 0. Only the layouts required by the header's version are read,
// so pre-1.3 files need no more than 227 bytes.
func DecodeHeader(c Cursor) (*model.PublicHeader, error) {
	var off uint64
	buf := make([]byte, headerBase.size, HeaderSize14)

	// The signature is checked on its own so short non-LAS input is
	// reported as such
	sig := buf[:hdrSignature.width()]
	if err := c.ReadInto(sig, &off); err != nil {
		return nil, fmt.Errorf("read %s: %w", hdrSignature.name, err)
	}
	if string(sig) != Signature {
		return nil, model.NewError(model.ErrBadSignature, nil,
			"bad file signature %q (expected %q)", sig, Signature)
	}

	if err := c.ReadInto(buf[len(sig):], &off); err != nil {
		return nil, fmt.Errorf("read %s: %w", headerBase.name, err)
	}

	major := hdrVersionMajor.u8(buf)
	minor := hdrVersionMinor.u8(buf)
	layouts := headerLayouts(major, minor)

	// The declared size must cover everything this version defines
	declared := int(hdrHeaderSize.u16(buf))
	if need := layouts[len(layouts)-1].end(); declared < need {
		return nil, model.NewError(model.ErrInconsistentHeader, nil,
			"header size %d is smaller than the %d bytes defined for version %d.%d",
			declared, need, major, minor)
	}

	for _, l := range layouts[1:] {
		ext := buf[len(buf) : len(buf)+l.size]
		if err := c.ReadInto(ext, &off); err != nil {
			return nil, fmt.Errorf("read %s: %w", l.name, err)
		}
		buf = buf[:len(buf)+l.size]
	}

	h := decodeHeaderFields(buf)

	if h.OffsetToPoints < uint32(h.HeaderSize) {
		return nil, model.NewError(model.ErrInconsistentHeader, nil,
			"offset to point data %d precedes end of header %d", h.OffsetToPoints, h.HeaderSize)
	}

	return h, nil
}

// decodeHeaderFields decodes a header whose bytes have all been read.
// len(buf) tells which version extensions are present.
func decodeHeaderFields(buf []byte) *model.PublicHeader {
	h := &model.PublicHeader{
		FileSignature:      string(hdrSignature.raw(buf)),
		FileSourceID:       hdrFileSourceID.u16(buf),
		GlobalEncoding:     hdrGlobalEncoding.u16(buf),
		ProjectID:          projectID(buf),
		VersionMajor:       hdrVersionMajor.u8(buf),
		VersionMinor:       hdrVersionMinor.u8(buf),
		SystemID:           decodeText(hdrSystemID.raw(buf)),
		GeneratingSoftware: decodeText(hdrGeneratingSoftware.raw(buf)),
		FileCreationDay:    hdrCreationDay.u16(buf),
		FileCreationYear:   hdrCreationYear.u16(buf),
		HeaderSize:         hdrHeaderSize.u16(buf),
		OffsetToPoints:     hdrOffsetToPoints.u32(buf),
		NumberOfVLRs:       hdrNumberOfVLRs.u32(buf),
		PointFormat:        hdrPointFormat.u8(buf),
		PointRecordLength:  hdrPointRecordLength.u16(buf),
		LegacyPointCount:   hdrLegacyPointCount.u32(buf),
		XScale:             hdrXScale.f64(buf),
		YScale:             hdrYScale.f64(buf),
		ZScale:             hdrZScale.f64(buf),
		XOffset:            hdrXOffset.f64(buf),
		YOffset:            hdrYOffset.f64(buf),
		ZOffset:            hdrZOffset.f64(buf),
		MaxX:               hdrMaxX.f64(buf),
		MinX:               hdrMinX.f64(buf),
		MaxY:               hdrMaxY.f64(buf),
		MinY:               hdrMinY.f64(buf),
		MaxZ:               hdrMaxZ.f64(buf),
		MinZ:               hdrMinZ.f64(buf),
		Raw:                buf,
	}

	for i := range h.LegacyReturnCounts {
		h.LegacyReturnCounts[i] = hdrLegacyReturnCounts.u32At(buf, i)
	}

	if len(buf) >= HeaderSize13 {
		h.StartOfWaveformData = hdrStartOfWaveform.u64(buf)
	}

	if len(buf) >= HeaderSize14 {
		h.StartOfFirstEVLR = hdrStartOfFirstEVLR.u64(buf)
		h.NumberOfEVLRs = hdrNumberOfEVLRs.u32(buf)
		for i := range h.ReturnCounts {
			h.ReturnCounts[i] = hdrReturnCounts.u64At(buf, i)
		}
	}

	// 1.4 made the 64-bit count authoritative; older files only have the legacy one
	if h.AtLeast(1, 4) {
		h.PointCount = hdrPointCount.u64(buf)
	} else {
		h.PointCount = uint64(h.LegacyPointCount)
	}

	return h
}

// projectID assembles the GUID from its four little-endian sub-components.
// The result renders as xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx with the
// last eight bytes in file order.
func projectID(buf []byte) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint32(id[0:4], hdrGUID1.u32(buf))
	binary.BigEndian.PutUint16(id[4:6], hdrGUID2.u16(buf))
	binary.BigEndian.PutUint16(id[6:8], hdrGUID3.u16(buf))
	copy(id[8:], hdrGUID4.raw(buf))
	return id
}

// decodeText strips NUL padding and decodes the remaining bytes.
// The fields are nominally ASCII; Windows-1252 maps any stray high
// bytes to valid UTF-8 instead of producing garbage.
func decodeText(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}
