package binary

import (
	"errors"
	"io"

	"github.com/dyuri/lasdump/internal/model"
)

// Cursor performs fixed-width positioned reads.
//
// ReadInto copies exactly len(dst) bytes starting at *off and advances
// *off by that length. Reading past the end of the backing data fails
// with model.ErrUnexpectedEOF and leaves *off untouched.
type Cursor interface {
	ReadInto(dst []byte, off *uint64) error
}

// StreamCursor reads from a seekable stream. It suits the header, which
// sits at the start of the file.
type StreamCursor struct {
	rs io.ReadSeeker
}

// NewStreamCursor creates a cursor over a seekable stream
func NewStreamCursor(rs io.ReadSeeker) *StreamCursor {
	return &StreamCursor{rs: rs}
}

// ReadInto implements Cursor
func (c *StreamCursor) ReadInto(dst []byte, off *uint64) error {
	if _, err := c.rs.Seek(int64(*off), io.SeekStart); err != nil {
		return model.NewError(model.ErrIO, err, "seek to offset %d", *off)
	}
	if _, err := io.ReadFull(c.rs, dst); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return model.NewError(model.ErrUnexpectedEOF, nil,
				"unexpected end of data reading %d bytes at offset %d", len(dst), *off)
		}
		return model.NewError(model.ErrIO, err, "read %d bytes at offset %d", len(dst), *off)
	}
	*off += uint64(len(dst))
	return nil
}

// RegionCursor reads from a contiguous in-memory region, typically a
// memory-mapped file. The region is never modified.
type RegionCursor struct {
	b []byte
}

// NewRegionCursor creates a cursor over a byte region
func NewRegionCursor(b []byte) *RegionCursor {
	return &RegionCursor{b: b}
}

// Len returns the size of the region
func (c *RegionCursor) Len() uint64 {
	return uint64(len(c.b))
}

// ReadInto implements Cursor
func (c *RegionCursor) ReadInto(dst []byte, off *uint64) error {
	end := *off + uint64(len(dst))
	if end < *off || end > uint64(len(c.b)) {
		return model.NewError(model.ErrUnexpectedEOF, nil,
			"unexpected end of data reading %d bytes at offset %d (region is %d bytes)",
			len(dst), *off, len(c.b))
	}
	copy(dst, c.b[*off:end])
	*off = end
	return nil
}
