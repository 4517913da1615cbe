// Package codec wraps streams in the compression formats lasdump reads
// and writes: gzip, zstd, xz and lz4.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Kind identifies a compression format
type Kind string

const (
	None Kind = "none"
	Gzip Kind = "gzip"
	Zstd Kind = "zstd"
	XZ   Kind = "xz"
	LZ4  Kind = "lz4"

	// Auto defers the choice to the file name
	Auto Kind = "auto"
)

var extensions = map[Kind]string{
	Gzip: ".gz",
	Zstd: ".zst",
	XZ:   ".xz",
	LZ4:  ".lz4",
}

var magics = []struct {
	kind  Kind
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{XZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

// ParseKind parses a --compress value
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case None, Gzip, Zstd, XZ, LZ4, Auto:
		return k, nil
	case "", "off":
		return None, nil
	case "gz":
		return Gzip, nil
	case "zst", "zstandard":
		return Zstd, nil
	}
	return None, fmt.Errorf("unknown compression %q (want auto, none, gzip, zstd, xz or lz4)", s)
}

// Ext returns the file extension of the format, "" for None
func (k Kind) Ext() string {
	return extensions[k]
}

// Detect picks the format from a file name extension
func Detect(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	for k, e := range extensions {
		if e == ext {
			return k
		}
	}
	return None
}

// Sniff picks the format from the first bytes of a stream
func Sniff(head []byte) Kind {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.kind
		}
	}
	return None
}

// StripExt removes a compression extension from name, if any
func StripExt(name string) string {
	if k := Detect(name); k != None {
		return name[:len(name)-len(k.Ext())]
	}
	return name
}

// Resolve turns Auto into a concrete format for the given file name
func Resolve(k Kind, name string) Kind {
	if k == Auto {
		return Detect(name)
	}
	return k
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w so that data written is compressed with k. Closing
// the returned writer flushes the compressed stream but does not close w.
func NewWriter(w io.Writer, k Kind) (io.WriteCloser, error) {
	switch k {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return xw, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("unsupported compression %q", k)
}

// NewReader wraps r so that reads return decompressed data
func NewReader(r io.Reader, k Kind) (io.ReadCloser, error) {
	switch k {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unsupported compression %q", k)
}

// NewSniffingReader detects the format from the stream's magic bytes
// and returns a decompressing reader along with the detected kind.
func NewSniffingReader(r io.Reader) (io.ReadCloser, Kind, error) {
	head := make([]byte, 6)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, None, err
	}
	head = head[:n]

	k := Sniff(head)
	rc, err := NewReader(io.MultiReader(bytes.NewReader(head), r), k)
	if err != nil {
		return nil, k, err
	}
	return rc, k, nil
}
