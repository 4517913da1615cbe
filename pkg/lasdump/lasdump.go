// Package lasdump provides functions for reading ASPRS LAS point cloud
// files and dumping them as text.
//
// This package can be used as a library to decode headers and points
// programmatically.
//
// Example usage:
//
//	f, err := lasdump.Open("cloud.las")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	out, _ := os.Create("cloud.txt")
//	defer out.Close()
//	lasdump.WriteText(ctx, out, f, lasdump.DefaultTextOptions())
package lasdump

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dyuri/lasdump/internal/binary"
	"github.com/dyuri/lasdump/internal/codec"
	"github.com/dyuri/lasdump/internal/mmap"
	"github.com/dyuri/lasdump/internal/model"
	"github.com/dyuri/lasdump/internal/text"
	"github.com/sirupsen/logrus"
)

// Re-exported model types
type (
	Header     = model.PublicHeader
	Point      = model.Point
	PointCloud = model.PointCloud
	Extras     = model.Extras
	Field      = text.Field
)

// File is an open LAS file: its decoded header and a pinned view of its
// bytes. Points are decoded on demand.
type File struct {
	Path        string
	Compression codec.Kind

	region *mmap.Region
	reader *binary.Reader
	header *Header
	log    logrus.FieldLogger
}

type options struct {
	lock    bool
	workers int
	log     logrus.FieldLogger
}

// Option configures Open
type Option func(*options)

// WithoutLock skips the shared lock on the input file
func WithoutLock() Option {
	return func(o *options) {
		o.lock = false
	}
}

// WithWorkers decodes points with n goroutines in ReadPoints
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithLogger sets the logger used while opening and decoding
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Open opens a LAS file and decodes its header.
//
// Inputs named *.gz, *.zst, *.xz or *.lz4 are decompressed into memory;
// anything else is memory-mapped.
func Open(path string, opts ...Option) (*File, error) {
	o := options{lock: true, workers: 1, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	f := &File{Path: path, Compression: codec.Detect(path), log: o.log}

	var err error
	if f.Compression != codec.None {
		f.region, err = inflate(path, f.Compression)
	} else {
		mopts := []mmap.Option{mmap.WithLogger(o.log)}
		if !o.lock {
			mopts = append(mopts, mmap.WithoutLock())
		}
		f.region, err = mmap.Open(path, mopts...)
	}
	if err != nil {
		return nil, err
	}

	f.reader = binary.NewReader(f.region.Stream(), f.region.Bytes(),
		binary.WithLogger(o.log.WithField("file", path)),
		binary.WithWorkers(o.workers))

	f.header, err = f.reader.ReadHeader()
	if err != nil {
		f.region.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// inflate reads a compressed input fully into memory
func inflate(path string, k codec.Kind) (*mmap.Region, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "open %s", path)
	}
	defer in.Close()

	r, err := codec.NewReader(in, k)
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "decompress %s", path)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, model.NewError(model.ErrIO, err, "decompress %s", path)
	}
	return mmap.FromBytes(path, buf.Bytes()), nil
}

// Header returns the decoded public header
func (f *File) Header() *Header {
	return f.header
}

// Size returns the size in bytes of the (decompressed) file contents
func (f *File) Size() int {
	return f.region.Len()
}

// Mapped reports whether the contents are memory-mapped
func (f *File) Mapped() bool {
	return f.region.Mapped()
}

// Points returns a decoder for random or sequential access to points
func (f *File) Points() (*binary.PointDecoder, error) {
	return f.reader.Points()
}

// ReadPoints decodes the first limit points, or all of them when limit
// is 0 or exceeds the header's count.
func (f *File) ReadPoints(ctx context.Context, limit uint64) (*PointCloud, error) {
	if limit == 0 || limit >= f.header.PointCount {
		return f.reader.Parse(ctx)
	}

	d, err := f.reader.Points()
	if err != nil {
		return nil, err
	}
	points, err := d.DecodeContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read points: %w", err)
	}
	return &PointCloud{Header: f.header, Points: points}, nil
}

// Walk streams the first limit points (all when 0) to fn in file order.
// The point passed to fn is reused between calls.
func (f *File) Walk(ctx context.Context, limit uint64, fn func(i uint64, p *Point) error) error {
	d, err := f.reader.Points()
	if err != nil {
		return err
	}
	n := d.Count()
	if limit > 0 && limit < n {
		n = limit
	}
	return d.Walk(ctx, n, fn)
}

// Close releases the file
func (f *File) Close() error {
	return f.region.Close()
}

// ParseHeader decodes the public header from a seekable stream
func ParseHeader(r io.ReadSeeker) (*Header, error) {
	return binary.DecodeHeader(binary.NewStreamCursor(r))
}

// DecodePoints decodes the first n points described by h from the
// complete file contents in data.
func DecodePoints(data []byte, h *Header, n uint64) ([]Point, error) {
	d, err := binary.NewPointDecoder(data, h)
	if err != nil {
		return nil, err
	}
	return d.Decode(n)
}

// ParseFields parses a comma separated list of dump columns
func ParseFields(s string) ([]Field, error) {
	return text.ParseFields(s)
}

// TextOptions controls WriteText
type TextOptions struct {
	Fields    []Field // default x y z
	Precision int     // decimals for float columns; negative for shortest round-trip
	Comments  bool    // write a '#' preamble
	Limit     uint64  // 0 writes every point
	Source    string  // name recorded in the preamble, default f.Path
}

// DefaultTextOptions returns the options used by the CLI
func DefaultTextOptions() TextOptions {
	return TextOptions{Fields: text.DefaultFields, Precision: -1}
}

// WriteText streams the points of f to w, one line per point, and
// returns the number of points written.
func WriteText(ctx context.Context, w io.Writer, f *File, opts TextOptions) (uint64, error) {
	tw := text.NewWriter(w, text.WithFields(opts.Fields), text.WithPrecision(opts.Precision))

	if opts.Comments {
		source := opts.Source
		if source == "" {
			source = f.Path
		}
		if err := tw.WritePreamble(source, f.header); err != nil {
			return 0, model.NewError(model.ErrIO, err, "write preamble")
		}
	}

	var written uint64
	err := f.Walk(ctx, opts.Limit, func(i uint64, p *Point) error {
		if err := tw.WritePoint(p); err != nil {
			return model.NewError(model.ErrIO, err, "write point %d", i)
		}
		written++
		return nil
	})
	if ferr := tw.Flush(); err == nil && ferr != nil {
		err = model.NewError(model.ErrIO, ferr, "flush output")
	}
	return written, err
}
