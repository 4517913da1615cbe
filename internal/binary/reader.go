package binary

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dyuri/lasdump/internal/model"
	"github.com/sirupsen/logrus"
)

// Reader handles parsing of binary LAS files.
//
// The header is read through a stream cursor and the points through a
// region cursor over the same file contents.
type Reader struct {
	stream  io.ReadSeeker
	region  []byte
	log     logrus.FieldLogger
	workers int
	header  *model.PublicHeader
}

// Option configures a Reader
type Option func(*Reader)

// WithLogger sets the logger used by the reader and its point decoder
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

// WithWorkers enables ordered parallel point decoding in Parse
func WithWorkers(n int) Option {
	return func(r *Reader) {
		r.workers = n
	}
}

// NewReader creates a new binary LAS reader.
//
// stream is used for the header and may be nil, in which case the header
// is read from region as well. region must hold the complete file.
func NewReader(stream io.ReadSeeker, region []byte, opts ...Option) *Reader {
	r := &Reader{
		stream:  stream,
		region:  region,
		log:     logrus.StandardLogger(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.stream == nil {
		r.stream = bytes.NewReader(region)
	}
	return r
}

// ReadHeader reads and decodes the public header block
func (r *Reader) ReadHeader() (*model.PublicHeader, error) {
	if r.header != nil {
		return r.header, nil
	}

	h, err := DecodeHeader(NewStreamCursor(r.stream))
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"version":       h.Version(),
		"point_format":  h.PointFormat,
		"record_length": h.PointRecordLength,
		"points":        h.PointCount,
		"offset":        h.OffsetToPoints,
	}).Debug("decoded LAS header")

	if h.HeaderSize > uint16(len(h.Raw)) {
		r.log.WithField("unparsed", int(h.HeaderSize)-len(h.Raw)).Debug("ignoring trailing header bytes")
	}

	r.header = h
	return h, nil
}

// Points returns a decoder for the point records. The header is read
// first if needed.
func (r *Reader) Points() (*PointDecoder, error) {
	h, err := r.ReadHeader()
	if err != nil {
		return nil, err
	}

	d, err := NewPointDecoder(r.region, h)
	if err != nil {
		return nil, err
	}
	d.SetLogger(r.log)
	return d, nil
}

// Parse reads the header and every point the header declares
func (r *Reader) Parse(ctx context.Context) (*model.PointCloud, error) {
	d, err := r.Points()
	if err != nil {
		return nil, err
	}

	var points []model.Point
	if r.workers > 1 {
		points, err = d.DecodeParallel(ctx, d.Count(), r.workers)
	} else {
		points, err = d.DecodeContext(ctx, d.Count())
	}
	if err != nil {
		return nil, fmt.Errorf("read points: %w", err)
	}

	return &model.PointCloud{Header: d.Header(), Points: points}, nil
}
