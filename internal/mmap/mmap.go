// Package mmap acquires a pinned, read-only byte view of a file.
//
// On Linux, macOS and the BSDs the file is memory-mapped and held under
// a shared flock while the region is open. Elsewhere it is read into
// memory.
package mmap

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dyuri/lasdump/internal/model"
	"github.com/sirupsen/logrus"
)

// Region is an immutable view of a file's contents
type Region struct {
	data   []byte
	file   *os.File
	name   string
	mapped bool
	locked bool
}

type options struct {
	lock bool
	log  logrus.FieldLogger
}

// Option configures Open
type Option func(*options)

// WithoutLock skips the shared file lock
func WithoutLock() Option {
	return func(o *options) {
		o.lock = false
	}
}

// WithLogger sets the logger for lock and mapping diagnostics
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Open maps path read-only. The caller must Close the region once no
// decoded data refers to it any more.
func Open(path string, opts ...Option) (*Region, error) {
	o := options{lock: true, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "open %s", path)
	}

	r := &Region{file: f, name: path}
	if o.lock {
		if err := lockShared(f); err != nil {
			f.Close()
			return nil, model.NewError(model.ErrIO, err, "lock %s", path)
		}
		r.locked = true
	}

	stat, err := f.Stat()
	if err != nil {
		r.Close()
		return nil, model.NewError(model.ErrIO, err, "stat %s", path)
	}
	size := stat.Size()
	if size > math.MaxInt {
		r.Close()
		return nil, model.NewError(model.ErrIO, nil, "%s is too large to map (%d bytes)", path, size)
	}

	// A zero-length mapping is invalid; an empty file is an empty region
	if size > 0 {
		data, mapped, err := mapFile(f, int(size))
		if err != nil {
			r.Close()
			return nil, model.NewError(model.ErrIO, err, "map %s", path)
		}
		r.data, r.mapped = data, mapped
	}

	o.log.WithFields(logrus.Fields{
		"file":   path,
		"size":   size,
		"mapped": r.mapped,
		"locked": r.locked,
	}).Debug("opened input region")

	return r, nil
}

// FromBytes wraps an in-memory buffer, e.g. a decompressed input
func FromBytes(name string, b []byte) *Region {
	return &Region{data: b, name: name}
}

// Bytes returns the region contents. The slice must not be modified and
// is invalid after Close.
func (r *Region) Bytes() []byte {
	return r.data
}

// Len returns the region size in bytes
func (r *Region) Len() int {
	return len(r.data)
}

// Name returns the path or label the region was created with
func (r *Region) Name() string {
	return r.name
}

// Mapped reports whether the region is backed by a memory map
func (r *Region) Mapped() bool {
	return r.mapped
}

// Stream returns a seekable stream over the same contents. It reads the
// underlying file when there is one.
func (r *Region) Stream() io.ReadSeeker {
	if r.file != nil {
		return io.NewSectionReader(r.file, 0, int64(len(r.data)))
	}
	return bytes.NewReader(r.data)
}

// Close unmaps the region, releases the lock and closes the file
func (r *Region) Close() error {
	var errs []error
	if r.mapped {
		if err := unmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		r.mapped = false
	}
	r.data = nil

	if r.file != nil {
		if r.locked {
			if err := unlock(r.file); err != nil {
				errs = append(errs, fmt.Errorf("unlock: %w", err))
			}
			r.locked = false
		}
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		r.file = nil
	}

	if len(errs) > 0 {
		return model.NewError(model.ErrIO, errs[0], "release %s", r.name)
	}
	return nil
}
