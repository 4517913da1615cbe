package text

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/dyuri/lasdump/internal/model"
)

// Writer writes decoded points as a space separated text dump, one point
// per line.
type Writer struct {
	w         *bufio.Writer
	fields    []Field
	precision int
	buf       []byte
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithFields selects the columns written for each point
func WithFields(fields []Field) WriterOption {
	return func(w *Writer) {
		if len(fields) > 0 {
			w.fields = fields
		}
	}
}

// WithPrecision sets the number of decimals for floating point columns.
// A negative precision writes the shortest representation that parses
// back to the same float64.
func WithPrecision(p int) WriterOption {
	return func(w *Writer) {
		w.precision = p
	}
}

// NewWriter creates a new point dump writer. Output is buffered; call
// Flush when done.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	tw := &Writer{
		w:         bufio.NewWriterSize(w, 256<<10),
		fields:    DefaultFields,
		precision: -1,
		buf:       make([]byte, 0, 256),
	}
	for _, opt := range opts {
		opt(tw)
	}
	return tw
}

// Fields returns the columns this writer emits
func (w *Writer) Fields() []Field {
	return w.fields
}

// WriteComment writes a '#' comment line
func (w *Writer) WriteComment(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(w.w, "# "+format+"\n", args...)
	return err
}

// WritePreamble writes the comment block describing the dump: source
// file, header summary and the column list. The column line is what
// Reader uses to recover the field order.
func (w *Writer) WritePreamble(source string, h *model.PublicHeader) error {
	lines := []struct {
		format string
		args   []interface{}
	}{
		{"lasdump %s", []interface{}{source}},
		{"version %s, point format %d, %d points", []interface{}{h.Version(), h.PointFormat, h.PointCount}},
		{"scale %g %g %g", []interface{}{h.XScale, h.YScale, h.ZScale}},
		{"offset %g %g %g", []interface{}{h.XOffset, h.YOffset, h.ZOffset}},
		{"%s%s", []interface{}{fieldsPrefix, JoinFields(w.fields)}},
	}
	for _, l := range lines {
		if err := w.WriteComment(l.format, l.args...); err != nil {
			return err
		}
	}
	return nil
}

// WritePoint writes one point line
func (w *Writer) WritePoint(p *model.Point) error {
	b := w.buf[:0]
	for i, f := range w.fields {
		if i > 0 {
			b = append(b, ' ')
		}
		b = w.appendField(b, p, f)
	}
	b = append(b, '\n')
	w.buf = b

	_, err := w.w.Write(b)
	return err
}

// Write writes every point of the cloud
func (w *Writer) Write(cloud *model.PointCloud) error {
	for i := range cloud.Points {
		if err := w.WritePoint(&cloud.Points[i]); err != nil {
			return fmt.Errorf("write point %d: %w", i, err)
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) appendField(b []byte, p *model.Point, f Field) []byte {
	// legacy formats store whole degrees
	if f == FieldScanAngle && p.ScanAngle == 0 {
		return strconv.AppendInt(b, int64(p.ScanAngleRank), 10)
	}

	v := Value(p, f)
	if f.float() {
		return strconv.AppendFloat(b, v, 'f', w.precision, 64)
	}
	return strconv.AppendUint(b, uint64(v), 10)
}
