package text

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// fieldsPrefix starts the preamble comment that lists the columns
const fieldsPrefix = "fields: "

// Reader reads a point dump back into numeric rows
type Reader struct {
	scanner  *bufio.Scanner
	line     int
	fields   []Field
	explicit bool
	values   []float64
}

// NewReader creates a dump reader. When fields is empty the column list is
// taken from the dump's "# fields:" comment, falling back to DefaultFields.
func NewReader(r io.Reader, fields []Field) *Reader {
	rd := &Reader{
		scanner: bufio.NewScanner(r),
		fields:  DefaultFields,
	}
	if len(fields) > 0 {
		rd.fields = fields
		rd.explicit = true
	}
	return rd
}

// Fields returns the current column list
func (r *Reader) Fields() []Field {
	return r.fields
}

// Line returns the number of the last line read
func (r *Reader) Line() int {
	return r.line
}

// Next returns the values of the next point line, in Fields order.
// The returned slice is reused by the following call. At the end of
// input it returns io.EOF.
func (r *Reader) Next() ([]float64, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip empty lines and comments
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if err := r.readComment(line); err != nil {
				return nil, fmt.Errorf("line %d: %w", r.line, err)
			}
			continue
		}

		if err := r.parseLine(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return r.values, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return nil, io.EOF
}

// readComment picks up the column list from the preamble
func (r *Reader) readComment(line string) error {
	body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	if r.explicit || !strings.HasPrefix(body, fieldsPrefix) {
		return nil
	}

	fields, err := ParseFields(strings.TrimPrefix(body, fieldsPrefix))
	if err != nil {
		return fmt.Errorf("read fields comment: %w", err)
	}
	r.fields = fields
	return nil
}

func (r *Reader) parseLine(line string) error {
	parts := strings.Fields(line)
	if len(parts) != len(r.fields) {
		return fmt.Errorf("got %d columns, want %d (%s)", len(parts), len(r.fields), JoinFields(r.fields))
	}

	r.values = r.values[:0]
	for i, s := range parts {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("column %s: %w", r.fields[i], err)
		}
		r.values = append(r.values, v)
	}
	return nil
}
