package lasdump

import (
	"strconv"

	"github.com/dyuri/lasdump/internal/text"
	"github.com/pkg/xattr"
)

// Extended attribute names written by TagOutput
const (
	AttrSource  = "user.lasdump.source"
	AttrVersion = "user.lasdump.las_version"
	AttrFormat  = "user.lasdump.point_format"
	AttrPoints  = "user.lasdump.points"
	AttrFields  = "user.lasdump.fields"
)

// TagOutput records the provenance of a dump in extended attributes of
// the output file. Filesystems without xattr support return an error
// wrapping ENOTSUP.
func TagOutput(path string, f *File, written uint64, fields []Field) error {
	h := f.Header()

	attrs := []struct {
		name  string
		value string
	}{
		{AttrSource, f.Path},
		{AttrVersion, h.Version()},
		{AttrFormat, strconv.Itoa(int(h.PointFormat))},
		{AttrPoints, strconv.FormatUint(written, 10)},
		{AttrFields, text.JoinFields(fields)},
	}
	for _, a := range attrs {
		if err := xattr.Set(path, a.name, []byte(a.value)); err != nil {
			return err
		}
	}
	return nil
}

// ReadTags returns the lasdump attributes present on path
func ReadTags(path string) (map[string]string, error) {
	names, err := xattr.List(path)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string)
	for _, name := range names {
		switch name {
		case AttrSource, AttrVersion, AttrFormat, AttrPoints, AttrFields:
			v, err := xattr.Get(path, name)
			if err != nil {
				return nil, err
			}
			tags[name] = string(v)
		}
	}
	return tags, nil
}
