package img

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/dyuri/lasdump/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fat32Image writes files into a fresh FAT32 image without a partition
// table and returns its path
func fat32Image(t *testing.T, files map[string][]byte) string {
	t.Helper()
	imgPath := filepath.Join(t.TempDir(), "disk.img")

	d, err := diskfs.Create(imgPath, 10*1024*1024, diskfs.Raw, diskfs.SectorSizeDefault)
	require.NoError(t, err)
	defer d.Close()

	fs, err := d.CreateFilesystem(disk.FilesystemSpec{Partition: 0, FSType: filesystem.TypeFat32})
	require.NoError(t, err)

	for name, data := range files {
		f, err := fs.OpenFile(name, os.O_CREATE|os.O_RDWR)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	return imgPath
}

// lasBytes returns size bytes starting with the LAS signature
func lasBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, "LASF")
	for i := 4; i < size; i++ {
		b[i] = byte(i % 251)
	}
	return b
}

func TestExtractLAS(t *testing.T) {
	// Header only files of 1.0 to 1.4 are 227 to 375 bytes, below one sector
	for _, size := range []int{4, 100, 227, 375, 511, 512, 513, 1000, 10000} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			want := lasBytes(size)
			imgPath := fat32Image(t, map[string][]byte{"/CLOUD.LAS": want})
			out := filepath.Join(t.TempDir(), "sub", "cloud.las")

			ex, err := ExtractLAS(imgPath, "/CLOUD.LAS", out, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(size), ex.Size)
			assert.Equal(t, out, ex.Output)

			got, err := os.ReadFile(out)
			require.NoError(t, err)
			if len(got) != len(want) {
				t.Fatalf("extracted %d bytes, want %d", len(got), len(want))
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestExtractLASRejectsNonLAS(t *testing.T) {
	imgPath := fat32Image(t, map[string][]byte{
		"/NOTES.TXT": []byte("hello, not a las file\n"),
		"/TINY.LAS":  []byte("LA"),
	})

	tests := []struct {
		inner string
		want  error
	}{
		{"/NOTES.TXT", model.ErrBadSignature},
		{"/TINY.LAS", model.ErrUnexpectedEOF},
		{"/MISSING.LAS", model.ErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.inner, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.las")
			_, err := ExtractLAS(imgPath, tt.inner, out, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("output file exists after failed extraction")
			}
		})
	}
}

func TestCheckSignature(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"las", "LASF rest of header", nil},
		{"exact", "LASF", nil},
		{"wrong", "PK\x03\x04", model.ErrBadSignature},
		{"short", "LA", model.ErrUnexpectedEOF},
		{"empty", "", model.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head := make([]byte, len(signature))
			err := checkSignature(strings.NewReader(tt.input), head)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("checkSignature failed: %v", err)
				}
				if string(head) != "LASF" {
					t.Errorf("head = %q, want LASF", head)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExtractMissingImage(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.las")

	_, err := ExtractLAS(filepath.Join(dir, "missing.iso"), "/CLOUD.LAS", out, 0)
	if !errors.Is(err, model.ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output file exists after failed extraction")
	}
}
