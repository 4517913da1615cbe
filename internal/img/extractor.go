// Package img extracts LAS files stored inside disk images (ISO9660,
// FAT32 or other filesystems supported by go-diskfs).
package img

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/dyuri/lasdump/internal/model"
	"github.com/sirupsen/logrus"
)

// signature is the LAS file signature every extracted file must start with
var signature = []byte("LASF")

// Extraction describes one extracted file
type Extraction struct {
	Image  string
	Source string
	Output string
	Size   int64
}

// ExtractLAS copies the LAS file at innerPath inside the image at imgPath
// to outputPath. partition selects the partition; 0 means the image holds
// a single filesystem with no partition table.
func ExtractLAS(imgPath, innerPath, outputPath string, partition int) (*Extraction, error) {
	d, err := diskfs.Open(imgPath, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "failed to open image %s", imgPath)
	}
	defer d.Close()

	fs, err := d.GetFilesystem(partition)
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "failed to read filesystem of %s (partition %d)", imgPath, partition)
	}

	src, err := fs.OpenFile(innerPath, os.O_RDONLY)
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "failed to open %s in %s", innerPath, imgPath)
	}
	defer src.Close()

	// FAT32 reads after a partial sector run to the end of the sector, so
	// the copy is bounded by the entry size
	size, err := fileSize(src)
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "failed to size %s in %s", innerPath, imgPath)
	}

	// Verify signature before creating any output
	head := make([]byte, len(signature))
	if err := checkSignature(src, head); err != nil {
		return nil, fmt.Errorf("%s in %s: %w", innerPath, imgPath, err)
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, model.NewError(model.ErrIO, err, "failed to create output directory")
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, model.NewError(model.ErrIO, err, "failed to create output file %s", outputPath)
	}

	n, err := io.CopyN(out, io.MultiReader(bytes.NewReader(head), src), size)
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("file ended after %d of %d bytes", n, size)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputPath)
		return nil, model.NewError(model.ErrIO, err, "failed to write %s", outputPath)
	}

	logrus.WithFields(logrus.Fields{
		"image":  imgPath,
		"source": innerPath,
		"output": outputPath,
		"bytes":  n,
	}).Debug("extracted LAS file")

	return &Extraction{
		Image:  imgPath,
		Source: innerPath,
		Output: outputPath,
		Size:   n,
	}, nil
}

// fileSize reports the size of f and rewinds it
func fileSize(f io.Seeker) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}

// checkSignature reads the first bytes of r into head and verifies them
func checkSignature(r io.Reader, head []byte) error {
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return model.NewError(model.ErrIO, err, "failed to read signature")
	}
	if n < len(signature) {
		return model.NewError(model.ErrUnexpectedEOF, nil, "file is %d bytes, shorter than the LAS signature", n)
	}
	if !bytes.Equal(head[:len(signature)], signature) {
		return model.NewError(model.ErrBadSignature, nil, "invalid LAS signature: %q (expected LASF)", head[:len(signature)])
	}
	return nil
}
