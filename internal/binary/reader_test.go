package binary

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dyuri/lasdump/internal/lastest"
	"github.com/dyuri/lasdump/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// TestReadHeader tests that the header is decoded once and cached
func TestReadHeader(t *testing.T) {
	b := lastest.New(1, 2, 1)
	b.Add(lastest.Record{X: 1}, lastest.Record{X: 2})
	img := b.Bytes()

	reader := NewReader(bytes.NewReader(img), img)
	h1, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	h2, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("second ReadHeader failed: %v", err)
	}
	if h1 != h2 {
		t.Error("ReadHeader did not return the cached header")
	}
	if h1.PointCount != 2 {
		t.Errorf("PointCount = %d, want 2", h1.PointCount)
	}
}

func TestParse(t *testing.T) {
	img := sampleCloud(2500, 3)

	seq, err := NewReader(nil, img).Parse(context.Background())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if seq.Len() != 2500 {
		t.Fatalf("Got %d points, want 2500", seq.Len())
	}

	par, err := NewReader(bytes.NewReader(img), img, WithWorkers(4)).Parse(context.Background())
	if err != nil {
		t.Fatalf("parallel Parse failed: %v", err)
	}
	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("parallel result differs (-seq +par):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	truncated := sampleCloud(10, 0)
	truncated = truncated[:len(truncated)-1]

	bad := lastest.New(1, 2, 0)
	bad.Signature = "XXXX"

	unsupported := lastest.New(1, 2, 11)
	unsupported.RecordLength = 20

	tests := []struct {
		name string
		img  []byte
		want error
	}{
		{"truncated points", truncated, model.ErrUnexpectedEOF},
		{"bad signature", bad.Bytes(), model.ErrBadSignature},
		{"unsupported format", unsupported.Bytes(), model.ErrUnsupportedPointFormat},
		{"empty", nil, model.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, workers := range []int{1, 3} {
				_, err := NewReader(nil, tt.img, WithWorkers(workers)).Parse(context.Background())
				if !errors.Is(err, tt.want) {
					t.Errorf("workers=%d: err = %v, want %v", workers, err, tt.want)
				}
			}
		})
	}
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReader(nil, sampleCloud(100, 1)).Parse(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReaderLogsHeader(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	b := lastest.New(1, 2, 0)
	b.HeaderSize = 240
	img := b.Bytes()

	if _, err := NewReader(nil, img, WithLogger(logger)).ReadHeader(); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	var sawHeader, sawTrailing bool
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "decoded LAS header":
			sawHeader = e.Data["version"] == "1.2"
		case "ignoring trailing header bytes":
			sawTrailing = e.Data["unparsed"] == 13
		}
	}
	if !sawHeader || !sawTrailing {
		t.Errorf("missing debug entries: header=%v trailing=%v", sawHeader, sawTrailing)
	}
}

// The stream cursor must not depend on the stream's current position
func TestReaderStreamPosition(t *testing.T) {
	img := sampleCloud(3, 0)
	stream := bytes.NewReader(img)
	if _, err := stream.Seek(100, io.SeekStart); err != nil {
		t.Fatal(err)
	}

	cloud, err := NewReader(stream, img).Parse(context.Background())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cloud.Len() != 3 {
		t.Errorf("Got %d points, want 3", cloud.Len())
	}
}
