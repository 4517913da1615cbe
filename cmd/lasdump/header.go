package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/djherbis/times"
	"github.com/dyuri/lasdump/internal/codec"
	"github.com/dyuri/lasdump/pkg/lasdump"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newHeaderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header <input.las>",
		Short: "Display the public header of a LAS file",
		Long: `Display the public header block of a LAS file.

Shows version, point format, counts, scale, offset and bounding box
without decoding any point.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: runHeader,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().Bool("brief", false, "Show only summary")
	return cmd
}

func runHeader(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")
	brief, _ := cmd.Flags().GetBool("brief")

	f, err := openInput(cmd, inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ft := fileTimes(inputPath)

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputHeaderJSON(out, f, ft)
	}
	outputHeaderText(out, f, ft, brief)
	return nil
}

// fileTimestamps holds the filesystem times reported next to the header
type fileTimestamps struct {
	Modified time.Time  `json:"modified"`
	Changed  *time.Time `json:"changed,omitempty"`
	Birth    *time.Time `json:"birth,omitempty"`
}

func fileTimes(path string) *fileTimestamps {
	ts, err := times.Stat(path)
	if err != nil {
		logrus.WithError(err).Debug("no file times")
		return nil
	}
	ft := &fileTimestamps{Modified: ts.ModTime()}
	if ts.HasChangeTime() {
		t := ts.ChangeTime()
		ft.Changed = &t
	}
	if ts.HasBirthTime() {
		t := ts.BirthTime()
		ft.Birth = &t
	}
	return ft
}

func outputHeaderText(w io.Writer, f *lasdump.File, ft *fileTimestamps, brief bool) {
	h := f.Header()
	if brief {
		fmt.Fprintf(w, "%s: LAS %s format=%d points=%d length=%d\n",
			f.Path, h.Version(), h.PointFormat, h.PointCount, h.PointRecordLength)
		return
	}

	fmt.Fprintf(w, "LAS File: %s\n", f.Path)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Header:")
	fmt.Fprintf(w, "  Version:          %s\n", h.Version())
	fmt.Fprintf(w, "  System ID:        %s\n", h.SystemID)
	fmt.Fprintf(w, "  Software:         %s\n", h.GeneratingSoftware)
	fmt.Fprintf(w, "  Created:          %s (day/year)\n", h.FileCreation())
	fmt.Fprintf(w, "  File Source ID:   %d\n", h.FileSourceID)
	fmt.Fprintf(w, "  Project ID:       %s\n", h.ProjectID)
	fmt.Fprintf(w, "  Global Encoding:  0x%04x (%s)\n", h.GlobalEncoding, gpsTimeKind(h))
	fmt.Fprintf(w, "  Header Size:      %d bytes\n", h.HeaderSize)
	fmt.Fprintf(w, "  VLRs:             %d\n", h.NumberOfVLRs)
	if h.AtLeast(1, 4) {
		fmt.Fprintf(w, "  EVLRs:            %d\n", h.NumberOfEVLRs)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Points:")
	fmt.Fprintf(w, "  Format:           %d\n", h.PointFormat)
	fmt.Fprintf(w, "  Record Length:    %d bytes\n", h.PointRecordLength)
	fmt.Fprintf(w, "  Offset:           %d\n", h.OffsetToPoints)
	fmt.Fprintf(w, "  Count:            %d\n", h.PointCount)
	if counts := returnCounts(h); len(counts) > 0 {
		parts := make([]string, len(counts))
		for i, c := range counts {
			parts[i] = fmt.Sprint(c)
		}
		fmt.Fprintf(w, "  By Return:        %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Coordinates:")
	fmt.Fprintf(w, "  Scale:            %g %g %g\n", h.XScale, h.YScale, h.ZScale)
	fmt.Fprintf(w, "  Offset:           %g %g %g\n", h.XOffset, h.YOffset, h.ZOffset)
	fmt.Fprintf(w, "  Min:              %g %g %g\n", h.MinX, h.MinY, h.MinZ)
	fmt.Fprintf(w, "  Max:              %g %g %g\n", h.MaxX, h.MaxY, h.MaxZ)
	fmt.Fprintln(w)

	size := int64(f.Size())
	fmt.Fprintf(w, "File Size:          %s (%d bytes)\n", formatBytes(size), size)
	if f.Compression != codec.None {
		fmt.Fprintf(w, "Compression:        %s\n", f.Compression)
	}
	if ft != nil {
		fmt.Fprintf(w, "Modified:           %s\n", ft.Modified.Format(time.RFC3339))
		if ft.Birth != nil {
			fmt.Fprintf(w, "Born:               %s\n", ft.Birth.Format(time.RFC3339))
		}
	}
}

func outputHeaderJSON(w io.Writer, f *lasdump.File, ft *fileTimestamps) error {
	h := f.Header()
	info := map[string]interface{}{
		"file": f.Path,
		"header": map[string]interface{}{
			"version":                    h.Version(),
			"file_source_id":             h.FileSourceID,
			"global_encoding":            h.GlobalEncoding,
			"project_id":                 h.ProjectID.String(),
			"system_identifier":          h.SystemID,
			"generating_software":        h.GeneratingSoftware,
			"file_creation_day":          h.FileCreationDay,
			"file_creation_year":         h.FileCreationYear,
			"header_size":                h.HeaderSize,
			"offset_to_point_data":       h.OffsetToPoints,
			"number_of_vlrs":             h.NumberOfVLRs,
			"point_data_record_format":   h.PointFormat,
			"point_data_record_length":   h.PointRecordLength,
			"number_of_point_records":    h.PointCount,
			"number_of_points_by_return": returnCounts(h),
			"scale":                      [3]float64{h.XScale, h.YScale, h.ZScale},
			"offset":                     [3]float64{h.XOffset, h.YOffset, h.ZOffset},
			"min":                        [3]float64{h.MinX, h.MinY, h.MinZ},
			"max":                        [3]float64{h.MaxX, h.MaxY, h.MaxZ},
		},
		"file_size":   f.Size(),
		"compression": f.Compression,
	}
	if ft != nil {
		info["times"] = ft
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

// returnCounts returns the per-return point counts the header version defines
func returnCounts(h *lasdump.Header) []uint64 {
	if h.AtLeast(1, 4) {
		return h.ReturnCounts[:]
	}
	counts := make([]uint64, len(h.LegacyReturnCounts))
	for i, c := range h.LegacyReturnCounts {
		counts[i] = uint64(c)
	}
	return counts
}

func gpsTimeKind(h *lasdump.Header) string {
	if h.AdjustedGPSTime() {
		return "adjusted standard GPS time"
	}
	return "GPS week time"
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
