package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dyuri/lasdump/internal/stats"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <input.las>",
		Short: "Summarise the points of a LAS file",
		Long: `Decode the points of a LAS file and print summary statistics.

Reports min, max, mean, standard deviation and median per axis and for
intensity, return number and classification histograms, the principal
axis ratios of the cloud and any point outside the header bounding box.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: runStats,
	}
	cmd.Flags().Int("sample", 0, "Summarise at most this many evenly spaced points (0: all)")
	cmd.Flags().Uint64("limit", 0, "Decode at most this many points (0: all)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	sample, _ := cmd.Flags().GetInt("sample")
	limit, _ := cmd.Flags().GetUint64("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if sample < 0 {
		return usageError{fmt.Errorf("--sample must not be negative, got %d", sample)}
	}

	f, err := openInput(cmd, inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	cloud, err := f.ReadPoints(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("%s: %w", inputPath, err)
	}

	points := stats.Sample(cloud.Points, sample)
	s := stats.Summarize(points)
	bounds := s.CheckBounds(f.Header())
	for _, b := range bounds {
		logrus.WithField("file", inputPath).Warn(b)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"file":    inputPath,
			"decoded": cloud.Len(),
			"summary": s,
			"bounds":  bounds,
		})
	}
	outputStatsText(out, inputPath, cloud.Len(), s, bounds)
	return nil
}

func outputStatsText(w io.Writer, path string, decoded int, s *stats.Summary, bounds []string) {
	fmt.Fprintf(w, "Statistics: %s\n", path)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	if s.Count == decoded {
		fmt.Fprintf(w, "Points:             %d\n", s.Count)
	} else {
		fmt.Fprintf(w, "Points:             %d (sampled from %d)\n", s.Count, decoded)
	}
	if s.Count == 0 {
		return
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %-10s %14s %14s %14s %14s %14s\n", "", "min", "max", "mean", "stddev", "median")
	for _, a := range []struct {
		name string
		axis stats.Axis
	}{{"x", s.X}, {"y", s.Y}, {"z", s.Z}, {"intensity", s.Intensity}} {
		fmt.Fprintf(w, "  %-10s %14.6g %14.6g %14.6g %14.6g %14.6g\n",
			a.name, a.axis.Min, a.axis.Max, a.axis.Mean, a.axis.StdDev, a.axis.Median)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Returns:")
	for _, k := range stats.SortedKeys(s.Returns) {
		fmt.Fprintf(w, "  %-3d %d\n", k, s.Returns[k])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Classification:")
	for _, k := range stats.SortedKeys(s.Classes) {
		fmt.Fprintf(w, "  %-3d %d\n", k, s.Classes[k])
	}

	if s.Shape != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Shape:")
		fmt.Fprintf(w, "  Minor/Major:      %.4f\n", s.Shape.MinorRatio)
		fmt.Fprintf(w, "  Middle/Major:     %.4f\n", s.Shape.MiddleRatio)
	}

	if len(bounds) > 0 {
		fmt.Fprintf(w, "\nOutside header bounds (%d):\n", len(bounds))
		for _, b := range bounds {
			fmt.Fprintf(w, "  ⚠ %s\n", b)
		}
	}
}
