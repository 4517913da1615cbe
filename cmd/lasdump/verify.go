package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dyuri/lasdump/internal/codec"
	"github.com/dyuri/lasdump/internal/text"
	"github.com/dyuri/lasdump/pkg/lasdump"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// maxReported bounds the mismatches printed by verify
const maxReported = 10

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <input.las> <dump.txt>",
		Short: "Compare a text dump with the LAS file it came from",
		Long: `Read a text dump back and compare every value with the decoded points.

The column list is taken from the dump's "# fields:" comment unless
--fields is given. Dumps written with the default precision compare
exactly; use --tolerance for dumps written with fixed decimals.
Compressed dumps are detected from their content.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: runVerify,
	}
	cmd.Flags().String("fields", "", "Columns of the dump (default: from the dump, else x,y,z)")
	cmd.Flags().Float64("tolerance", 0, "Largest accepted absolute difference")
	cmd.Flags().Uint64("limit", 0, "The dump holds only the first N points (0: all)")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	inputPath, dumpPath := args[0], args[1]
	fieldList, _ := cmd.Flags().GetString("fields")
	tolerance, _ := cmd.Flags().GetFloat64("tolerance")
	limit, _ := cmd.Flags().GetUint64("limit")

	var fields []lasdump.Field
	if fieldList != "" {
		var err error
		if fields, err = lasdump.ParseFields(fieldList); err != nil {
			return usageError{fmt.Errorf("--fields: %w", err)}
		}
	}
	if tolerance < 0 || math.IsNaN(tolerance) {
		return usageError{fmt.Errorf("--tolerance must be a non-negative number, got %g", tolerance)}
	}

	f, err := openInput(cmd, inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	df, err := os.Open(dumpPath)
	if err != nil {
		return lasdump.NewIOError(err, "open dump %s", dumpPath)
	}
	defer df.Close()

	rc, kind, err := codec.NewSniffingReader(df)
	if err != nil {
		return lasdump.NewIOError(err, "read dump %s", dumpPath)
	}
	defer rc.Close()
	logrus.WithFields(logrus.Fields{"dump": dumpPath, "compression": kind}).Debug("verifying dump")

	res, err := compareDump(cmd, f, text.NewReader(rc, fields), tolerance, limit)
	if err != nil {
		return fmt.Errorf("%s: %w", dumpPath, err)
	}

	out := cmd.OutOrStdout()
	for _, m := range res.reported {
		fmt.Fprintf(out, "  ✗ %s\n", m)
	}
	if res.mismatches > 0 {
		return fmt.Errorf("%d of %d points differ", res.mismatches, res.points)
	}
	fmt.Fprintf(out, "✓ %d points match (%s)\n", res.points, text.JoinFields(res.fields))
	return nil
}

type verifyResult struct {
	points     uint64
	mismatches uint64
	reported   []string
	fields     []lasdump.Field
}

// compareDump walks the decoded points and the dump rows side by side
func compareDump(cmd *cobra.Command, f *lasdump.File, rd *text.Reader, tolerance float64, limit uint64) (*verifyResult, error) {
	res := &verifyResult{}
	err := f.Walk(cmd.Context(), limit, func(i uint64, p *lasdump.Point) error {
		row, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("dump ends after %d points, want %d", i, pointsWanted(f, limit))
		}
		if err != nil {
			return err
		}

		res.points++
		for c, field := range rd.Fields() {
			want := text.Value(p, field)
			if !valuesMatch(row[c], want, tolerance) {
				res.mismatches++
				if len(res.reported) < maxReported {
					res.reported = append(res.reported,
						fmt.Sprintf("point %d (line %d): %s = %v, want %v", i, rd.Line(), field, row[c], want))
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("dump has more than %d points", res.points)
	}
	res.fields = rd.Fields()
	return res, nil
}

// valuesMatch compares a dumped value with the decoded one. NaN matches
// only NaN and infinities match only themselves.
func valuesMatch(got, want, tolerance float64) bool {
	if math.IsNaN(got) || math.IsNaN(want) {
		return math.IsNaN(got) && math.IsNaN(want)
	}
	if got == want {
		return true
	}
	return math.Abs(got-want) <= tolerance
}

func pointsWanted(f *lasdump.File, limit uint64) uint64 {
	n := f.Header().PointCount
	if limit > 0 && limit < n {
		return limit
	}
	return n
}
