package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dyuri/lasdump/internal/codec"
	"github.com/dyuri/lasdump/pkg/lasdump"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// usageError marks command line mistakes, which exit with exitUsage
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// usageArgs wraps a positional argument validator so its failures are
// reported as usage errors
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// cobra falls back to os.Args on a nil slice
	if args == nil {
		args = []string{}
	}

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(stderr, "Error:", err)
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.CommandPath())
		return exitUsage
	}
	return exitError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lasdump <input.las> [output.txt]",
		Short: "Dump ASPRS LAS point clouds as text",
		Long: `lasdump is a tool for inspecting LiDAR point clouds in the ASPRS LAS format.

By default it decodes every point of the input file and writes one line per
point to the output file. If the output is omitted it is derived from the
input name with a .txt extension; "-" writes to stdout.

LAS versions 1.0 to 1.4 and point formats 0 to 10 are supported. Inputs
compressed with gzip, zstd, xz or lz4 are read transparently.`,
		Args:              usageArgs(cobra.RangeArgs(1, 2)),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
		RunE:              runDump,
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	// Accept --no_lock as well as --no-lock
	root.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	pf := root.PersistentFlags()
	pf.BoolP("verbose", "v", false, "Log debug information to stderr")
	pf.BoolP("quiet", "q", false, "Only log errors")
	pf.Bool("no-lock", false, "Do not take a shared lock on the input file")
	pf.Int("workers", 1, "Decode points with this many goroutines")

	addDumpFlags(root.Flags())

	root.AddCommand(newHeaderCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// addDumpFlags registers the flags that shape a text dump
func addDumpFlags(f *pflag.FlagSet) {
	f.String("fields", "x,y,z", "Comma separated columns to write, or \"all\"")
	f.Int("precision", -1, "Decimals for floating point columns (-1: shortest exact)")
	f.Bool("comments", false, "Start the dump with '#' comment lines describing it")
	f.Uint64("limit", 0, "Write at most this many points (0: all)")
	f.String("compress", "auto", "Compress the output: auto, none, gzip, zstd, xz, lz4")
	f.Bool("xattr", false, "Record provenance in extended attributes of the output")
}

// setupLogging configures the standard logrus logger from the global flags
func setupLogging(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	if verbose && quiet {
		return usageError{errors.New("--verbose and --quiet are mutually exclusive")}
	}

	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case verbose:
		logrus.SetLevel(logrus.DebugLevel)
	case quiet:
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.WarnLevel)
	}
	return nil
}

// openInput opens a LAS file honouring the global flags
func openInput(cmd *cobra.Command, path string) (*lasdump.File, error) {
	noLock, _ := cmd.Flags().GetBool("no-lock")
	workers, _ := cmd.Flags().GetInt("workers")

	opts := []lasdump.Option{lasdump.WithWorkers(workers)}
	if noLock {
		opts = append(opts, lasdump.WithoutLock())
	}
	return lasdump.Open(path, opts...)
}

// defaultOutput derives the dump name from the input: the compression
// suffix and the .las extension are replaced by .txt
func defaultOutput(input string, k codec.Kind) string {
	base := codec.StripExt(input)
	switch ext := filepath.Ext(base); strings.ToLower(ext) {
	case ".las", ".laz":
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".txt" + k.Ext()
}

func runDump(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	fieldList, _ := cmd.Flags().GetString("fields")
	precision, _ := cmd.Flags().GetInt("precision")
	comments, _ := cmd.Flags().GetBool("comments")
	limit, _ := cmd.Flags().GetUint64("limit")
	compress, _ := cmd.Flags().GetString("compress")
	tag, _ := cmd.Flags().GetBool("xattr")
	quiet, _ := cmd.Flags().GetBool("quiet")

	fields, err := lasdump.ParseFields(fieldList)
	if err != nil {
		return usageError{fmt.Errorf("--fields: %w", err)}
	}
	kind, err := codec.ParseKind(compress)
	if err != nil {
		return usageError{fmt.Errorf("--compress: %w", err)}
	}

	// Open input file
	f, err := openInput(cmd, inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// Determine output
	var outputPath string
	if len(args) > 1 {
		outputPath = args[1]
	} else {
		if kind == codec.Auto {
			kind = codec.None
		}
		outputPath = defaultOutput(inputPath, kind)
	}
	if outputPath != "-" {
		kind = codec.Resolve(kind, outputPath)
	} else if kind == codec.Auto {
		kind = codec.None
	}

	opts := lasdump.TextOptions{
		Fields:    fields,
		Precision: precision,
		Comments:  comments,
		Limit:     limit,
		Source:    filepath.Base(inputPath),
	}

	written, err := writeDump(cmd, f, outputPath, kind, opts)
	if err != nil {
		return err
	}

	if tag && outputPath != "-" {
		if err := lasdump.TagOutput(outputPath, f, written, fields); err != nil {
			logrus.WithError(err).Warn("could not set extended attributes on output")
		}
	}

	if !quiet && outputPath != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d points from %s to %s\n", written, inputPath, outputPath)
	}
	return nil
}

// writeDump writes the text dump to outputPath ("-" for stdout). A
// partially written output file is removed on failure.
func writeDump(cmd *cobra.Command, f *lasdump.File, outputPath string, kind codec.Kind, opts lasdump.TextOptions) (uint64, error) {
	var out io.Writer = cmd.OutOrStdout()
	var file *os.File
	if outputPath != "-" {
		var err error
		file, err = os.Create(outputPath)
		if err != nil {
			return 0, lasdump.NewIOError(err, "create output file %s", outputPath)
		}
		out = file
	}

	fail := func(err error) (uint64, error) {
		if file != nil {
			file.Close()
			os.Remove(outputPath)
		}
		return 0, err
	}

	zw, err := codec.NewWriter(out, kind)
	if err != nil {
		return fail(err)
	}

	logrus.WithFields(logrus.Fields{
		"input":       f.Path,
		"output":      outputPath,
		"compression": kind,
		"points":      f.Header().PointCount,
	}).Debug("writing dump")

	written, err := lasdump.WriteText(cmd.Context(), zw, f, opts)
	if err != nil {
		zw.Close()
		return fail(fmt.Errorf("write %s: %w", outputPath, err))
	}
	if err := zw.Close(); err != nil {
		return fail(lasdump.NewIOError(err, "finish %s", outputPath))
	}
	if file != nil {
		if err := file.Close(); err != nil {
			os.Remove(outputPath)
			return 0, lasdump.NewIOError(err, "close %s", outputPath)
		}
	}
	return written, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "lasdump version %s\n", version)
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "built: %s\n", date)
		},
	}
}
