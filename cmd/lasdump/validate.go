package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dyuri/lasdump/pkg/lasdump"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <input.las>",
		Short: "Validate LAS file structure",
		Long: `Validate the structure of a LAS file.

Checks the public header for inconsistent sizes, offsets, scales, counts
and text fields. With --points every point record is decoded as well.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: runValidate,
	}
	cmd.Flags().Bool("strict", false, "Fail on warnings")
	cmd.Flags().Bool("points", false, "Decode every point record")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	strict, _ := cmd.Flags().GetBool("strict")
	points, _ := cmd.Flags().GetBool("points")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	v := newValidator(inputPath, strict)

	f, err := openInput(cmd, inputPath)
	switch {
	case errors.Is(err, lasdump.ErrIO):
		return err
	case err != nil:
		v.error("header: %v", err)
	default:
		defer f.Close()
		v.add(lasdump.Validate(f.Header(), int64(f.Size())))
		if points && !lasdump.HasErrors(v.issues) {
			v.checkPoints(cmd, f)
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := v.printJSON(out); err != nil {
			return err
		}
	} else {
		v.printResults(out)
	}

	if v.hasErrors() || (strict && v.hasWarnings()) {
		return fmt.Errorf("validation failed")
	}
	return nil
}

// validator collects the issues found in one file
type validator struct {
	file   string
	strict bool
	issues []lasdump.ValidationError
}

func newValidator(file string, strict bool) *validator {
	return &validator{file: file, strict: strict}
}

func (v *validator) add(issues []lasdump.ValidationError) {
	v.issues = append(v.issues, issues...)
}

func (v *validator) error(msg string, args ...interface{}) {
	v.issues = append(v.issues, lasdump.ValidationError{
		Field:   "file",
		Message: fmt.Sprintf(msg, args...),
		Level:   lasdump.LevelError,
	})
}

func (v *validator) filter(level string) []lasdump.ValidationError {
	var out []lasdump.ValidationError
	for _, i := range v.issues {
		if i.Level == level {
			out = append(out, i)
		}
	}
	return out
}

func (v *validator) hasErrors() bool {
	return lasdump.HasErrors(v.issues)
}

func (v *validator) hasWarnings() bool {
	return len(v.filter(lasdump.LevelWarning)) > 0
}

// checkPoints decodes every record, reporting the first failure
func (v *validator) checkPoints(cmd *cobra.Command, f *lasdump.File) {
	var n uint64
	err := f.Walk(cmd.Context(), 0, func(i uint64, p *lasdump.Point) error {
		n++
		return nil
	})
	if err != nil {
		v.error("points: decoded %d of %d: %v", n, f.Header().PointCount, err)
	}
}

func (v *validator) printResults(w io.Writer) {
	fmt.Fprintf(w, "Validating: %s\n", v.file)
	fmt.Fprintln(w, strings.Repeat("=", 50))

	errs := v.filter(lasdump.LevelError)
	warns := v.filter(lasdump.LevelWarning)

	if len(errs) == 0 && len(warns) == 0 {
		fmt.Fprintln(w, "✓ Valid LAS file - no issues found")
		return
	}

	if len(errs) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(w, "  ✗ %s\n", e)
		}
	}

	if len(warns) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(warns))
		for _, warn := range warns {
			fmt.Fprintf(w, "  ⚠ %s\n", warn)
		}
	}

	// Summary
	fmt.Fprintln(w)
	if len(errs) > 0 {
		fmt.Fprintf(w, "Validation failed: %d error(s)", len(errs))
		if len(warns) > 0 {
			fmt.Fprintf(w, ", %d warning(s)", len(warns))
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "Validation passed with %d warning(s)\n", len(warns))
		if v.strict {
			fmt.Fprintln(w, "(use without --strict to ignore warnings)")
		}
	}
}

func (v *validator) printJSON(w io.Writer) error {
	type issue struct {
		Field   string `json:"field"`
		Message string `json:"message"`
		Level   string `json:"level"`
	}
	issues := make([]issue, len(v.issues))
	for i, x := range v.issues {
		issues[i] = issue{x.Field, x.Message, x.Level}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"file":   v.file,
		"valid":  !v.hasErrors() && !(v.strict && v.hasWarnings()),
		"issues": issues,
	})
}
