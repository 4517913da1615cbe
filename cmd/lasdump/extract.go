package main

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/dyuri/lasdump/internal/img"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <image> <path-in-image>",
		Short: "Extract a LAS file from a disk image",
		Long: `Extract a LAS file stored inside a disk image.

ISO9660, FAT32 and the other filesystems go-diskfs reads are supported.
The file must start with the LAS signature. Without --output it is
written to the current directory under its own name.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: runExtract,
	}
	cmd.Flags().StringP("output", "o", "", "Output file")
	cmd.Flags().Int("partition", 0, "Partition number (0: image without partition table)")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	imagePath, innerPath := args[0], args[1]
	outputPath, _ := cmd.Flags().GetString("output")
	partition, _ := cmd.Flags().GetInt("partition")
	quiet, _ := cmd.Flags().GetBool("quiet")
	if partition < 0 {
		return usageError{fmt.Errorf("--partition must not be negative, got %d", partition)}
	}

	if outputPath == "" {
		outputPath = path.Base(filepath.ToSlash(innerPath))
	}

	ex, err := img.ExtractLAS(imagePath, innerPath, outputPath, partition)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Extracted %s from %s to %s (%s)\n",
			ex.Source, filepath.Base(ex.Image), ex.Output, formatBytes(ex.Size))
	}
	return nil
}
