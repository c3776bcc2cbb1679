package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sfc-gh-svemuri/feedcheck/internal/harness"
)

// FileValidation holds the schema violations found in one scenario file.
type FileValidation struct {
	File       string   `json:"file"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// ValidationResult holds validation results for a scenario directory.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios-dir>",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML files against the scenario schema.

Checks structure, field types, and enum values without executing
anything. Faster than test for editing feedback.

Exit codes:
  0 - All scenario files valid
  1 - One or more files violate the schema
  2 - Command error (directory not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(scenarioFiles) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files in %s", scenariosDir))
	}

	result := ValidationResult{Valid: true}
	invalid := 0
	for _, file := range scenarioFiles {
		formatter.VerboseLog("validating %s", file)
		violations, err := harness.ValidateScenarioFile(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to validate %s", file), err)
		}
		fv := FileValidation{File: file, Valid: len(violations) == 0, Violations: violations}
		if !fv.Valid {
			result.Valid = false
			invalid++
		}
		result.Files = append(result.Files, fv)
	}

	if result.Valid {
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %d scenario file(s) valid\n", len(result.Files))
		return nil
	}

	if opts.Format == "json" {
		_ = formatter.Error("E_SCHEMA", fmt.Sprintf("%d file(s) violate the schema", invalid), result)
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", fv.File)
			for _, v := range fv.Violations {
				fmt.Fprintf(formatter.Writer, "  %s\n", v)
			}
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d file(s)", invalid))
}
