package main

import (
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/services"
)

type validateResult struct {
	FileName string                    `json:"file_name"`
	Valid    bool                      `json:"valid"`
	Issues   []services.FileIssue      `json:"issues"`
	Report   *interchange.ImportReport `json:"report,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// validateActor stands in for a user on the dry run; nothing is stored.
var validateActor = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func newValidateCmd(root *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an import file without storing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, root, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File to validate (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// runValidate applies the upload policy and, when the file passes, runs a
// dry-run import to surface row errors.
func runValidate(cmd *cobra.Command, root *rootOptions, file string) error {
	content, err := readInput(file)
	if err != nil {
		return err
	}
	ctx, s, err := openSession(cmd.Context(), root, true)
	if err != nil {
		return err
	}
	defer s.Close()

	name := filepath.Base(file)
	out := validateResult{FileName: name, Issues: s.module.Imports.ValidateFile(name, content)}
	if out.Issues == nil {
		out.Issues = []services.FileIssue{}
	}
	if len(out.Issues) == 0 {
		_, report, err := s.module.Imports.ImportFile(ctx, content, services.ImportMeta{
			ChartName:  defaultChartName(file),
			Department: "validate",
			Actor:      validateActor,
			FileName:   name,
			DryRun:     true,
		})
		out.Report = &report
		if err != nil {
			out.Error = err.Error()
		}
	}
	out.Valid = len(out.Issues) == 0 && out.Error == "" && (out.Report == nil || !out.Report.HasErrors())

	if err := writeJSONLine(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if !out.Valid {
		return withCode(exitValidation, errors.Errorf("%s is not importable", name))
	}
	return nil
}
