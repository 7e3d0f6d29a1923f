package main

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/services"
)

type importOptions struct {
	file        string
	name        string
	department  string
	description string
	actor       uuid.UUID
	dryRun      bool
}

type importResult struct {
	ChartID     *uuid.UUID               `json:"chart_id,omitempty"`
	Version     string                   `json:"version,omitempty"`
	ImportLogID *uuid.UUID               `json:"import_log_id,omitempty"`
	DryRun      bool                     `json:"dry_run"`
	Report      interchange.ImportReport `json:"report"`
	Positions   int                      `json:"positions"`
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions
	var actor string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a spreadsheet or JSON file as a draft chart",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(actor))
			if err != nil {
				return withCode(exitUsage, errors.Wrap(err, "invalid --actor"))
			}
			opts.actor = id
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Input file (.xlsx, .csv or .json) (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Chart name (default: file name)")
	cmd.Flags().StringVar(&opts.department, "department", "", "Department the chart belongs to (required)")
	cmd.Flags().StringVar(&opts.description, "description", "", "Chart description")
	cmd.Flags().StringVar(&actor, "actor", "", "Acting user UUID (required)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Build the chart and report without storing anything")

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("department")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func defaultChartName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runImport(cmd *cobra.Command, root *rootOptions, opts importOptions) error {
	content, err := readInput(opts.file)
	if err != nil {
		return err
	}
	if opts.name == "" {
		opts.name = defaultChartName(opts.file)
	}

	ctx, s, err := openSession(cmd.Context(), root, opts.dryRun)
	if err != nil {
		return err
	}
	defer s.Close()

	created, report, err := s.module.Imports.ImportFile(ctx, content, services.ImportMeta{
		ChartName:   opts.name,
		Department:  opts.department,
		Description: opts.description,
		Actor:       opts.actor,
		FileName:    filepath.Base(opts.file),
		DryRun:      opts.dryRun,
	})
	if err != nil {
		var svcErr *services.ServiceError
		if errors.As(err, &svcErr) && svcErr.Code == services.CodeImportRejected {
			_ = writeJSONLine(cmd.OutOrStdout(), importResult{DryRun: opts.dryRun, Report: report})
		}
		return serviceExit(errors.Wrap(err, "import"), exitDBWrite)
	}
	return writeJSONLine(cmd.OutOrStdout(), newImportResult(created, report, opts.dryRun))
}

func newImportResult(c *chart.Chart, report interchange.ImportReport, dryRun bool) importResult {
	out := importResult{DryRun: dryRun, Report: report}
	if c == nil {
		return out
	}
	out.Positions = len(c.Data.Positions)
	if !dryRun {
		id := c.ID
		out.ChartID = &id
		out.Version = c.Version
		if c.Provenance != nil {
			out.ImportLogID = c.Provenance.ImportLogID
		}
	}
	return out
}
