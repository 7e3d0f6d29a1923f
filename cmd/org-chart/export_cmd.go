package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/org/infrastructure/spreadsheet"
	"github.com/iota-uz/orgchart/modules/org/services"
)

type exportOptions struct {
	chartID uuid.UUID
	format  string
	output  string
	live    bool
	asOf    time.Time
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var opts exportOptions
	var chartID, asOf string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a chart as csv, xlsx or json",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(chartID))
			if err != nil {
				return withCode(exitUsage, errors.Wrap(err, "invalid --chart"))
			}
			opts.chartID = id
			opts.format = strings.ToLower(strings.TrimSpace(opts.format))
			switch opts.format {
			case "csv", "xlsx", "json":
			default:
				return withCode(exitUsage, errors.Errorf("unsupported --format: %s", opts.format))
			}
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return withCode(exitUsage, errors.Wrap(err, "invalid --as-of"))
				}
				opts.asOf = t
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&chartID, "chart", "", "Chart UUID (required)")
	cmd.Flags().StringVar(&opts.format, "format", "csv", "Output format: csv, xlsx or json")
	cmd.Flags().StringVar(&opts.output, "output", "", "Output file, or - for stdout (required)")
	cmd.Flags().BoolVar(&opts.live, "live", false, "Fill occupants from the assignment store")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Date for --live occupants (YYYY-MM-DD, default today)")

	_ = cmd.MarkFlagRequired("chart")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runExport(cmd *cobra.Command, root *rootOptions, opts exportOptions) error {
	ctx, s, err := openSession(cmd.Context(), root, false)
	if err != nil {
		return err
	}
	defer s.Close()

	exportOpts := services.ExportOptions{LiveOccupants: opts.live, AsOf: opts.asOf}

	var content []byte
	switch opts.format {
	case "json":
		doc, err := s.module.Exports.Document(ctx, opts.chartID, exportOpts)
		if err != nil {
			return serviceExit(errors.Wrap(err, "export"), exitDB)
		}
		if content, err = json.MarshalIndent(doc, "", "  "); err != nil {
			return withCode(1, errors.Wrap(err, "json marshal"))
		}
		content = append(content, '\n')
	case "xlsx":
		content, _, err = s.module.Exports.Render(ctx, opts.chartID, exportOpts, spreadsheet.WorkbookRenderer{})
	default:
		content, _, err = s.module.Exports.Render(ctx, opts.chartID, exportOpts, spreadsheet.CSVRenderer{})
	}
	if err != nil {
		return serviceExit(errors.Wrap(err, "export"), exitDB)
	}
	return writeOutput(cmd.OutOrStdout(), opts.output, content)
}
