package main

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/spreadsheet"
)

func newTemplateCmd() *cobra.Command {
	var output, format string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the import template with example rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
			}
			rows := interchange.TemplateRows()

			var content []byte
			switch format {
			case "", "xlsx":
				b, err := spreadsheet.TemplateWorkbook(rows)
				if err != nil {
					return withCode(1, errors.Wrap(err, "build template"))
				}
				content = b
			case "csv":
				var buf bytes.Buffer
				if err := spreadsheet.WriteTemplateCSV(&buf, rows); err != nil {
					return withCode(1, errors.Wrap(err, "build template"))
				}
				content = buf.Bytes()
			default:
				return withCode(exitUsage, errors.Errorf("unsupported --format: %s", format))
			}
			return writeOutput(cmd.OutOrStdout(), output, content)
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Output file, or - for stdout (required)")
	cmd.Flags().StringVar(&format, "format", "", "csv or xlsx (default: from --output extension, else xlsx)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
