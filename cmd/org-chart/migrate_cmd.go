package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/org/infrastructure/persistence"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending org migrations to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				schema, err := persistence.SchemaSQL()
				if err != nil {
					return withCode(1, err)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), schema)
				return err
			}

			conf, err := loadConfig(root)
			if err != nil {
				return err
			}
			m, err := persistence.OpenMigrator(conf.Database.Opts)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer func() { _ = m.Close() }()

			applied, err := m.Up(cmd.Context())
			if err != nil {
				return withCode(exitDBWrite, errors.Wrap(err, "migrate"))
			}
			version, err := m.Version(cmd.Context())
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSONLine(cmd.OutOrStdout(), map[string]any{
				"schema_version": version,
				"applied":        applied,
			})
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the migration SQL instead of applying it")
	return cmd
}
