package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "org-chart",
		Short:         "Org chart import/export/template/migration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env", ".env.local"}, "Env files to load before reading configuration")

	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newTemplateCmd())
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
