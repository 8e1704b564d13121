package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/docsync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Display effective configuration after all overrides",
		Long:        "Print the configuration in effect after defaults, the config file, the environment, and flags are applied. Secrets are masked.",
		Annotations: map[string]string{tolerateConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	masked := config.Masked(cc.Cfg)

	if cc.Flags.JSON {
		return printJSON(os.Stdout, masked)
	}

	return config.RenderEffective(masked, os.Stdout)
}
