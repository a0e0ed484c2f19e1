package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/appdist/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if cc.Flags.JSON {
				return printJSON(cc.Out, cc.Cfg)
			}

			return config.RenderEffective(cc.Cfg, cc.Out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cc := mustCLIContext(cmd.Context())
			fmt.Fprintln(cc.Out, cc.Cfg.Path)
		},
	})

	return cmd
}
