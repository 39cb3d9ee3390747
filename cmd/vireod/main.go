// Command vireod runs the link manager's policy daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vireonet/vireo/pkg/daemon"
)

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:          "vireod",
		Short:        "network link policy daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := daemon.LoadConfig(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			ctx := daemon.LoggerContext(cfg.LogLevel)
			d, err := daemon.New(ctx, cfg)
			if err != nil {
				return err
			}
			return d.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "/etc/vireo/vireod.yaml", "configuration file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vireod: %v\n", err)
		os.Exit(1)
	}
}
