package main

import (
	"github.com/danmuck/bscdce/internal/logging"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "bscdce",
		Short: "Synchronous modem emulator for IBM bisync terminals",
		Long: `bscdce clocks a bit-banged synchronous serial line carrying BSC
frames and bridges it to a host program over a serial port or TCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}
	root.AddCommand(newServeCommand(), newConfigCommand(), newPortsCommand())
	return root
}
