package main

import (
	"fmt"
	"os"

	"github.com/crowdflash/crowdflash-server/cmd/crowdflash/commands"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crowdflash",
		Short: "Crowdflash control server",
		Long:  "Real-time control server for flashlight mob events: broadcasts lighting commands to mobile devices and aggregates their status for the admin console",
	}

	rootCmd.AddCommand(commands.NewServeCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
