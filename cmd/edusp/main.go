package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentini2/edusp/internal/config"
)

var configFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:          "edusp",
		Short:        "Real-time relay hub between lab machines and operator consoles",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", os.Getenv("EDUSP_CONFIG"), "Path to YAML config file (env EDUSP_CONFIG)")

	rootCmd.AddCommand(
		serveCmd(),
		licenseCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFlag)
}
