package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "worksim",
		Short: "Worksim - Simulated worker workday engine",
		Long: `Worksim drives a simulated office worker through a compressed workday.
A decision policy picks persona-plausible actions, a dispatcher executes
them on a remote worker VM, and every cycle is recorded for analysis.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
