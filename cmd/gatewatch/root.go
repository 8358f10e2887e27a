package gatewatch

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatewatch",
	Short: "Gatewatch - a live RFID exit-gate monitor for retail stores",
	Long:  "Gatewatch tails RFID exit-gate readers over WebSocket or SSE, persists scans and theft alerts, and re-streams them to dashboards and mobile clients.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.gatewatch/gatewatch.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(operatorCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of Gatewatch",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gatewatch v%s\n", version)
	},
}
