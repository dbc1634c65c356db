package main

import "github.com/spf13/cobra"

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "printfleet",
	Short: "Printer fleet device integration and print billing",
	Long: `printfleet captures print jobs reported by printers and print servers,
bills them against per user quotas, and keeps printer status current by
polling each device over SNMP, IPP, HTTP or WSD.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pollerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
