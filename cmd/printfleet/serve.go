package main

import (
	"github.com/smallbiznis/printfleet/internal/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fx.New(bootstrap.API()).Run()
	},
}

var pollerCmd = &cobra.Command{
	Use:   "poller",
	Short: "Run the status polling scheduler without the API",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fx.New(bootstrap.Poller()).Run()
	},
}
