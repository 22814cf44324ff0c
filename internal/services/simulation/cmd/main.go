package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smartcrop",
	Short: "smartcrop - simulated soil telemetry and auto-irrigation",
	Long: `smartcrop runs a simulated field sensor, an auto-irrigation controller
and the operator surfaces around them (HTTP API, MQTT bus, gRPC health).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
