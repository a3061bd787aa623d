// Command nexus runs the Nexus fleet orchestrator and its administrative
// CLI (§6.4 "CLI surface").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	configPath    string
	flagHost      string
	flagPort      int
	flagLogLevel  string
	flagNoDiscovery   bool
	flagNoHealthCheck bool
)

func main() {
	root := &cobra.Command{
		Use:     "nexus",
		Short:   "Nexus multiplexes chat and embeddings traffic across local and cloud model backends",
		Version: version,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagHost, "host", "", "override server.host")
	root.PersistentFlags().IntVar(&flagPort, "port", 0, "override server.port")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().BoolVar(&flagNoDiscovery, "no-discovery", false, "disable mDNS discovery")
	root.PersistentFlags().BoolVar(&flagNoHealthCheck, "no-health-check", false, "disable the health checker")

	root.AddCommand(serveCmd())
	root.AddCommand(backendsCmd())
	root.AddCommand(modelsCmd())
	root.AddCommand(healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
