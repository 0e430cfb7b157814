package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshboardio/meshboard/server"
)

const (
	// ExitSetupFailed defines exit code
	ExitSetupFailed = 1
)

var (
	defaultConfigDir string
	defaultDataDir   string
	defaultConfig    string
	defaultLogDir    string
	defaultLogFile   string

	logLevel string
	logFile  string

	rootCmd = &cobra.Command{
		Use:   "meshboard-mgmt",
		Short: "MeshBoard collaboration board server",
	}

	// Execution control channel for stopCh signal
	stopCh chan int
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	stopCh = make(chan int)

	defaultConfigDir = "/etc/meshboard"
	defaultDataDir = "/var/lib/meshboard/"
	defaultLogDir = "/var/log/meshboard"

	defaultConfig = defaultConfigDir + "/server.json"
	defaultLogFile = defaultLogDir + "/server.log"

	serverCmd.PersistentFlags().IntVar(&serverPort, "port", server.DefaultHTTPPort, "server port to listen on")
	serverCmd.PersistentFlags().IntVar(&serverMetricsPort, "metrics-port", server.DefaultMetricsPort, "metrics endpoint port. Metrics are accessible under host:metrics-port/metrics")
	serverCmd.PersistentFlags().StringVar(&serverDataDir, "datadir", defaultDataDir, "server data directory location")
	serverCmd.PersistentFlags().StringVar(&serverConfig, "config", defaultConfig, "MeshBoard config file location. Config params specified via command line (e.g. datadir) have a precedence over configuration from this file")
	serverCmd.PersistentFlags().StringSliceVar(&corsAllowedOrigins, "cors-allowed-origins", nil, "comma separated list of origins allowed to use the API from a browser. An empty list allows any origin")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "sets MeshBoard log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogFile, "sets MeshBoard log path. If console is specified the log will be output to stdout")
	rootCmd.AddCommand(serverCmd)
}

// SetupCloseHandler handles interrupt and termination signals and hands
// control back to the command for a clean shutdown
func SetupCloseHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range c {
			fmt.Println("\r- received an interrupt signal")
			stopCh <- 0
		}
	}()
}
