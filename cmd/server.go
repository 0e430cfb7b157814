package cmd

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meshboardio/meshboard/server"
	"github.com/meshboardio/meshboard/util"
)

var (
	serverPort         int
	serverMetricsPort  int
	serverDataDir      string
	serverConfig       string
	corsAllowedOrigins []string

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "start MeshBoard server",
		PreRun: func(cmd *cobra.Command, args []string) {
			// detect whether the user has set the flags via env vars
			util.SetFlagsFromEnvVars(rootCmd)
			util.SetFlagsFromEnvVars(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			flag.Parse()

			err := util.InitLog(logLevel, logFile)
			if err != nil {
				log.Fatalf("failed initializing log %v", err)
			}

			config, err := server.LoadConfig(serverConfig)
			if err != nil {
				log.Fatalf("failed reading provided config file: %s: %v", serverConfig, err)
			}

			if cmd.Flag("datadir").Changed {
				config.Datadir = serverDataDir
			}
			if config.Datadir == "" {
				config.Datadir = defaultDataDir
			}
			if cmd.Flag("port").Changed {
				config.HttpConfig.Address = fmt.Sprintf(":%d", serverPort)
			}
			if cmd.Flag("metrics-port").Changed {
				config.Metrics = &server.MetricsConfig{Port: serverMetricsPort}
			}
			if cmd.Flag("cors-allowed-origins").Changed {
				config.HttpConfig.CORSAllowedOrigins = corsAllowedOrigins
			}

			if _, err := os.Stat(config.Datadir); os.IsNotExist(err) {
				err = os.MkdirAll(config.Datadir, os.ModePerm)
				if err != nil {
					log.Fatalf("failed creating datadir: %s: %v", config.Datadir, err)
				}
			}

			if !util.FileExists(serverConfig) {
				if err := util.WriteJson(cmd.Context(), serverConfig, config); err != nil {
					log.Warnf("failed persisting the effective config to %s: %v", serverConfig, err)
				}
			}

			srv, err := server.New(cmd.Context(), config)
			if err != nil {
				log.Fatalf("failed creating new server: %v", err)
			}

			if err = srv.Start(cmd.Context()); err != nil {
				log.Fatalf("failed to start server: %v", err)
			}

			SetupCloseHandler()
			<-stopCh
			log.Println("received signal to stop running MeshBoard server")

			if err := srv.Stop(cmd.Context()); err != nil {
				log.Errorf("failed stopping the server cleanly: %v", err)
			}
		},
	}
)
