package main

import (
	"context"

	"github.com/mfreeman451/statustracker/pkg/lifecycle"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the prober and watchdog on their schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		defer func() { _ = log.Sync() }()

		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}

		log.Info("Tracker configured",
			zap.String("store", cfg.Store.Driver),
			zap.String("timeouts_file", cfg.TimeoutsFile),
			zap.String("listen_addr", cfg.ListenAddr),
			zap.String("grpc_addr", cfg.GrpcAddr))

		return lifecycle.RunServer(context.Background(), &lifecycle.ServerOptions{
			ServiceName: serviceName,
			Service:     a,
			HTTPAddr:    cfg.ListenAddr,
			HTTPHandler: a.apiServer().Handler(),
			GRPCAddr:    cfg.GrpcAddr,
			Logger:      log,
		})
	},
}
