package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/statustracker/pkg/grpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	healthAddr    string
	healthTimeout time.Duration

	errNotServing = errors.New("tracker is not serving")
	errNoGRPCAddr = errors.New("no gRPC address configured")
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query the gRPC health service of a running tracker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr := healthAddr

		if addr == "" {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			addr = cfg.GrpcAddr
		}

		if addr == "" {
			return errNoGRPCAddr
		}

		client, err := grpc.NewClient(addr, zap.NewNop())
		if err != nil {
			return err
		}

		defer func() { _ = client.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()

		ok, err := client.CheckHealth(ctx, serviceName)
		if err != nil {
			return err
		}

		if !ok {
			return errNotServing
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s at %s is serving\n", serviceName, addr)

		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "gRPC address; defaults to grpc_addr from the config")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "Overall deadline for the check")
}
