package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfreeman451/statustracker/pkg/models"
	"github.com/mfreeman451/statustracker/pkg/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var tickEngine string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single pass of one or both engines and exit",
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

		defer func() { _ = a.store.Close() }()

		engines, err := a.selectEngines(tickEngine)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var (
			summaries []models.TickSummary
			errs      error
		)

		for _, e := range engines {
			summary, err := e.RunOnce(ctx)
			summaries = append(summaries, summary)
			errs = multierr.Append(errs, err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if err := enc.Encode(summaries); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}

		return errs
	},
}

func init() {
	tickCmd.Flags().StringVarP(&tickEngine, "engine", "e", "all", "Engine to run: prober, watchdog or all")
}

func (a *app) selectEngines(name string) ([]scheduler.Engine, error) {
	switch name {
	case models.EngineProber:
		return []scheduler.Engine{a.prober}, nil
	case models.EngineWatchdog:
		return []scheduler.Engine{a.watchdog}, nil
	case "all", "":
		return []scheduler.Engine{a.prober, a.watchdog}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}
