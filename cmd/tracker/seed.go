package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfreeman451/statustracker/pkg/config"
	"github.com/mfreeman451/statustracker/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// seedFile lists documents to insert, one list per collection.
type seedFile struct {
	Endpoints  []map[string]interface{} `json:"endpoints" yaml:"endpoints"`
	Bridges    []map[string]interface{} `json:"bridges" yaml:"bridges"`
	Heartbeats []map[string]interface{} `json:"heartbeats" yaml:"heartbeats"`
}

type seedResult struct {
	Inserted int
	Existing int
}

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Insert endpoints, bridges and heartbeats from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		defer func() { _ = log.Sync() }()

		var file seedFile
		if err := config.LoadFile(args[0], &file); err != nil {
			return err
		}

		store, err := db.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}

		defer func() { _ = store.Close() }()

		res, err := seedStore(cmd.Context(), store, cfg.Collections, &file, log)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "inserted %d documents, %d already present\n", res.Inserted, res.Existing)

		return nil
	},
}

// seedStore inserts every document of file. Documents whose id already
// exists are left alone so seeding can be repeated.
func seedStore(
	ctx context.Context,
	store db.Service,
	cols config.CollectionsConfig,
	file *seedFile,
	log *zap.Logger) (seedResult, error) {
	var res seedResult

	batches := []struct {
		collection string
		docs       []map[string]interface{}
	}{
		{cols.Endpoints, file.Endpoints},
		{cols.Bridges, file.Bridges},
		{cols.Heartbeats, file.Heartbeats},
	}

	for _, batch := range batches {
		for _, doc := range batch.docs {
			id, err := store.Insert(ctx, batch.collection, doc)
			if errors.Is(err, db.ErrDuplicateID) {
				log.Info("Document already present", zap.String("collection", batch.collection), zap.Any("id", doc["id"]))

				res.Existing++

				continue
			}

			if err != nil {
				return res, fmt.Errorf("failed to seed %s: %w", batch.collection, err)
			}

			log.Debug("Seeded document", zap.String("collection", batch.collection), zap.String("id", id))

			res.Inserted++
		}
	}

	return res, nil
}
