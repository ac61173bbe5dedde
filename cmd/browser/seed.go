package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ffimoveis/imoveis/internal/catalog/memory"
	"github.com/ffimoveis/imoveis/internal/domain"
)

func newSeedCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upload listings to the API through PUT /api/v1/properties/{id}",
		Long: `seed uploads the bundled sample listings, or the JSON array in --file,
one PUT per listing. Existing listings with the same id are replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), opts, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of listings to upload")
	return cmd
}

func runSeed(ctx context.Context, opts *options, file string) error {
	log, closeLog, err := opts.newLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	records, err := loadListings(ctx, file)
	if err != nil {
		return err
	}

	api := opts.newRemote(log)
	var failed int
	for i := range records {
		r := records[i]
		reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		err := api.UpsertProperty(reqCtx, &r)
		cancel()
		if err != nil {
			failed++
			log.Error("seed listing failed", slog.String("id", r.ID), slog.String("error", err.Error()))
			continue
		}
		log.Info("listing seeded", slog.String("id", r.ID), slog.String("location_id", r.LocationID))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d listings failed", failed, len(records))
	}
	log.Info("seed complete", slog.Int("listings", len(records)))
	return nil
}

func loadListings(ctx context.Context, file string) ([]domain.PropertyRecord, error) {
	if file == "" {
		seeded, err := memory.NewSeeded()
		if err != nil {
			return nil, err
		}
		return seeded.FetchAllProperties(ctx)
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open listings file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return memory.Decode(f)
}
