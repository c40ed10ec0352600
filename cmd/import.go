package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/importer"
)

var (
	importPath  string
	importTitle string
	importSheet string
	importRun   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an itinerary from an XLSX spreadsheet",
	Long:  "Creates a trip from a spreadsheet. Rows that carry coordinates seed the geocode cache so those places never hit the network.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := importer.ReadItinerary(importPath, importTitle, importer.Options{SheetName: importSheet})
		if err != nil {
			return eris.Wrap(err, "read itinerary")
		}

		if len(res.Seed) > 0 {
			seeded, err := env.Store.SeedGeocodeCache(ctx, res.Seed)
			if err != nil {
				return eris.Wrap(err, "seed geocode cache")
			}
			zap.L().Info("geocode cache seeded", zap.Int64("entries", seeded))
		}

		created, err := env.Store.CreateTrip(ctx, res.Trip)
		if err != nil {
			return eris.Wrap(err, "create trip")
		}

		zap.L().Info("import complete",
			zap.String("trip_id", created.ID),
			zap.String("title", created.Title),
			zap.Int("days", len(created.Days)),
			zap.String("file", importPath),
		)

		if importRun {
			if err := env.Orchestrator.Run(ctx, created.ID); err != nil {
				return eris.Wrap(err, "pipeline run")
			}
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to XLSX file (required)")
	importCmd.Flags().StringVar(&importTitle, "title", "", "trip title (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (default first sheet)")
	importCmd.Flags().BoolVar(&importRun, "run", false, "run the pipeline after importing")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(importCmd)
}
