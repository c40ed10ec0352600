package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lefei1980/travel-book-generator/internal/model"
)

var (
	runTripID string
	runFile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the generation pipeline for a trip",
	Long:  "Runs the pipeline for an existing trip (--trip) or creates a trip from an itinerary JSON file (--file) and runs it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runTripID == "" && runFile == "" {
			return eris.New("either --trip or --file is required")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tripID := runTripID
		if tripID == "" {
			trip, err := readItineraryFile(runFile)
			if err != nil {
				return err
			}
			created, err := env.Store.CreateTrip(ctx, trip)
			if err != nil {
				return eris.Wrap(err, "create trip")
			}
			tripID = created.ID
			zap.L().Info("trip created", zap.String("trip_id", tripID), zap.String("title", created.Title))
		}

		if err := env.Orchestrator.Run(ctx, tripID); err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		trip, err := env.Store.GetTrip(ctx, tripID)
		if err != nil {
			return eris.Wrap(err, "reload trip")
		}

		zap.L().Info("generation complete",
			zap.String("trip_id", trip.ID),
			zap.String("status", string(trip.Status)),
		)
		if trip.Enriched != nil && trip.Enriched.ArtifactPath != "" {
			zap.L().Info("travel book written", zap.String("path", trip.Enriched.ArtifactPath))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trip)
	},
}

// readItineraryFile parses a trip submission from JSON or, when the
// extension is .yaml/.yml, from YAML.
func readItineraryFile(path string) (model.Trip, error) {
	var trip model.Trip

	data, err := os.ReadFile(path)
	if err != nil {
		return trip, eris.Wrap(err, "read itinerary file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &trip)
	default:
		err = json.Unmarshal(data, &trip)
	}
	if err != nil {
		return trip, eris.Wrap(err, "parse itinerary file")
	}
	return trip, nil
}

func init() {
	runCmd.Flags().StringVar(&runTripID, "trip", "", "trip ID to process")
	runCmd.Flags().StringVar(&runFile, "file", "", "itinerary JSON file to create a trip from")
	rootCmd.AddCommand(runCmd)
}
