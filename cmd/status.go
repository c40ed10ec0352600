package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/store"
)

var statusFilter string

var statusCmd = &cobra.Command{
	Use:   "status [trip-id]",
	Short: "Show trip status",
	Long:  "With a trip ID, prints the full trip. Without one, lists trips, optionally filtered by --status.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			trip, err := st.GetTrip(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "get trip")
			}
			return enc.Encode(trip)
		}

		trips, err := st.ListTrips(ctx, store.TripFilter{Status: model.TripStatus(statusFilter)})
		if err != nil {
			return eris.Wrap(err, "list trips")
		}

		type row struct {
			ID     string           `json:"id"`
			Title  string           `json:"title"`
			Status model.TripStatus `json:"status"`
			Error  string           `json:"error,omitempty"`
		}
		rows := make([]row, 0, len(trips))
		for _, t := range trips {
			rows = append(rows, row{ID: t.ID, Title: t.Title, Status: t.Status, Error: t.ErrorMessage})
		}
		return enc.Encode(rows)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (pending, geocoding, routing, enriching, rendering, complete, error)")
	rootCmd.AddCommand(statusCmd)
}
