package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/model"
	"github.com/lefei1980/travel-book-generator/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trip submission API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := newMux(ctx, env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownServer(srv)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

const shutdownGrace = 10 * time.Second

// shutdownServer drains in-flight requests before closing. The signal
// context is already cancelled by the time this runs, so the drain
// needs its own deadline.
func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("server shutdown", zap.Error(err))
	}
}

// newMux builds the API routes. Trip submission is asynchronous: the
// handler persists the trip, kicks the pipeline in a goroutine, and
// answers 202 with the trip ID for polling.
func newMux(ctx context.Context, env *pipelineEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := env.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/trips", func(w http.ResponseWriter, r *http.Request) {
		var trip model.Trip
		if err := json.NewDecoder(r.Body).Decode(&trip); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateTrip(trip); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		created, err := env.Store.CreateTrip(r.Context(), trip)
		if err != nil {
			zap.L().Error("create trip failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "create trip failed")
			return
		}

		// Run detached from the request context so the pipeline
		// survives the client disconnecting.
		go func() {
			if err := env.Orchestrator.Run(ctx, created.ID); err != nil {
				zap.L().Error("pipeline run failed",
					zap.String("trip_id", created.ID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     created.ID,
			"status": string(created.Status),
		})
	})

	mux.HandleFunc("GET /api/trips", func(w http.ResponseWriter, r *http.Request) {
		filter := store.TripFilter{}
		if s := r.URL.Query().Get("status"); s != "" {
			filter.Status = model.TripStatus(s)
		}
		trips, err := env.Store.ListTrips(r.Context(), filter)
		if err != nil {
			zap.L().Error("list trips failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list trips failed")
			return
		}
		writeJSON(w, http.StatusOK, trips)
	})

	mux.HandleFunc("GET /api/trips/{id}", func(w http.ResponseWriter, r *http.Request) {
		trip, err := env.Store.GetTrip(r.Context(), r.PathValue("id"))
		if err != nil {
			if eris.Is(err, store.ErrTripNotFound) {
				writeError(w, http.StatusNotFound, "trip not found")
				return
			}
			zap.L().Error("get trip failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get trip failed")
			return
		}
		writeJSON(w, http.StatusOK, trip)
	})

	return mux
}

func validateTrip(trip model.Trip) error {
	if trip.Title == "" {
		return eris.New("title is required")
	}
	if len(trip.Days) == 0 {
		return eris.New("at least one day is required")
	}
	for _, day := range trip.Days {
		if day.DayNumber <= 0 {
			return eris.Errorf("day number must be positive, got %d", day.DayNumber)
		}
		for _, place := range day.Places {
			if place.Name == "" {
				return eris.Errorf("day %d: place name is required", day.DayNumber)
			}
			if place.Category != "" && !model.ValidCategory(place.Category) {
				return eris.Errorf("day %d: unknown category %q", day.DayNumber, place.Category)
			}
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
