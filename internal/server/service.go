// Package server provides the HTTP handlers for launching simulation
// runs and querying their recorded history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/makerlab/cdp-engine/internal/metrics"
	"github.com/makerlab/cdp-engine/internal/params"
	"github.com/makerlab/cdp-engine/internal/sim"
	"github.com/makerlab/cdp-engine/internal/spot"
	"github.com/makerlab/cdp-engine/internal/store"
)

// OracleFactory builds the price oracle for one run's parameters,
// typically a feed set offset by the run's initial timestep.
type OracleFactory func(p *params.Params) (spot.Oracle, error)

// Service handles run operations. Runs execute in their own goroutine;
// handlers only read the store.
type Service struct {
	store   store.Store
	oracles OracleFactory
	hub     *WSHub // optional WebSocket hub for progress broadcasts
	log     *slog.Logger
}

// NewService creates a new run service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, oracles OracleFactory, hub *WSHub, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   st,
		oracles: oracles,
		hub:     hub,
		log:     log,
	}
}

// CreateRun handles POST /api/v1/runs. The body is a parameter
// document applied over the defaults; an empty body runs the defaults.
func (s *Service) CreateRun(w http.ResponseWriter, r *http.Request) {
	p, err := params.Load(r.Body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	orc, err := s.oracles(p)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	run := &store.Run{
		ID:        uuid.New().String(),
		Seed:      p.Seed,
		Timesteps: p.Timesteps,
		Policy:    string(p.BidPolicy),
		Status:    store.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	s.log.Info("run created",
		"id", run.ID,
		"seed", run.Seed,
		"timesteps", run.Timesteps,
		"policy", run.Policy,
	)

	go s.execute(run, p, orc)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run)
}

// execute drives one run to completion, recording every timestep.
func (s *Service) execute(run *store.Run, p *params.Params, orc spot.Oracle) {
	ctx := context.Background()
	start := time.Now()

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	if err := s.store.UpdateRunStatus(ctx, run.ID, store.StatusRunning, ""); err != nil {
		s.log.Error("run status update failed", "run", run.ID, "err", err)
	}

	runner, err := sim.New(p, orc, s.log)
	if err == nil {
		_, err = runner.Run(ctx, func(st *sim.State) { s.record(ctx, run.ID, st) })
	}

	status := store.StatusCompleted
	msg := ""
	if err != nil {
		status = store.StatusFailed
		msg = err.Error()
		s.log.Error("run failed", "run", run.ID, "err", err)
	}
	if uerr := s.store.UpdateRunStatus(ctx, run.ID, status, msg); uerr != nil {
		s.log.Error("run status update failed", "run", run.ID, "err", uerr)
	}

	metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{Type: "run_" + string(status), RunID: run.ID, Error: msg})
	}
	s.log.Info("run finished", "run", run.ID, "status", status, "took", time.Since(start))
}

// record persists one committed timestep and broadcasts it.
func (s *Service) record(ctx context.Context, runID string, st *sim.State) {
	rec := &store.TimestepRecord{
		RunID:        runID,
		Timestep:     st.Timestep,
		Debt:         st.Vat.Debt,
		Vice:         st.Vat.Vice,
		Litter:       st.Cat.Litter,
		EthPrice:     st.Spotter.Val(sim.IlkEth),
		DaiPrice:     st.Spotter.Val(spot.IlkDai),
		OpenAuctions: st.OpenAuctions(),
		Bites:        st.Stats.Bites,
		Bids:         st.Stats.Bids,
		Deals:        st.Stats.Deals,
		VaultsOpened: st.Stats.VaultsOpened,
	}
	if err := s.store.InsertTimestep(ctx, rec); err != nil {
		s.log.Error("timestep insert failed", "run", runID, "timestep", st.Timestep, "err", err)
	}

	metrics.SystemDebt.Set(rec.Debt.Decimal().InexactFloat64())
	metrics.Litter.Set(rec.Litter.Decimal().InexactFloat64())
	metrics.OpenAuctions.Set(float64(rec.OpenAuctions))
	metrics.BitesTotal.Add(float64(st.Stats.Bites))
	metrics.BidsTotal.Add(float64(st.Stats.Bids))
	metrics.DealsTotal.Add(float64(st.Stats.Deals))
	metrics.VaultsOpenedTotal.Add(float64(st.Stats.VaultsOpened))

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:         "timestep",
			RunID:        runID,
			Timestep:     st.Timestep,
			Debt:         rec.Debt.String(),
			Litter:       rec.Litter.String(),
			EthPrice:     rec.EthPrice.String(),
			OpenAuctions: rec.OpenAuctions,
			Bites:        rec.Bites,
			Bids:         rec.Bids,
		})
	}
}

// ListRuns handles GET /api/v1/runs.
func (s *Service) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// GetRun handles GET /api/v1/runs/{runID}.
func (s *Service) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "run not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load run", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// GetRunHistory handles GET /api/v1/runs/{runID}/history.
func (s *Service) GetRunHistory(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "run not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load run", http.StatusInternalServerError)
		return
	}

	recs, err := s.store.GetRunHistory(r.Context(), runID)
	if err != nil {
		writeError(w, "failed to load run history", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.TimestepRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
