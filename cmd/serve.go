package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/monitoring"
	"github.com/sells-group/network-cli/internal/negotiation"
	"github.com/sells-group/network-cli/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(env.collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(env *env, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/evaluate", env.handleEvaluate)
		r.Get("/trust", env.handleTrust)
		r.Get("/path", env.handlePath)
		r.Post("/sessions", env.handleStartSession)
		r.Post("/sessions/{id}/step", env.handleStep)
		r.Delete("/sessions/{id}", env.handleCancel)
		r.Get("/stats", env.handleStats)
		r.Get("/metrics", env.handleMetrics)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errStatus maps the failure taxonomy onto HTTP: unknown participants are
// 404, everything else a plain 400 at this surface.
func errStatus(err error) int {
	if resilience.IsUnavailable(err) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

type pairRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

func (e *env) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}

	ctx := r.Context()
	source, err := e.store.Profile(ctx, req.SourceID)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	target, err := e.store.Profile(ctx, req.TargetID)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	cand, err := e.matcher.Evaluate(ctx, source, target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"qualified": cand != nil,
		"candidate": cand,
	})
}

func (e *env) handleTrust(w http.ResponseWriter, r *http.Request) {
	source, target := r.URL.Query().Get("source"), r.URL.Query().Get("target")
	result, err := e.trust.TransitiveTrust(r.Context(), source, target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *env) handlePath(w http.ResponseWriter, r *http.Request) {
	source, target := r.URL.Query().Get("source"), r.URL.Query().Get("target")
	p, err := e.reach.FindPath(r.Context(), source, target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reachable": p != nil,
		"path":      p,
	})
}

func (e *env) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pairRequest
		Strategy  string `json:"strategy,omitempty"`
		MaxRounds int    `json:"max_rounds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	source, err := e.store.Profile(ctx, req.SourceID)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	target, err := e.store.Profile(ctx, req.TargetID)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	cand, err := e.matcher.Evaluate(ctx, source, target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cand == nil {
		writeError(w, http.StatusUnprocessableEntity, "pair does not qualify as a match")
		return
	}

	sessionID, err := e.facilitator.Start(ctx, cand, negotiation.StartOptions{
		Strategy:  req.Strategy,
		MaxRounds: req.MaxRounds,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"candidate":  cand,
	})
}

func (e *env) handleStep(w http.ResponseWriter, r *http.Request) {
	var proposal model.Proposal
	if err := json.NewDecoder(r.Body).Decode(&proposal); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := e.facilitator.Step(r.Context(), chi.URLParam(r, "id"), proposal)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *env) handleCancel(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "cancelled by caller"
	}
	if err := e.facilitator.Cancel(r.Context(), chi.URLParam(r, "id"), reason); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (e *env) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := e.reach.NetworkStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (e *env) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := e.collector.Collect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
