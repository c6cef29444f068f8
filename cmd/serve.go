package main

import (
	"context"
	"encoding/json"
	"errors"
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
	"golang.org/x/sync/errgroup"

	"github.com/claimclaw/contest-cli/internal/checkpoint"
	"github.com/claimclaw/contest-cli/internal/evidence"
	"github.com/claimclaw/contest-cli/internal/model"
	"github.com/claimclaw/contest-cli/internal/workflow"
)

var servePort int

// caseService is the slice of the workflow engine the HTTP handlers use.
type caseService interface {
	Start(ctx context.Context, req workflow.StartRequest) (*model.ClaimCase, error)
	Resume(ctx context.Context, threadID string, signal workflow.ResumeSignal) (*model.ClaimCase, error)
	Abandon(ctx context.Context, threadID string) (*model.ClaimCase, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for case operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Engine, env.Store),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func newRouter(svc caseService, store checkpoint.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/claims", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ClaimID       string            `json:"claim_id"`
			Documents     model.DocumentSet `json:"documents"`
			Complainant   model.Complainant `json:"complainant"`
			PolicyAgeHint float64           `json:"policy_age_hint"`
			LivePortal    bool              `json:"live_portal"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.ClaimID == "" {
			writeError(w, http.StatusBadRequest, "claim_id is required")
			return
		}

		cs, err := svc.Start(req.Context(), workflow.StartRequest{
			ClaimID:       body.ClaimID,
			Documents:     body.Documents,
			Complainant:   body.Complainant,
			PolicyAgeHint: body.PolicyAgeHint,
			DryRunPortal:  !body.LivePortal,
		})
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cs)
	})

	r.Post("/claims/{threadID}/resume", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			InsurerReplied bool `json:"insurer_replied"`
			HumanConfirmed bool `json:"human_confirmed"`
		}
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		cs, err := svc.Resume(req.Context(), chi.URLParam(req, "threadID"), workflow.ResumeSignal{
			InsurerReplied: body.InsurerReplied,
			HumanConfirmed: body.HumanConfirmed,
		})
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cs)
	})

	r.Post("/claims/{threadID}/abandon", func(w http.ResponseWriter, req *http.Request) {
		cs, err := svc.Abandon(req.Context(), chi.URLParam(req, "threadID"))
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cs)
	})

	r.Get("/claims", func(w http.ResponseWriter, req *http.Request) {
		threads, err := store.ListThreads(req.Context(), checkpoint.ThreadFilter{
			Stage: model.Stage(req.URL.Query().Get("stage")),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, threads)
	})

	r.Get("/claims/{threadID}", func(w http.ResponseWriter, req *http.Request) {
		cp, err := store.LoadLatest(req.Context(), chi.URLParam(req, "threadID"))
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cp)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeWorkflowError maps engine errors onto HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrWorkflowTerminated),
		errors.Is(err, workflow.ErrCaseExists),
		errors.Is(err, workflow.ErrAwaitingHuman):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, evidence.ErrMissingDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
